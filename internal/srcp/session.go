package srcp

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dsigg/srcpd/internal/bus"
)

var sessionIDCtr atomic.Int64

func nextSessionID() int { return int(sessionIDCtr.Add(1)) }

// connMode is the mode negotiated during handshake.
type connMode int

const (
	modeUnset connMode = iota
	modeCommand
	modeInfo
)

// session owns one accepted TCP connection end to end: handshake, then
// either the command-mode or info-mode loop, until the socket dies.
type session struct {
	id       int
	conn     net.Conn
	w        *bufio.Writer
	scanner  *bufio.Scanner
	registry *Registry
	events   *EventBus
	log      *logrus.Entry
}

func newSession(conn net.Conn, registry *Registry, events *EventBus, log *logrus.Logger) *session {
	return &session{
		conn:     conn,
		w:        bufio.NewWriter(conn),
		scanner:  bufio.NewScanner(conn),
		registry: registry,
		events:   events,
		log:      log.WithField("remote", conn.RemoteAddr().String()),
	}
}

// send writes one reply line with the "<secs>.<ms> " timestamp prefix the
// protocol mandates on every outgoing line.
func (s *session) send(ev *Event) error {
	now := time.Now()
	line := fmt.Sprintf("%d.%03d %s\n", now.Unix(), now.Nanosecond()/1_000_000, ev.Render())
	if _, err := s.w.WriteString(line); err != nil {
		return err
	}
	return s.w.Flush()
}

// run performs the handshake and then hands off to the mode-specific loop.
// It always closes the connection before returning.
func (s *session) run() {
	defer s.conn.Close()

	s.writeGreeting()

	mode, ok := s.handshake()
	if !ok {
		return
	}

	s.log = s.log.WithField("session", s.id)

	switch mode {
	case modeCommand:
		s.runCommandMode()
	case modeInfo:
		s.runInfoMode()
	}
}

func (s *session) writeGreeting() {
	// "srcpd V<pkg_ver>; SRCP 0.8.4\n" — no timestamp prefix, this precedes
	// the handshake proper.
	fmt.Fprintf(s.w, "srcpd V1.0; SRCP 0.8.4\n")
	s.w.Flush()
}

// handshake consumes lines until GO, returning the negotiated mode. It
// returns ok=false if the socket dies first.
func (s *session) handshake() (connMode, bool) {
	var mode connMode
	for s.scanner.Scan() {
		line := s.scanner.Text()
		toks := tokenize(line)
		upper := make([]string, len(toks))
		for i, t := range toks {
			upper[i] = upperASCII(t)
		}

		switch {
		case len(upper) >= 3 && upper[0] == "SET" && upper[1] == "PROTOCOL" && upper[2] == "SRCP":
			if s.send(OkText(CodeOKProtocol, "PROTOCOL SRCP")) != nil {
				return mode, false
			}
		case len(upper) >= 4 && upper[0] == "SET" && upper[1] == "CONNECTIONMODE" && upper[2] == "SRCP" && upper[3] == "COMMAND":
			mode = modeCommand
			if s.send(OkText(CodeOKConnectionMode, "CONNECTIONMODE")) != nil {
				return mode, false
			}
		case len(upper) >= 4 && upper[0] == "SET" && upper[1] == "CONNECTIONMODE" && upper[2] == "SRCP" && upper[3] == "INFO":
			mode = modeInfo
			if s.send(OkText(CodeOKConnectionMode, "CONNECTIONMODE")) != nil {
				return mode, false
			}
		case len(upper) >= 1 && upper[0] == "GO":
			if mode == modeUnset {
				if s.send(errUnsupportedConnectionMode) != nil {
					return mode, false
				}
				continue
			}
			sid := nextSessionID()
			s.id = sid
			if s.send(&Event{Code: CodeOKGo, Text: fmt.Sprintf("GO %d", sid)}) != nil {
				return mode, false
			}
			return mode, true
		default:
			if s.send(errUnsupportedConnectionMode) != nil {
				return mode, false
			}
		}
	}
	return mode, false
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// runCommandMode is the command-mode reader: one reply per line, exactly as
// spec'd, including the 500ms timeout and the stray-message drain.
func (s *session) runCommandMode() {
	sub := s.events.SubscribeSession(s.id)
	defer sub.Unsubscribe()

	for s.scanner.Scan() {
		line := s.scanner.Text()
		s.drainStray(sub)

		cmd, errEv := Parse(line)
		if errEv != nil {
			if s.send(errEv) != nil {
				return
			}
			continue
		}
		cmd.SessionID = s.id

		b, ok := s.registry.Lookup(cmd.Bus)
		if !ok {
			if s.send(errWrongValue) != nil {
				return
			}
			continue
		}

		select {
		case b.Commands() <- cmd:
		case <-time.After(500 * time.Millisecond):
			if s.send(errTimeout) != nil {
				return
			}
			continue
		}

		select {
		case msg := <-sub.Channel():
			ev, _ := msg.Payload.(*Event)
			if ev == nil {
				continue
			}
			if s.send(ev) != nil {
				return
			}
		case <-time.After(500 * time.Millisecond):
			if s.send(errTimeout) != nil {
				return
			}
		}
	}
}

// drainStray discards any reply still sitting in this session's channel
// from a previous command whose timeout already fired — the protocol
// allows exactly one reply per command, so a late straggler is logged and
// thrown away rather than misdelivered to the next command.
func (s *session) drainStray(sub *bus.Subscription) {
	for {
		select {
		case msg := <-sub.Channel():
			s.log.WithField("event", msg).Warn("discarding stray reply queued for this session")
		default:
			return
		}
	}
}

// runInfoMode registers this session with the info-fanout dispatcher (via
// the retained "info/#" subscription, which immediately replays every
// device's last known state) and forwards every subsequent broadcast until
// the socket dies. Bytes written by the client are discarded.
func (s *session) runInfoMode() {
	sub := s.events.SubscribeInfo()
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(io.Discard, s.conn)
	}()

	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			ev, _ := msg.Payload.(*Event)
			if ev == nil {
				continue // retained-clear tombstone, nothing to forward
			}
			if s.send(ev) != nil {
				return
			}
		case <-done:
			return
		}
	}
}
