package s88

import (
	"strconv"

	"github.com/dsigg/srcpd/internal/srcp"
)

// Bus adapts a Poller into an srcp.Bus: FB only ever answers GET (spec.md
// §4's FB record is "exposed read-only to the session layer").
type Bus struct {
	poller *Poller
	events *srcp.EventBus
	cmds   chan *srcp.Command
}

func NewBus(poller *Poller, events *srcp.EventBus) *Bus {
	b := &Bus{poller: poller, events: events, cmds: make(chan *srcp.Command, 16)}
	go b.run()
	return b
}

func (b *Bus) Commands() chan<- *srcp.Command { return b.cmds }

func (b *Bus) run() {
	for cmd := range b.cmds {
		if cmd.Verb != srcp.VerbGet || cmd.Device != srcp.KindFB || len(cmd.Params) < 1 {
			b.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeUnsupportedOperation))
			continue
		}
		addr, err := strconv.Atoi(cmd.Params[0])
		if err != nil {
			b.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
			continue
		}
		state, ok := b.poller.Get(addr)
		if !ok {
			b.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
			continue
		}
		b.events.Reply(cmd.SessionID, srcp.Ok())
		v := "0"
		if state {
			v = "1"
		}
		b.events.PublishInfo(srcp.InfoAddr(b.poller.busNum, srcp.KindFB, addr, v))
	}
}

