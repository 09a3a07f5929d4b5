package srcp

import (
	"strconv"
	"strings"
)

// Event is the in-process form of one outgoing SRCP reply line: either a
// direct OK/ERROR answer to a command, or an INFO broadcast describing a
// device-state change. The session layer stamps on the "<secs>.<ms> " wire
// timestamp; Event itself only knows the reply-code grammar (spec §7/§8.2).
type Event struct {
	Code    WireCode
	Bus     int
	Kind    Kind
	Addr    int
	HasAddr bool
	Text    string   // extra token after "OK" (PROTOCOL SRCP, CONNECTIONMODE, GO <id>); full text after "ERROR"
	Fields  []string // trailing, already-ordered parameters
}

// Info builds a "<code> INFO <bus> <KIND> [addr] field..." event.
func Info(busNum int, kind Kind, fields ...string) *Event {
	return &Event{Code: CodeInfo, Bus: busNum, Kind: kind, Fields: fields}
}

// InfoAddr builds an INFO event for an addressed device (GL/GA/SM/FB).
func InfoAddr(busNum int, kind Kind, addr int, fields ...string) *Event {
	return &Event{Code: CodeInfo, Bus: busNum, Kind: kind, Addr: addr, HasAddr: true, Fields: fields}
}

// Ok builds a direct "<code> OK [text] [fields...]" reply.
func Ok(fields ...string) *Event { return &Event{Code: CodeOK, Fields: fields} }

// OkText builds a direct OK reply whose literal text follows the word OK,
// as in the handshake replies "201 OK PROTOCOL SRCP" and "202 OK
// CONNECTIONMODE".
func OkText(code WireCode, text string) *Event { return &Event{Code: code, Text: text} }

// Err builds a direct ERROR reply for one of the fixed wire codes.
func Err(code WireCode) *Event { return errEvent(code) }

func (e *Event) Render() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(e.Code)))

	switch {
	case e.Text != "" && e.Code != CodeOK && e.Code != CodeOKProtocol && e.Code != CodeOKConnectionMode && e.Code != CodeInfo:
		b.WriteString(" ERROR ")
		b.WriteString(e.Text)
		return b.String()
	case e.Code == CodeInfo:
		b.WriteString(" INFO ")
		b.WriteString(strconv.Itoa(e.Bus))
		if e.Kind != "" {
			b.WriteString(" ")
			b.WriteString(string(e.Kind))
		}
		if e.HasAddr {
			b.WriteString(" ")
			b.WriteString(strconv.Itoa(e.Addr))
		}
	default:
		b.WriteString(" OK")
		if e.Text != "" {
			b.WriteString(" ")
			b.WriteString(e.Text)
		}
	}
	for _, f := range e.Fields {
		b.WriteString(" ")
		b.WriteString(f)
	}
	return b.String()
}

// FieldsInt renders a run of integers as the ordered string fields INFO/OK
// lines carry; device handlers build their reply with this instead of
// repeating strconv.Itoa at every call site.
func FieldsInt(vals ...int) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strconv.Itoa(v)
	}
	return out
}
