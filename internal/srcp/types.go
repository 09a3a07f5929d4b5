// Package srcp implements the SRCP 0.8.4 session layer: message types, the
// line parser/serializer, per-connection handshake and command/info loops,
// and the info-fanout dispatcher (spec.md §4.1). It knows nothing about any
// particular bus's hardware; it hands parsed Commands to whichever Bus is
// registered for the command's bus number and waits for the Event(s) that
// bus publishes in reply.
package srcp

import "github.com/dsigg/srcpd/internal/bus"

// Kind is an SRCP device class.
type Kind string

const (
	KindPower Kind = "POWER"
	KindGL    Kind = "GL"
	KindGA    Kind = "GA"
	KindFB    Kind = "FB"
	KindSM    Kind = "SM"
)

// Verb is an SRCP command verb.
type Verb int

const (
	VerbGet Verb = iota
	VerbSet
	VerbInit
	VerbTerm
	VerbVerify
)

func (v Verb) String() string {
	switch v {
	case VerbGet:
		return "GET"
	case VerbSet:
		return "SET"
	case VerbInit:
		return "INIT"
	case VerbTerm:
		return "TERM"
	case VerbVerify:
		return "VERIFY"
	default:
		return "?"
	}
}

// Command is a fully parsed SRCP command, identical in shape whether it
// arrived over the wire or is being synthesized internally (e.g. the clean
// shutdown path's synthetic "SET POWER OFF"). SessionID 0 means
// server-internal (the shutdown broadcast).
type Command struct {
	SessionID int
	Verb      Verb
	Bus       int
	Device    Kind
	Params    []string
}

// Bus is what the session layer needs from a DDL (or S88) bus scheduler: a
// channel to hand commands to, in arrival order.
type Bus interface {
	Commands() chan<- *Command
}

// Registry maps bus numbers to the scheduler owning them. Built once at
// startup from the parsed config and handed to the session layer.
type Registry struct {
	buses map[int]Bus
}

func NewRegistry() *Registry { return &Registry{buses: map[int]Bus{}} }

func (r *Registry) Add(busNum int, b Bus) { r.buses[busNum] = b }

func (r *Registry) Lookup(busNum int) (Bus, bool) {
	b, ok := r.buses[busNum]
	return b, ok
}

// EventBus is the shared publish surface every device handler uses to emit
// replies and INFO broadcasts. It wraps a *bus.Connection so device-handler
// code never touches topic shapes directly.
type EventBus struct {
	conn *bus.Connection
}

func NewEventBus(conn *bus.Connection) *EventBus { return &EventBus{conn: conn} }

// topicInfo is the single broadcast topic every info-mode session
// subscribes to (spec §4.1: "deliver to every info client unconditionally").
func topicInfo() bus.Topic { return bus.T("info") }

// topicRetained scopes a retained INFO record so a late-joining info
// session replays exactly the last state of each device, without an
// explicit "re-broadcast everything" round trip (see DESIGN.md).
func topicRetained(busNum int, kind Kind, addr int) bus.Topic {
	return bus.T("info", busNum, string(kind), addr)
}

// topicSession is the per-session direct-reply topic a command-mode session
// subscribes to once, at handshake, and reuses for every command it sends.
func topicSession(sessionID int) bus.Topic { return bus.T("session", sessionID) }

// PublishInfo broadcasts ev to every info-mode session. If ev carries a
// (bus, kind, addr), the message is retained so a session that subscribes
// later still sees the latest state for that device.
func (e *EventBus) PublishInfo(ev *Event) {
	retained := ev.Bus != 0 || ev.Addr != 0
	topic := topicInfo()
	if retained {
		topic = topicRetained(ev.Bus, ev.Kind, ev.Addr)
	}
	e.conn.Publish(e.conn.NewMessage(topic, ev, retained))
}

// ClearRetained removes a device's retained INFO record (TERM, or power-off
// shutdown of a locomotive) so a new info session won't see a stale entry.
func (e *EventBus) ClearRetained(busNum int, kind Kind, addr int) {
	e.conn.Publish(e.conn.NewMessage(topicRetained(busNum, kind, addr), nil, true))
}

// Reply sends a direct OK/ERROR/result event to exactly the session that
// issued the command it answers.
func (e *EventBus) Reply(sessionID int, ev *Event) {
	if sessionID == 0 {
		return
	}
	e.conn.Publish(e.conn.NewMessage(topicSession(sessionID), ev, false))
}

// SubscribeInfo registers a new info-mode session. Per spec §4.1 this also
// replays every device's last known state (the retained messages under
// "info/#") to the new subscriber.
func (e *EventBus) SubscribeInfo() *bus.Subscription {
	return e.conn.Subscribe(bus.T("info", "#"))
}

// SubscribeSession registers the persistent reply channel a command-mode
// session reuses for every command it sends over its lifetime.
func (e *EventBus) SubscribeSession(sessionID int) *bus.Subscription {
	return e.conn.Subscribe(topicSession(sessionID))
}
