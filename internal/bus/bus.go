// Package bus is the info-fanout backbone used by the SRCP session layer
// (spec §4.1): every bus-originated event is published once and multicast to
// whichever sessions are subscribed, with retained state replayed to a
// session the instant it subscribes (used for "send all info" on a new info
// client). A command's own OK/ERROR reply goes to that session's exact
// topic and is not retained.
package bus

import (
	"sync"
	"sync/atomic"
)

const defaultQLen = 8

// wildcard is the one multi-level topic match srcpd needs: "info/#"
// catches the plain "info" broadcast topic plus every retained
// "info/<bus>/<kind>/<addr>" topic beneath it (see internal/srcp.EventBus.
// SubscribeInfo). Every other subscription srcpd makes is an exact topic,
// so there is no single-level wildcard here.
const wildcard = "#"

// Token is one topic segment: a session id (int), or a fixed string such as
// "info" or "session".
type Token any
type Topic []Token

func T(tokens ...Token) Topic { return Topic(tokens) }

// Message is one event traveling through the bus. Payload is always an
// *srcp.Event in this program; it is typed any here so bus stays a
// standalone, independently testable package.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ID       uint32
}

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// node is a trie node shared by live subscribers and retained messages.
type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

func ensureChild(n *node, t Token) *node {
	if n.children == nil {
		n.children = make(map[Token]*node)
	}
	if n.children[t] == nil {
		n.children[t] = &node{}
	}
	return n.children[t]
}

type Bus struct {
	mu    sync.Mutex
	root  *node
	qLen  int
	idCtr atomic.Uint32
}

func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = defaultQLen
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func (b *Bus) nextID() uint32 { return b.idCtr.Add(1) }

func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained, ID: b.nextID()}
}

func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	n := b.root
	for _, t := range topic {
		n = ensureChild(n, t)
	}
	n.subs = append(n.subs, sub)

	var retained []*Message
	b.collectRetainedLocked(b.root, topic, 0, &retained)
	b.mu.Unlock()

	for _, rm := range retained {
		b.tryDeliver(sub, rm)
	}
}

// Publish delivers msg to every matching live subscriber. A failed send
// (full queue) drops the oldest buffered message for that subscriber rather
// than blocking the publisher — the publisher is always a bus scheduler or
// device handler and must never stall on a slow session.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	var subs []*Subscription
	b.collectSubscribersLocked(b.root, msg.Topic, 0, &subs)

	if msg.Retained {
		if msg.Payload == nil {
			b.retainDeleteLocked(msg.Topic)
		} else {
			b.retainSetLocked(msg)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		b.tryDeliver(sub, msg)
	}
}

func trySend(ch chan *Message, m *Message) bool {
	select {
	case ch <- m:
		return true
	default:
		return false
	}
}

func drainOne(ch chan *Message) {
	select {
	case <-ch:
	default:
	}
}

func (b *Bus) tryDeliver(sub *Subscription, msg *Message) {
	defer func() { _ = recover() }() // channel may be closed by a racing Unsubscribe
	if trySend(sub.ch, msg) {
		return
	}
	drainOne(sub.ch)
	_ = trySend(sub.ch, msg)
}

func (b *Bus) unsubscribe(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, t := range topic {
		if n.children == nil {
			return
		}
		child := n.children[t]
		if child == nil {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	b.pruneEmptyLocked(stack, topic)
}

func (b *Bus) pruneEmptyLocked(stack []*node, path []Token) {
	for i := len(path) - 1; i >= 0; i-- {
		parent := stack[i]
		key := path[i]
		child := parent.children[key]
		if child != nil && len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// collectSubscribersLocked walks topic against the trie, following an exact
// match at each level and, at every level, also folding in any subscriber
// parked on the literal "#" child (a "#" subscription matches its own
// prefix plus any remainder, including zero extra tokens).
func (b *Bus) collectSubscribersLocked(n *node, topic Topic, depth int, out *[]*Subscription) {
	if n == nil {
		return
	}
	if depth == len(topic) {
		*out = append(*out, n.subs...)
		if n.children != nil {
			if mw := n.children[wildcard]; mw != nil {
				*out = append(*out, mw.subs...)
			}
		}
		return
	}
	tok := topic[depth]
	if n.children != nil {
		if child := n.children[tok]; child != nil {
			b.collectSubscribersLocked(child, topic, depth+1, out)
		}
		if mw := n.children[wildcard]; mw != nil {
			*out = append(*out, mw.subs...)
		}
	}
}

func (b *Bus) retainSetLocked(msg *Message) {
	n := b.root
	for _, t := range msg.Topic {
		n = ensureChild(n, t)
	}
	n.retained = msg
}

func (b *Bus) retainDeleteLocked(topic Topic) {
	n := b.root
	var stack []*node
	for _, t := range topic {
		if n.children == nil {
			return
		}
		child := n.children[t]
		if child == nil {
			return
		}
		stack = append(stack, n)
		n = child
	}
	n.retained = nil
	b.pruneEmptyLocked(stack, topic)
}

// collectRetainedLocked replays retained messages to a newly-subscribed
// pattern. A plain pattern walks to one node; a pattern ending in "#"
// (srcpd's only subscribe-time wildcard, used by SubscribeInfo) instead
// collects every retained message at or below that point in the trie.
func (b *Bus) collectRetainedLocked(n *node, pattern Topic, depth int, out *[]*Message) {
	if n == nil {
		return
	}
	if depth == len(pattern) {
		if n.retained != nil {
			*out = append(*out, n.retained)
		}
		return
	}
	ptok := pattern[depth]
	if ptok == wildcard {
		b.collectAllRetainedLocked(n, out)
		return
	}
	if child := n.children[ptok]; child != nil {
		b.collectRetainedLocked(child, pattern, depth+1, out)
	}
}

func (b *Bus) collectAllRetainedLocked(n *node, out *[]*Message) {
	if n == nil {
		return
	}
	if n.retained != nil {
		*out = append(*out, n.retained)
	}
	for _, child := range n.children {
		b.collectAllRetainedLocked(child, out)
	}
}

// Connection is one publisher/subscriber handle. srcpd hands out one per bus
// scheduler and one per session.
type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan *Message, c.bus.qLen), conn: c}
	c.bus.addSubscription(topic, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	c.subs = removeSub(c.subs, sub)
	c.mu.Unlock()
	close(sub.ch)
}

func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		close(sub.ch)
	}
}

func removeSub(list []*Subscription, target *Subscription) []*Subscription {
	for i, s := range list {
		if s == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
