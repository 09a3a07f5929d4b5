// internal/bus/bus_test.go
package bus

import (
	"sort"
	"testing"
	"time"
)

const (
	topicInfo = "info"
	topicBus  = "bus"
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T(topicInfo, topicBus))

	msg := conn.NewMessage(T(topicInfo, topicBus), "hello", false)
	conn.Publish(msg)

	select {
	case got := <-sub.Channel():
		if got.Payload.(string) != "hello" {
			t.Errorf("expected payload 'hello', got %v", got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	msg := conn.NewMessage(T(topicInfo, topicBus), "persist", true)
	conn.Publish(msg)

	sub := conn.Subscribe(T(topicInfo, topicBus))

	select {
	case got := <-sub.Channel():
		if got.Payload.(string) != "persist" {
			t.Errorf("expected retained payload 'persist', got %v", got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for retained message")
	}
}

// -----------------------------------------------------------------------------
// "#" fanout (the only wildcard srcpd uses: SubscribeInfo's "info/#", so a
// new info-mode session replays every retained device state under "info").
// Every other topic srcpd publishes or subscribes to is an exact match —
// there is no single-level wildcard to test.
// -----------------------------------------------------------------------------

func TestHashMatchesExactAndDescendants(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sInfoHash := c.Subscribe(T("info", "#"))
	sInfoExact := c.Subscribe(T("info"))

	c.Publish(b.NewMessage(T("info"), "p1", false))
	expectOneOf(t, sInfoHash, "p1")
	expectOneOf(t, sInfoExact, "p1")

	c.Publish(b.NewMessage(T("info", 1, "gl", 3), "p2", false))
	expectOneOf(t, sInfoHash, "p2")
	expectNoMessage(t, sInfoExact)
}

func TestHashRetainedDelivery(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(T("info"), "r0", true))
	c.Publish(b.NewMessage(T("info", 1, "gl", 3), "r1", true))
	c.Publish(b.NewMessage(T("info", 1, "ga", 7), "r2", true))
	c.Publish(b.NewMessage(T("info", 2, "power"), "r3", true))

	sAll := c.Subscribe(T("info", "#"))
	gotAll := drainPayloads(t, sAll, 4)
	assertUnorderedEqual(t, gotAll, []string{"r0", "r1", "r2", "r3"})
}

func TestHashRetainedClear(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(T("info", 1, "gl", 3), "keep", true))
	c.Publish(b.NewMessage(T("info", 1, "gl", 4), "other", true))

	c.Publish(b.NewMessage(T("info", 1, "gl", 3), nil, true))

	s := c.Subscribe(T("info", "#"))
	got := drainPayloads(t, s, 1)

	if len(got) != 1 || got[0] != "other" {
		t.Fatalf("expected only 'other' after clear, got %v", got)
	}
}

func TestExactTopicDoesNotCrossSessions(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	s1 := c.Subscribe(T("session", 1))
	s2 := c.Subscribe(T("session", 2))

	c.Publish(b.NewMessage(T("session", 1), "m1", false))

	expectOneOf(t, s1, "m1")
	expectNoMessage(t, s2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	s := c.Subscribe(T("info", 1))
	c.Unsubscribe(s)

	c.Publish(b.NewMessage(T("info", 1), "after-unsub", false))

	select {
	case _, ok := <-s.Channel():
		if ok {
			t.Fatal("expected closed channel after unsubscribe, got a message")
		}
	case <-time.After(60 * time.Millisecond):
		t.Fatal("channel was not closed by Unsubscribe")
	}
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if s, ok := m.Payload.(string); ok {
				out = append(out, s)
			} else {
				t.Fatalf("non-string payload in drain: %#v", m.Payload)
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("drainPayloads: expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %q, want %q (got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}
