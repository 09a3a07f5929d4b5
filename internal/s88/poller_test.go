package s88

import (
	"testing"

	"github.com/dsigg/srcpd/internal/bus"
	"github.com/dsigg/srcpd/internal/config"
	"github.com/dsigg/srcpd/internal/srcp"
)

type fakeSPI struct {
	frames [][]byte
	i      int
}

func (f *fakeSPI) Transfer(data []byte, speedHz uint32, readLen int) ([]byte, error) {
	if f.i >= len(f.frames) {
		return f.frames[len(f.frames)-1], nil
	}
	out := f.frames[f.i]
	f.i++
	return out, nil
}

func newTestEvents() *srcp.EventBus {
	b := bus.NewBus(8)
	return srcp.NewEventBus(b.NewConnection("test"))
}

func TestContact_MajorityDebounce(t *testing.T) {
	c := &contact{}
	if c.sample(3, true) {
		t.Fatal("should not settle before repeat samples collected")
	}
	if c.sample(3, true) {
		t.Fatal("still short of repeat")
	}
	if !c.sample(3, true) {
		t.Fatal("expected a transition once 3 consistent samples arrive")
	}
	if c.sample(3, true) {
		t.Fatal("no change expected, state already true")
	}
}

func TestContact_FlickerDoesNotFlip(t *testing.T) {
	c := &contact{}
	c.sample(3, true)
	c.sample(3, true)
	c.sample(3, true) // now true
	if c.sample(3, false) {
		t.Fatal("single false sample among mostly-true history should not flip state")
	}
}

func TestPoller_PublishesOnTransition(t *testing.T) {
	cfg := config.S88Config{Bus: 1, RefreshMs: 10, Repeat: 1, NumberFB: [4]int{1, 0, 0, 0}}
	spi := &fakeSPI{frames: [][]byte{{0x01}}}
	events := newTestEvents()
	p := NewPoller(1, cfg, spi, events)

	sub := events.SubscribeInfo()
	p.poll()

	select {
	case msg := <-sub.Channel():
		ev := msg.Payload.(*srcp.Event)
		if ev.Kind != srcp.KindFB || ev.Addr != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected a published FB transition")
	}
}
