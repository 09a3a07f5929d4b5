package ddl

import (
	"testing"

	"github.com/dsigg/srcpd/internal/codec"
	"github.com/dsigg/srcpd/internal/srcp"
)

func TestPower_SetOnEmitsInfoOnlyOnTransition(t *testing.T) {
	s, _, events := newTestScheduler(codec.ProtoMM, 80, 255)
	s.powerOn = false
	infoSub := events.SubscribeInfo()
	replySub := events.SubscribeSession(1)

	s.handlePower(&srcp.Command{SessionID: 1, Verb: srcp.VerbSet, Device: srcp.KindPower, Params: []string{"ON"}})

	if reply := <-replySub.Channel(); reply.Payload.(*srcp.Event).Code != srcp.CodeOK {
		t.Fatalf("expected OK reply, got %+v", reply.Payload)
	}
	ev := (<-infoSub.Channel()).Payload.(*srcp.Event)
	if ev.Fields[0] != "ON" {
		t.Fatalf("expected POWER ON info, got %+v", ev)
	}
	if !s.powerOn {
		t.Fatal("expected powerOn true after SET ON")
	}

	// Setting ON again (no transition) must not publish a second INFO.
	s.handlePower(&srcp.Command{SessionID: 1, Verb: srcp.VerbSet, Device: srcp.KindPower, Params: []string{"ON"}})
	<-replySub.Channel()
	select {
	case msg := <-infoSub.Channel():
		t.Fatalf("unexpected INFO on no-op SET: %+v", msg.Payload)
	default:
	}
}

func TestPower_SetBadValue(t *testing.T) {
	s, _, events := newTestScheduler(codec.ProtoMM, 80, 255)
	replySub := events.SubscribeSession(1)
	s.handlePower(&srcp.Command{SessionID: 1, Verb: srcp.VerbSet, Device: srcp.KindPower, Params: []string{"MAYBE"}})
	reply := (<-replySub.Channel()).Payload.(*srcp.Event)
	if reply.Code != srcp.CodeWrongValue {
		t.Fatalf("expected 412, got %v", reply.Code)
	}
}
