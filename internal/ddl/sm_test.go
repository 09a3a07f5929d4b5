package ddl

import (
	"testing"

	"github.com/dsigg/srcpd/internal/bus"
	"github.com/dsigg/srcpd/internal/codec"
	"github.com/dsigg/srcpd/internal/config"
	"github.com/dsigg/srcpd/internal/srcp"
)

func newSMTestScheduler() (*Scheduler, *srcp.EventBus) {
	codecs := map[codec.ProtocolID]codec.Codec{codec.ProtoDCC: codec.NewDCC()}
	s := NewScheduler(1, config.DDLConfig{Bus: 1}, codecs, &fakeSPIPort{}, nil, nil, nil, nil, nil, nil)
	events := srcp.NewEventBus(bus.NewBus(8).NewConnection("test"))
	s.Attach(events)
	return s, events
}

func TestSM_SecondInitForbidden(t *testing.T) {
	s, events := newSMTestScheduler()
	replySub := events.SubscribeSession(1)

	s.handleSMInit(&srcp.Command{SessionID: 1, Verb: srcp.VerbInit, Device: srcp.KindSM, Params: []string{"NMRA"}})
	if reply := (<-replySub.Channel()).Payload.(*srcp.Event); reply.Code != srcp.CodeOK {
		t.Fatalf("first INIT expected OK, got %v", reply.Code)
	}

	replySub2 := events.SubscribeSession(2)
	s.handleSMInit(&srcp.Command{SessionID: 2, Verb: srcp.VerbInit, Device: srcp.KindSM, Params: []string{"NMRA"}})
	reply2 := (<-replySub2.Channel()).Payload.(*srcp.Event)
	if reply2.Code != srcp.CodeForbidden {
		t.Fatalf("expected 415 for a second INIT while session 1 holds the lock, got %v", reply2.Code)
	}
	if s.sm.session != 1 {
		t.Fatalf("expected session 1 to retain the SM lock, got %d", s.sm.session)
	}
}

func TestSM_InitUnconfiguredProtocol(t *testing.T) {
	s, events := newSMTestScheduler()
	replySub := events.SubscribeSession(1)
	s.handleSMInit(&srcp.Command{SessionID: 1, Verb: srcp.VerbInit, Device: srcp.KindSM, Params: []string{"MFX"}})
	reply := (<-replySub.Channel()).Payload.(*srcp.Event)
	if reply.Code != srcp.CodeUnsupportedDeviceProtocol {
		t.Fatalf("expected 420 when MFX codec isn't configured on this bus, got %v", reply.Code)
	}
}

func TestParseSM_CVGrammar(t *testing.T) {
	s, events := newSMTestScheduler()
	replySub := events.SubscribeSession(1)
	s.handleSMInit(&srcp.Command{SessionID: 1, Verb: srcp.VerbInit, Device: srcp.KindSM, Params: []string{"NMRA"}})
	<-replySub.Channel()

	addr, typ, params, value, ok := s.parseSM(&srcp.Command{SessionID: 1, Params: []string{"3", "CV", "1", "5"}}, true)
	if !ok {
		t.Fatal("expected a valid CV parse")
	}
	if addr != 3 || typ != "CV" || len(params) != 1 || params[0] != 1 || value != 5 {
		t.Fatalf("unexpected parse: addr=%d typ=%s params=%v value=%d", addr, typ, params, value)
	}
}

func TestParseSM_RejectsWrongSession(t *testing.T) {
	s, events := newSMTestScheduler()
	replySub := events.SubscribeSession(1)
	s.handleSMInit(&srcp.Command{SessionID: 1, Verb: srcp.VerbInit, Device: srcp.KindSM, Params: []string{"NMRA"}})
	<-replySub.Channel()

	otherReplies := events.SubscribeSession(2)
	_, _, _, _, ok := s.parseSM(&srcp.Command{SessionID: 2, Params: []string{"3", "CV", "1", "5"}}, true)
	if ok {
		t.Fatal("expected parseSM to reject a session that doesn't hold the SM lock")
	}
	reply := (<-otherReplies.Channel()).Payload.(*srcp.Event)
	if reply.Code != srcp.CodeForbidden {
		t.Fatalf("expected 415, got %v", reply.Code)
	}
}

func TestSM_GetCVReadsEightBitsWithNoAck(t *testing.T) {
	s, events := newSMTestScheduler()
	replySub := events.SubscribeSession(1)
	s.handleSMInit(&srcp.Command{SessionID: 1, Verb: srcp.VerbInit, Device: srcp.KindSM, Params: []string{"NMRA"}})
	<-replySub.Channel()

	// No ack line wired: every bit-verify reports false, so CV reads as 0
	// without blocking (dccCVBitVerify short-circuits when ackLine is nil).
	s.handleSMGet(&srcp.Command{SessionID: 1, Params: []string{"3", "CV", "1"}})
	reply := (<-replySub.Channel()).Payload.(*srcp.Event)
	if reply.Code != srcp.CodeOK {
		t.Fatalf("expected OK, got %v", reply.Code)
	}
	if reply.Fields[1] != "0" {
		t.Fatalf("expected CV value 0 with no ack line, got %v", reply.Fields)
	}
}
