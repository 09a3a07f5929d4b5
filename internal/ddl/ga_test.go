package ddl

import (
	"testing"
	"time"

	"github.com/dsigg/srcpd/internal/codec"
	"github.com/dsigg/srcpd/internal/srcp"
)

func TestDecoderSlot_GroupsFourAddressesPerDecoder(t *testing.T) {
	cases := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 1, 8: 1, 9: 2}
	for addr, want := range cases {
		if got := decoderSlot(addr); got != want {
			t.Errorf("decoderSlot(%d) = %d, want %d", addr, got, want)
		}
	}
}

func TestGA_InitThenSet(t *testing.T) {
	s, _, events := newTestScheduler(codec.ProtoMM, 80, 255)
	replySub := events.SubscribeSession(1)

	s.handleGAInit(&srcp.Command{SessionID: 1, Verb: srcp.VerbInit, Device: srcp.KindGA, Params: []string{"1", "M"}})
	if reply := (<-replySub.Channel()).Payload.(*srcp.Event); reply.Code != srcp.CodeOK {
		t.Fatalf("INIT expected OK, got %v", reply.Code)
	}

	s.handleGASet(&srcp.Command{SessionID: 1, Verb: srcp.VerbSet, Device: srcp.KindGA, Params: []string{"1", "0", "1"}})
	if reply := (<-replySub.Channel()).Payload.(*srcp.Event); reply.Code != srcp.CodeOK {
		t.Fatalf("SET expected OK, got %v", reply.Code)
	}
	cmd, ok := s.setQueue.pop()
	if !ok {
		t.Fatal("expected the SET to be queued")
	}
	s.executeGASet(cmd)
	rec := s.ga[1]
	if rec.port != 0 || rec.value != 1 {
		t.Fatalf("unexpected record after execute: %+v", rec)
	}
}

func TestGA_SharedDecoderDefersSecondActivation(t *testing.T) {
	s, _, events := newTestScheduler(codec.ProtoMM, 80, 255)
	replySub := events.SubscribeSession(1)

	for _, addr := range []string{"1", "2"} {
		s.handleGAInit(&srcp.Command{SessionID: 1, Verb: srcp.VerbInit, Device: srcp.KindGA, Params: []string{addr, "M"}})
		<-replySub.Channel()
	}

	// Activate address 1 with a pending auto-off timeout.
	s.handleGASet(&srcp.Command{SessionID: 1, Verb: srcp.VerbSet, Device: srcp.KindGA, Params: []string{"1", "0", "1", "500"}})
	<-replySub.Channel()
	cmd, _ := s.setQueue.pop()
	s.executeGASet(cmd)
	if !s.ga[1].autoOffSet {
		t.Fatal("expected addr 1 to have autoOffSet after activation with a timeout")
	}

	// Address 2 shares the same decoder (decoderSlot(1)==decoderSlot(2)==0);
	// its SET must be deferred (requeued) rather than raced on-air.
	s.handleGASet(&srcp.Command{SessionID: 1, Verb: srcp.VerbSet, Device: srcp.KindGA, Params: []string{"2", "0", "1"}})
	<-replySub.Channel()
	cmd2, _ := s.setQueue.pop()
	s.executeGASet(cmd2)
	if !s.ga[2].deferred {
		t.Fatal("expected addr 2 to be marked deferred while addr 1's decoder is busy")
	}
	if s.setQueue.len() != 1 {
		t.Fatalf("expected the deferred SET to be requeued, got queue len %d", s.setQueue.len())
	}
}

func TestGA_BackgroundStepFiresAutoOff(t *testing.T) {
	s, _, events := newTestScheduler(codec.ProtoMM, 80, 255)
	replySub := events.SubscribeSession(1)
	s.handleGAInit(&srcp.Command{SessionID: 1, Verb: srcp.VerbInit, Device: srcp.KindGA, Params: []string{"1", "M"}})
	<-replySub.Channel()
	s.handleGASet(&srcp.Command{SessionID: 1, Verb: srcp.VerbSet, Device: srcp.KindGA, Params: []string{"1", "0", "1", "10"}})
	<-replySub.Channel()
	cmd, _ := s.setQueue.pop()
	s.executeGASet(cmd)

	past := time.Now().Add(time.Hour)
	s.gaBackgroundStep(past)
	if s.ga[1].autoOffSet {
		t.Fatal("expected autoOffSet cleared after background step fires")
	}
	if s.ga[1].value != 0 {
		t.Fatalf("expected value flipped back to 0, got %d", s.ga[1].value)
	}
}
