package ddl

import (
	"testing"

	"github.com/dsigg/srcpd/internal/srcp"
)

func TestSetQueue_CoalescesSameAddress(t *testing.T) {
	q := newSetQueue()
	q.push(&srcp.Command{Device: srcp.KindGL, Params: []string{"3", "first"}})
	q.push(&srcp.Command{Device: srcp.KindGL, Params: []string{"3", "second"}})
	if q.len() != 1 {
		t.Fatalf("expected one coalesced entry, got %d", q.len())
	}
	cmd, ok := q.pop()
	if !ok || cmd.Params[1] != "second" {
		t.Fatalf("expected the second (most recent) SET to survive, got %+v", cmd)
	}
}

func TestSetQueue_PreservesArrivalOrderOfSlots(t *testing.T) {
	q := newSetQueue()
	q.push(&srcp.Command{Device: srcp.KindGL, Params: []string{"1"}})
	q.push(&srcp.Command{Device: srcp.KindGL, Params: []string{"2"}})
	first, _ := q.pop()
	second, _ := q.pop()
	if first.Params[0] != "1" || second.Params[0] != "2" {
		t.Fatalf("expected FIFO order by slot, got %s then %s", first.Params[0], second.Params[0])
	}
	if _, ok := q.pop(); ok {
		t.Fatal("expected the queue to be empty")
	}
}

func TestSetQueue_DistinguishesDeviceKind(t *testing.T) {
	q := newSetQueue()
	q.push(&srcp.Command{Device: srcp.KindGL, Params: []string{"1"}})
	q.push(&srcp.Command{Device: srcp.KindGA, Params: []string{"1"}})
	if q.len() != 2 {
		t.Fatalf("expected GL addr 1 and GA addr 1 to be distinct slots, got %d", q.len())
	}
}
