package ddl

import "github.com/dsigg/srcpd/internal/srcp"

// coalesceKey identifies one address's slot in the SET queue: a new SET for
// the same device+address replaces (removes) any older undispatched SET
// still queued — "locomotive commands overtake themselves" (spec.md §4.2).
type coalesceKey struct {
	device srcp.Kind
	addr   string
}

// setQueue is the scheduler's queue for GL and GA SET commands. GET/INIT/
// TERM/VERIFY and Power never go through it — they execute immediately.
type setQueue struct {
	order   []coalesceKey
	pending map[coalesceKey]*srcp.Command
}

func newSetQueue() *setQueue {
	return &setQueue{pending: map[coalesceKey]*srcp.Command{}}
}

func (q *setQueue) push(cmd *srcp.Command) {
	if len(cmd.Params) == 0 {
		return
	}
	key := coalesceKey{device: cmd.Device, addr: cmd.Params[0]}
	if _, exists := q.pending[key]; !exists {
		q.order = append(q.order, key)
	}
	q.pending[key] = cmd // replaces the older command quietly, no INFO for the drop
}

// pop returns the oldest still-queued command, in arrival order of its
// address slot (not of the most recent SET to that slot).
func (q *setQueue) pop() (*srcp.Command, bool) {
	if len(q.order) == 0 {
		return nil, false
	}
	key := q.order[0]
	q.order = q.order[1:]
	cmd := q.pending[key]
	delete(q.pending, key)
	return cmd, true
}

func (q *setQueue) len() int { return len(q.order) }
