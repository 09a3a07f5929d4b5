package ddl

import (
	"time"

	"github.com/dsigg/srcpd/internal/codec"
)

// delayBuffer holds telegrams whose remaining frames carry a same-address
// delay the scheduler cannot sleep through inline (spec.md §4.2). Walked
// once per scheduler iteration; bounded in practice by the number of
// distinct locomotives in refresh rotation.
type delayBuffer struct {
	items []*codec.Telegram
}

func (b *delayBuffer) push(t *codec.Telegram) {
	if !t.Empty() {
		b.items = append(b.items, t)
	}
}

// drain ships the next frame of every telegram whose EarliestNext has
// arrived, via sender, and drops any telegram left with no frames.
func (b *delayBuffer) drain(sender *Sender, now time.Time) {
	if len(b.items) == 0 {
		return
	}
	kept := b.items[:0]
	for _, t := range b.items {
		if now.Before(t.EarliestNext) {
			kept = append(kept, t)
			continue
		}
		_ = sender.Send(t, now)
		if !t.Empty() {
			kept = append(kept, t)
		}
	}
	b.items = kept
}

func (b *delayBuffer) len() int { return len(b.items) }
