// Package s88 polls an S88 feedback chain over its own SPI bus and exposes
// debounced contact state read-only to the session layer (spec.md §4/§6:
// "a straightforward periodic SPI read with majority-vote debouncing").
package s88

import (
	"sync"
	"time"

	"github.com/dsigg/srcpd/internal/config"
	"github.com/dsigg/srcpd/internal/srcp"
)

// SPIPort is the subset of ddlio.SPI the poller needs.
type SPIPort interface {
	Transfer(data []byte, speedHz uint32, readLen int) ([]byte, error)
}

// contact tracks majority-of-N debouncing for one feedback bit.
type contact struct {
	history []bool
	state   bool
}

func (c *contact) sample(repeat int, raw bool) (changed bool) {
	c.history = append(c.history, raw)
	if len(c.history) > repeat {
		c.history = c.history[len(c.history)-repeat:]
	}
	if len(c.history) < repeat {
		return false
	}
	count := 0
	for _, v := range c.history {
		if v {
			count++
		}
	}
	newState := count*2 > repeat
	if newState != c.state {
		c.state = newState
		return true
	}
	return false
}

// Poller owns one S88 bus's SPI handle, polling it every refresh interval
// and publishing debounced state transitions.
type Poller struct {
	busNum int
	cfg    config.S88Config
	port   SPIPort
	events *srcp.EventBus

	mu       sync.RWMutex
	contacts []*contact

	stop chan struct{}
}

func NewPoller(busNum int, cfg config.S88Config, port SPIPort, events *srcp.EventBus) *Poller {
	n := 0
	for _, c := range cfg.NumberFB {
		n += c * 8
	}
	contacts := make([]*contact, n)
	for i := range contacts {
		contacts[i] = &contact{}
	}
	return &Poller{busNum: busNum, cfg: cfg, port: port, events: events, contacts: contacts, stop: make(chan struct{})}
}

// Run polls until Stop is called. Intended to be launched as its own
// goroutine, one per configured S88 bus.
func (p *Poller) Run() {
	interval := time.Duration(p.cfg.RefreshMs) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) Stop() { close(p.stop) }

func (p *Poller) poll() {
	nBytes := (len(p.contacts) + 7) / 8
	if nBytes == 0 {
		return
	}
	raw, err := p.port.Transfer(make([]byte, nBytes), 25000, nBytes)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.contacts {
		byteIdx, bitIdx := i/8, i%8
		bit := byteIdx < len(raw) && (raw[byteIdx]>>uint(bitIdx))&1 == 1
		if c.sample(p.cfg.Repeat, bit) {
			state := "0"
			if c.state {
				state = "1"
			}
			p.events.PublishInfo(srcp.InfoAddr(p.busNum, srcp.KindFB, i+1, state))
		}
	}
}

// Get returns the current debounced state of contact addr (1-based), and
// whether that address is within the configured range.
func (p *Poller) Get(addr int) (bool, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if addr < 1 || addr > len(p.contacts) {
		return false, false
	}
	return p.contacts[addr-1].state, true
}
