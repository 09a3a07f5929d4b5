// Package ddl is the DDL bus scheduler: one goroutine per configured bus
// that owns the SPI handle and GPIO lines, multiplexes command execution,
// refresh rotation, background protocol housekeeping and the delayed-send
// buffer (spec.md §4.2).
package ddl

import (
	"errors"
	"time"

	"github.com/dsigg/srcpd/internal/codec"
)

// SPIPort is the subset of ddlio.SPI the scheduler needs; a fake
// implementation backs every scheduler test.
type SPIPort interface {
	Transfer(data []byte, speedHz uint32, readLen int) ([]byte, error)
}

// TriggerLine is the subset of ddlio.Line needed for the one-shot
// oscilloscope-trigger pulse.
type TriggerLine interface {
	Write(v int) error
}

// Sender is the scheduler-private SPI output helper (spec.md §4.4.4): it
// carries the previous frame's trailing pause across calls, fires the
// trigger line around the transfer, and repeats the transfer the
// telegram's requested number of times.
type Sender struct {
	port     SPIPort
	trigger  TriggerLine
	pauseEnd time.Time
}

func NewSender(port SPIPort, trigger TriggerLine) *Sender {
	return &Sender{port: port, trigger: trigger}
}

// Send ships the telegram's next frame and pops it off. Callers that get
// back a non-empty telegram are expected to push it into a delay buffer
// (or, for short locomotive sets, sleep the remaining delay inline) rather
// than calling Send again immediately — that decision belongs to the
// scheduler, not this helper.
func (s *Sender) Send(tel *codec.Telegram, now time.Time) error {
	if tel.Empty() {
		return errors.New("ddl: attempted to send an empty telegram")
	}

	if tel.Trigger && s.trigger != nil {
		s.trigger.Write(1)
		defer s.trigger.Write(0)
	}

	if now.Before(s.pauseEnd) {
		time.Sleep(s.pauseEnd.Sub(now))
	}

	frame := tel.Frames[0]
	readLen := 0
	if len(tel.Frames) == 1 && len(tel.ReadBuf) == len(frame) {
		readLen = len(frame)
	}

	reps := tel.Repetitions
	if reps < 1 {
		reps = 1
	}
	var rx []byte
	for i := 0; i < reps; i++ {
		r, err := s.port.Transfer(frame, uint32(tel.ClockHz), readLen)
		if err != nil {
			return err
		}
		rx = r
	}
	if rx != nil {
		tel.ReadBuf = rx
	}

	tel.Frames = tel.Frames[1:]
	delay := tel.MinDelay
	if tel.DelaySecond && len(tel.Frames) == 0 {
		delay = 0 // the delay only gates the gap before the second frame
	}
	s.pauseEnd = time.Now().Add(delay)
	tel.EarliestNext = s.pauseEnd
	return nil
}
