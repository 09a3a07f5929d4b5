package ddl

import (
	"time"

	"github.com/dsigg/srcpd/internal/srcp"
)

// handlePower is the Power device: GET/SET ON|OFF, both executed inline
// (never queued) per spec.md §4.2. A transition broadcasts "INFO <bus>
// POWER <ON|OFF>" to every info-mode session.
func (s *Scheduler) handlePower(cmd *srcp.Command) {
	switch cmd.Verb {
	case srcp.VerbGet:
		s.events.Reply(cmd.SessionID, srcp.Ok())
		s.emitPowerInfo()
	case srcp.VerbSet:
		if len(cmd.Params) < 1 {
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
			return
		}
		switch cmd.Params[0] {
		case "ON":
			s.events.Reply(cmd.SessionID, srcp.Ok())
			s.setPower(true)
		case "OFF":
			s.events.Reply(cmd.SessionID, srcp.Ok())
			s.setPower(false)
		default:
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		}
	default:
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeUnsupportedOperation))
	}
}

func (s *Scheduler) setPower(on bool) {
	if s.powerOn == on {
		return
	}
	s.powerOn = on
	s.powerChangedAt = time.Now()
	s.emitPowerInfo()
}

func (s *Scheduler) emitPowerInfo() {
	state := "OFF"
	if s.powerOn {
		state = "ON"
	}
	s.events.PublishInfo(srcp.Info(s.busNum, srcp.KindPower, state))
}
