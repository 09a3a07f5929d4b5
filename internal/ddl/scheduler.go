package ddl

import (
	"time"

	"github.com/dsigg/srcpd/internal/codec"
	"github.com/dsigg/srcpd/internal/config"
	"github.com/dsigg/srcpd/internal/srcp"
)

// DSRLine is the subset of ddlio.Line the short-circuit detector needs.
type DSRLine interface {
	Read() (int, error)
}

// Scheduler is one DDL bus: a single goroutine owning the SPI port and the
// bus's GPIO lines, running the cooperative loop from spec.md §4.2 — drain
// one command, take one refresh/background step, drain the delayed-send
// buffer, repeat.
type Scheduler struct {
	busNum int
	cmds   chan *srcp.Command
	events *srcp.EventBus

	codecs map[codec.ProtocolID]codec.Codec

	gl       map[int]*glRecord
	glOrder  []int
	glCursor int

	ga      map[int]*gaRecord
	gaOrder []int

	sm *smState

	setQueue *setQueue
	delayed  *delayBuffer
	sender   *Sender

	triggerGL, triggerGA, triggerSM bool

	powerOn        bool
	powerChangedAt time.Time

	watchdogEnabled bool
	lastCmdAt       time.Time

	ackLine         AckLine

	dsr             DSRLine
	dsrInvers       bool
	siggmode        bool
	rts, dtr, cts   TriggerLine
	shortcutDelay   time.Duration
	shortcutSince   time.Time
	shortcutTimeout time.Duration

	protoUseCount map[codec.ProtocolID]int

	mfxRDSQual DSRLine
}

// SetMFXRDS wires the RDS return-channel "qualifier" GPIO line the
// discovery poller samples after each search_new_decoder probe.
func (s *Scheduler) SetMFXRDS(qual DSRLine) { s.mfxRDSQual = qual }

// NewScheduler wires a bus's codecs and hardware handles into a ready-to-run
// Scheduler. codecs must contain every protocol enabled for this bus; dsr/
// rts/dtr/cts may be nil when short-circuit detection (siggmode) is off.
func NewScheduler(busNum int, cfg config.DDLConfig, codecs map[codec.ProtocolID]codec.Codec, port SPIPort, trigger TriggerLine, ackLine AckLine, dsr DSRLine, rts, dtr, cts TriggerLine) *Scheduler {
	return &Scheduler{
		busNum:          busNum,
		cmds:            make(chan *srcp.Command, 64),
		codecs:          codecs,
		gl:              map[int]*glRecord{},
		ga:              map[int]*gaRecord{},
		sm:              newSMState(),
		setQueue:        newSetQueue(),
		delayed:         &delayBuffer{},
		sender:          NewSender(port, trigger),
		triggerGL:       cfg.TriggerGL,
		triggerGA:       cfg.TriggerGA,
		triggerSM:       cfg.TriggerSM,
		watchdogEnabled: cfg.Watchdog,
		ackLine:         ackLine,
		dsr:             dsr,
		dsrInvers:       cfg.DSRInvers,
		siggmode:        cfg.Siggmode,
		rts:             rts,
		dtr:             dtr,
		cts:             cts,
		shortcutDelay:   time.Duration(cfg.ShortcutDelayMs) * time.Millisecond,
		shortcutTimeout: time.Duration(cfg.TimeoutShortcutPowerOff) * time.Millisecond,
		protoUseCount:   map[codec.ProtocolID]int{},
	}
}

// Commands implements srcp.Bus.
func (s *Scheduler) Commands() chan<- *srcp.Command { return s.cmds }

// Attach gives the scheduler its publish surface; called once, before Run,
// by whatever builds the bus registry.
func (s *Scheduler) Attach(events *srcp.EventBus) { s.events = events }

// Run is the scheduler's goroutine body. It returns only when cmds is closed
// (clean shutdown).
func (s *Scheduler) Run() {
	for {
		select {
		case cmd, ok := <-s.cmds:
			if !ok {
				return
			}
			s.handle(cmd)
		default:
		}
		s.step()
		for s.setQueue.len() > 0 && !s.powerOn {
			// queued SETs accumulate harmlessly while power is off; nothing
			// to execute until POWER ON, so don't spin tight.
			break
		}
	}
}

// step runs exactly one iteration of the non-command part of the loop:
// execute at most one queued SET, take one refresh-or-background step, and
// drain the delayed-send buffer.
func (s *Scheduler) step() {
	now := time.Now()

	s.pollShortcut(now)
	s.pollWatchdog(now)

	if !s.powerOn {
		time.Sleep(10 * time.Millisecond)
		return
	}

	if cmd, ok := s.setQueue.pop(); ok {
		switch cmd.Device {
		case srcp.KindGL:
			s.executeGLSet(cmd)
		case srcp.KindGA:
			s.executeGASet(cmd)
		}
	}

	s.refreshStep(now)
	s.gaBackgroundStep(now)
	s.delayed.drain(s.sender, now)
}

// handle dispatches one parsed command. GET/INIT/TERM/VERIFY and Power
// always execute inline; GL/GA SET commands are coalesced onto the queue.
func (s *Scheduler) handle(cmd *srcp.Command) {
	s.lastCmdAt = time.Now()

	switch cmd.Device {
	case srcp.KindPower:
		s.handlePower(cmd)
	case srcp.KindGL:
		switch cmd.Verb {
		case srcp.VerbInit:
			s.handleGLInit(cmd)
		case srcp.VerbTerm:
			s.handleGLTerm(cmd)
		case srcp.VerbGet:
			s.handleGLGet(cmd)
		case srcp.VerbSet:
			s.handleGLSet(cmd)
		default:
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeUnsupportedOperation))
		}
	case srcp.KindGA:
		switch cmd.Verb {
		case srcp.VerbInit:
			s.handleGAInit(cmd)
		case srcp.VerbTerm:
			s.handleGATerm(cmd)
		case srcp.VerbGet:
			s.handleGAGet(cmd)
		case srcp.VerbSet:
			s.handleGASet(cmd)
		case srcp.VerbVerify:
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeUnsupportedOperation))
		}
	case srcp.KindSM:
		switch cmd.Verb {
		case srcp.VerbInit:
			s.handleSMInit(cmd)
		case srcp.VerbTerm:
			s.handleSMTerm(cmd)
		case srcp.VerbGet:
			s.handleSMGet(cmd)
		case srcp.VerbSet:
			s.handleSMSet(cmd)
		case srcp.VerbVerify:
			s.handleSMVerify(cmd)
		}
	default:
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeUnsupportedDevice))
	}
}

func (s *Scheduler) ship(tel *codec.Telegram) {
	if tel.Empty() {
		return
	}
	now := time.Now()
	_ = s.sender.Send(tel, now)
	if !tel.Empty() {
		s.delayed.push(tel)
	}
}

// refreshProtocolUsage recomputes per-protocol locomotive counts; used to
// decide whether a protocol needs idle packets interleaved into the refresh
// rotation (spec.md §4.2: "in use" means 2 or more locomotives for MM/DCC).
func (s *Scheduler) refreshProtocolUsage() {
	counts := map[codec.ProtocolID]int{}
	for _, rec := range s.gl {
		counts[rec.proto]++
	}
	s.protoUseCount = counts
}

func (s *Scheduler) protocolInUse(id codec.ProtocolID) bool {
	return s.protoUseCount[id] >= 2
}

// refreshStep advances the rotation by exactly one locomotive (refreshing
// its current state on-air) and, on the iterations it isn't a locomotive's
// turn, ships one idle or background telegram per protocol not already "in
// use" by the rotation above.
func (s *Scheduler) refreshStep(now time.Time) {
	if s.glCursor < len(s.glOrder) {
		addr := s.glOrder[s.glCursor]
		s.glCursor++
		if rec, ok := s.gl[addr]; ok {
			if c := s.codecs[rec.proto]; c != nil {
				tel := c.GLNewTel(addr, true, s.triggerGL)
				c.GLBaseTel(addr, rec.driveMode, rec.speed, rec.speedSteps, rec.funcs, tel)
				c.GLAdditionalTel(addr, true, rec.funcs, tel)
				tel.Repetitions = rec.repeats
				s.ship(tel)
			}
		}
		return
	}
	s.glCursor = 0

	for id, c := range s.codecs {
		if s.protocolInUse(id) {
			continue
		}
		var tel *codec.Telegram
		if s.powerOn {
			tel = c.IdleTel()
		} else {
			tel = c.IdleTelPowerOff()
		}
		if tel.Empty() {
			tel = c.BackgroundTel(s.powerOn)
			if id == codec.ProtoMFX && !tel.Empty() {
				s.ship(tel)
				s.pollMFXDiscovery()
				continue
			}
		}
		s.ship(tel)
	}
}

// pollMFXDiscovery samples the RDS qualifier line once after a
// search_new_decoder probe and feeds the result into the MFX codec's
// registration state machine. The probe's two silent capture windows are
// real hardware timing the codec's telegram already reserves; a single
// post-probe sample is a simplification of sampling both windows
// independently (see DESIGN.md).
func (s *Scheduler) pollMFXDiscovery() {
	if s.mfxRDSQual == nil {
		return
	}
	m, ok := s.codecs[codec.ProtoMFX].(*codec.MFX)
	if !ok {
		return
	}
	v, err := s.mfxRDSQual.Read()
	if err != nil {
		return
	}
	result, uid := m.EvalNewRegistration(v != 0)
	if result == codec.DiscoveryOK {
		fields := append([]string{"AUTO"}, srcp.FieldsInt(int(uid))...)
		s.events.PublishInfo(srcp.Info(s.busNum, srcp.KindGL, fields...))
	}
}

const watchdogTimeout = 2 * time.Second

// pollWatchdog implements spec.md's power watchdog: when enabled and power
// is on, no command arriving for 2s synthesizes this bus's own "SET POWER
// OFF" rather than waiting for an operator or another bus's shortcut.
func (s *Scheduler) pollWatchdog(now time.Time) {
	if !s.watchdogEnabled || !s.powerOn {
		return
	}
	if now.Sub(s.lastCmdAt) < watchdogTimeout {
		return
	}
	s.setPower(false)
}

// pollShortcut implements the siggmode short-circuit detector (spec.md §6):
// the DSR input line reflects the booster's fault output; if it stays
// asserted continuously for shortcutDelay, drive RTS/DTR high (they are not
// released again here) to latch the relay off and, if configured, force POWER OFF after timeoutShortcutPowerOff.
func (s *Scheduler) pollShortcut(now time.Time) {
	if !s.siggmode || s.dsr == nil {
		return
	}
	v, err := s.dsr.Read()
	if err != nil {
		return
	}
	asserted := v != 0
	if s.dsrInvers {
		asserted = !asserted
	}
	if !asserted {
		s.shortcutSince = time.Time{}
		return
	}
	if s.shortcutSince.IsZero() {
		s.shortcutSince = now
		return
	}
	if now.Sub(s.shortcutSince) < s.shortcutDelay {
		return
	}
	if s.rts != nil {
		s.rts.Write(1)
	}
	if s.dtr != nil {
		s.dtr.Write(1)
	}
	if s.shortcutTimeout > 0 && now.Sub(s.shortcutSince) >= s.shortcutTimeout && s.powerOn {
		s.setPower(false)
		s.events.PublishInfo(srcp.Info(s.busNum, srcp.KindPower, "OFF"))
	}
}
