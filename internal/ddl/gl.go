package ddl

import (
	"strconv"

	"github.com/dsigg/srcpd/internal/codec"
	"github.com/dsigg/srcpd/internal/srcp"
)

// glProtocolToken maps the SRCP wire letter to the codec it selects.
var glProtocolToken = map[string]codec.ProtocolID{
	"M": codec.ProtoMM,
	"N": codec.ProtoDCC,
	"X": codec.ProtoMFX,
}

var glProtocolLetter = map[codec.ProtocolID]string{
	codec.ProtoMM:  "M",
	codec.ProtoDCC: "N",
	codec.ProtoMFX: "X",
}

type glRecord struct {
	addr       int
	proto      codec.ProtocolID
	version    int
	speedSteps int
	nFuncs     int
	uid        uint32
	driveMode  int
	speed      int
	funcs      uint64
	repeats    int // telegram repetition count, doubled on "just stopped"
}

// handleGLInit validates and, on success, creates the locomotive record.
// Always executes immediately (never queued), per spec.md §4.2.
func (s *Scheduler) handleGLInit(cmd *srcp.Command) {
	p := cmd.Params
	if len(p) < 5 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
		return
	}
	addr, err1 := strconv.Atoi(p[0])
	protoID, ok := glProtocolToken[p[1]]
	version, err2 := strconv.Atoi(p[2])
	speedSteps, err3 := strconv.Atoi(p[3])
	nFuncs, err4 := strconv.Atoi(p[4])
	if !ok || err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	c, ok := s.codecs[protoID]
	if !ok {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeUnsupportedDeviceProtocol))
		return
	}
	if addr < 1 || addr > c.GLMaxAddr(version) {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}

	var uid uint32
	if protoID == codec.ProtoMFX {
		if len(p) < 6 {
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
			return
		}
		v, err := strconv.ParseUint(p[5], 10, 32)
		if err != nil {
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
			return
		}
		uid = uint32(v)
	}

	s.events.Reply(cmd.SessionID, srcp.Ok())

	rec := &glRecord{addr: addr, proto: protoID, version: version, speedSteps: speedSteps, nFuncs: nFuncs, uid: uid, repeats: 1}
	if _, exists := s.gl[addr]; !exists {
		s.glOrder = append(s.glOrder, addr)
	}
	s.gl[addr] = rec
	if tel := c.InitGL(addr, uid, nFuncs, s.powerOn); !tel.Empty() {
		s.ship(tel)
	}
	s.refreshProtocolUsage()

	s.events.PublishInfo(srcp.InfoAddr(s.busNum, srcp.KindGL, addr, append([]string{glProtocolLetter[protoID]}, p[2:]...)...))
}

func (s *Scheduler) handleGLTerm(cmd *srcp.Command) {
	if len(cmd.Params) < 1 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
		return
	}
	addr, err := strconv.Atoi(cmd.Params[0])
	if err != nil {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	rec, ok := s.gl[addr]
	if !ok {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	delete(s.gl, addr)
	s.glOrder = removeInt(s.glOrder, addr)
	if c, ok := s.codecs[rec.proto]; ok {
		c.TermGL(addr)
	}
	s.refreshProtocolUsage()
	s.events.Reply(cmd.SessionID, srcp.Ok())
	s.events.ClearRetained(s.busNum, srcp.KindGL, addr)
}

func (s *Scheduler) handleGLGet(cmd *srcp.Command) {
	if len(cmd.Params) < 1 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
		return
	}
	addr, err := strconv.Atoi(cmd.Params[0])
	if err != nil {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	rec, ok := s.gl[addr]
	if !ok {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	s.events.Reply(cmd.SessionID, srcp.Ok())
	s.emitGLInfo(rec)
}

func (s *Scheduler) emitGLInfo(rec *glRecord) {
	fields := []string{strconv.Itoa(rec.driveMode), strconv.Itoa(rec.speed), strconv.Itoa(rec.speedSteps)}
	for i := 0; i < rec.nFuncs+1; i++ {
		fields = append(fields, strconv.Itoa(int((rec.funcs>>uint(i))&1)))
	}
	s.events.PublishInfo(srcp.InfoAddr(s.busNum, srcp.KindGL, rec.addr, fields...))
}

// handleGLSet validates immediately (the protocol demands an immediate
// handshake ack) and enqueues execution — SET is never executed inline.
func (s *Scheduler) handleGLSet(cmd *srcp.Command) {
	p := cmd.Params
	if len(p) < 4 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
		return
	}
	addr, err0 := strconv.Atoi(p[0])
	driveMode, err1 := strconv.Atoi(p[1])
	v, err2 := strconv.Atoi(p[2])
	vMax, err3 := strconv.Atoi(p[3])
	if err0 != nil || err1 != nil || err2 != nil || err3 != nil || driveMode < 0 || driveMode > 2 || vMax <= 0 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	for _, f := range p[4:] {
		fv, err := strconv.Atoi(f)
		if err != nil || (fv != 0 && fv != 1) {
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
			return
		}
	}
	if _, ok := s.gl[addr]; !ok {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	s.events.Reply(cmd.SessionID, srcp.Ok())
	s.setQueue.push(cmd)
}

// executeGLSet is invoked once per queued SET command, from the scheduler
// loop, never concurrently with anything else touching gl state.
func (s *Scheduler) executeGLSet(cmd *srcp.Command) {
	p := cmd.Params
	addr, _ := strconv.Atoi(p[0])
	rec, ok := s.gl[addr]
	if !ok {
		return // TERMed while queued
	}
	driveMode, _ := strconv.Atoi(p[1])
	v, _ := strconv.Atoi(p[2])
	vMax, _ := strconv.Atoi(p[3])

	var funcs uint64
	for i, f := range p[4:] {
		fv, _ := strconv.Atoi(f)
		if fv != 0 {
			funcs |= 1 << uint(i)
		}
	}

	newSpeed := (rec.speedSteps * v) / vMax
	if newSpeed == 0 && rec.speed != 0 {
		rec.repeats *= 2
	} else {
		rec.repeats = 1
	}
	rec.driveMode, rec.speed, rec.funcs = driveMode, newSpeed, funcs

	c := s.codecs[rec.proto]
	if c == nil {
		return
	}
	tel := c.GLNewTel(addr, false, s.triggerGL)
	c.GLBaseTel(addr, driveMode, newSpeed, rec.speedSteps, funcs, tel)
	c.GLAdditionalTel(addr, false, funcs, tel)
	tel.Repetitions = rec.repeats
	s.ship(tel)

	s.emitGLInfo(rec)
}

func removeInt(list []int, v int) []int {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
