package ddl

import (
	"strconv"
	"time"

	"github.com/dsigg/srcpd/internal/codec"
	"github.com/dsigg/srcpd/internal/srcp"
)

type gaRecord struct {
	addr        int
	proto       codec.ProtocolID
	version     int
	port        int
	value       int
	deferred    bool
	deferredAt  time.Time
	autoOffAt   time.Time
	autoOffSet  bool
}

// decoderSlot groups accessory addresses by the 4-port decoder they share.
// executeGASet requeues a SET while another address of the same decoder has
// a scheduler-managed auto-off pending; it does not limit how many such
// requeued SETs one decoder may have waiting at a time.
func decoderSlot(addr int) int { return (addr - 1) / 4 }

func (s *Scheduler) handleGAInit(cmd *srcp.Command) {
	p := cmd.Params
	if len(p) < 2 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
		return
	}
	addr, err1 := strconv.Atoi(p[0])
	protoID, ok := glProtocolToken[p[1]]
	if !ok || err1 != nil {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	c, ok := s.codecs[protoID]
	if !ok {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeUnsupportedDeviceProtocol))
		return
	}
	version := 1
	if protoID == codec.ProtoDCC {
		if len(p) < 3 {
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
			return
		}
		version, err1 = strconv.Atoi(p[2])
		if err1 != nil || (version != 1 && version != 2) {
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
			return
		}
	}
	if addr < 1 || addr > c.GAMaxAddr(version) {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}

	s.events.Reply(cmd.SessionID, srcp.Ok())
	if _, exists := s.ga[addr]; !exists {
		s.gaOrder = append(s.gaOrder, addr)
	}
	s.ga[addr] = &gaRecord{addr: addr, proto: protoID, version: version}
	s.events.PublishInfo(srcp.InfoAddr(s.busNum, srcp.KindGA, addr, p[1:]...))
}

func (s *Scheduler) handleGATerm(cmd *srcp.Command) {
	if len(cmd.Params) < 1 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
		return
	}
	addr, err := strconv.Atoi(cmd.Params[0])
	if err != nil {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	if _, ok := s.ga[addr]; !ok {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	delete(s.ga, addr)
	s.gaOrder = removeInt(s.gaOrder, addr)
	s.events.Reply(cmd.SessionID, srcp.Ok())
	s.events.ClearRetained(s.busNum, srcp.KindGA, addr)
}

func (s *Scheduler) handleGAGet(cmd *srcp.Command) {
	if len(cmd.Params) < 1 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
		return
	}
	addr, err := strconv.Atoi(cmd.Params[0])
	if err != nil {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	rec, ok := s.ga[addr]
	if !ok {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	s.events.Reply(cmd.SessionID, srcp.Ok())
	s.emitGAInfo(rec)
}

func (s *Scheduler) emitGAInfo(rec *gaRecord) {
	s.events.PublishInfo(srcp.InfoAddr(s.busNum, srcp.KindGA, rec.addr, srcp.FieldsInt(rec.port, rec.value)...))
}

// handleGASet validates immediately and enqueues execution, same as GL SET.
func (s *Scheduler) handleGASet(cmd *srcp.Command) {
	p := cmd.Params
	if len(p) < 3 {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeListTooShort))
		return
	}
	addr, err0 := strconv.Atoi(p[0])
	port, err1 := strconv.Atoi(p[1])
	value, err2 := strconv.Atoi(p[2])
	if err0 != nil || err1 != nil || err2 != nil || port < 0 || port >= 2 || (value != 0 && value != 1) {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	timeoutMs := 0
	if len(p) >= 4 {
		var err3 error
		timeoutMs, err3 = strconv.Atoi(p[3])
		if err3 != nil || timeoutMs < 0 {
			s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
			return
		}
	}
	if _, ok := s.ga[addr]; !ok {
		s.events.Reply(cmd.SessionID, srcp.Err(srcp.CodeWrongValue))
		return
	}
	s.events.Reply(cmd.SessionID, srcp.Ok())
	s.setQueue.push(cmd)
}

func (s *Scheduler) executeGASet(cmd *srcp.Command) {
	p := cmd.Params
	addr, _ := strconv.Atoi(p[0])
	rec, ok := s.ga[addr]
	if !ok {
		return
	}

	slot := decoderSlot(addr)
	for _, other := range s.ga {
		if other.addr != addr && decoderSlot(other.addr) == slot && other.autoOffSet {
			// this decoder is mid-activation on another port; requeue and
			// retry next iteration rather than racing it on-air.
			rec.deferred = true
			rec.deferredAt = time.Now()
			s.setQueue.push(cmd)
			return
		}
	}
	rec.deferred = false

	port, _ := strconv.Atoi(p[1])
	value, _ := strconv.Atoi(p[2])
	timeoutMs := 0
	if len(p) >= 4 {
		timeoutMs, _ = strconv.Atoi(p[3])
	}

	c := s.codecs[rec.proto]
	if c == nil {
		return
	}
	tel := c.GANewTel(addr, s.triggerGA)
	consumed := c.GATel(addr, port, value, timeoutMs, tel)
	s.ship(tel)

	rec.port, rec.value = port, value
	if timeoutMs > 0 && !consumed {
		rec.autoOffSet = true
		rec.autoOffAt = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	} else {
		rec.autoOffSet = false
	}
	s.emitGAInfo(rec)
}

// gaBackgroundStep fires any accessory whose scheduler-managed auto-off
// timer has elapsed. step calls it once per iteration, after refreshStep.
func (s *Scheduler) gaBackgroundStep(now time.Time) {
	for _, rec := range s.ga {
		if !rec.autoOffSet || now.Before(rec.autoOffAt) {
			continue
		}
		rec.autoOffSet = false
		c := s.codecs[rec.proto]
		if c == nil {
			continue
		}
		tel := c.GANewTel(rec.addr, s.triggerGA)
		c.GATel(rec.addr, rec.port, 1-rec.value, 0, tel)
		s.ship(tel)
		rec.value = 1 - rec.value
		s.emitGAInfo(rec)
	}
}
