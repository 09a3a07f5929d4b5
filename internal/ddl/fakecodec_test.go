package ddl

import (
	"github.com/dsigg/srcpd/internal/bus"
	"github.com/dsigg/srcpd/internal/codec"
	"github.com/dsigg/srcpd/internal/config"
	"github.com/dsigg/srcpd/internal/srcp"
)

// fakeCodec is a minimal codec.Codec stand-in: every telegram-producing
// method returns one non-empty frame so the scheduler's ship() path runs
// the same as it would with a real protocol encoder.
type fakeCodec struct {
	id        codec.ProtocolID
	glMaxAddr int
	gaMaxAddr int
	initCalls []int
	termCalls []int
}

func (f *fakeCodec) ID() codec.ProtocolID     { return f.id }
func (f *fakeCodec) GLMaxAddr(int) int        { return f.glMaxAddr }
func (f *fakeCodec) GAMaxAddr(int) int        { return f.gaMaxAddr }
func (f *fakeCodec) MaxFCount() int           { return 28 }
func (f *fakeCodec) FCountInBaseTelegram() int { return 4 }

func (f *fakeCodec) InitGL(addr int, uid uint32, nFuncs int, powerOn bool) *codec.Telegram {
	f.initCalls = append(f.initCalls, addr)
	return nil
}
func (f *fakeCodec) TermGL(addr int) { f.termCalls = append(f.termCalls, addr) }

func (f *fakeCodec) GLNewTel(addr int, refresh, trigger bool) *codec.Telegram {
	return &codec.Telegram{Owner: addr, Frames: [][]byte{{0}}, Repetitions: 1}
}
func (f *fakeCodec) GLBaseTel(addr, driveMode, speed, speedSteps int, funcs uint64, tel *codec.Telegram) {
}
func (f *fakeCodec) GLAdditionalTel(addr int, refresh bool, funcs uint64, tel *codec.Telegram) {}

func (f *fakeCodec) GANewTel(addr int, trigger bool) *codec.Telegram {
	return &codec.Telegram{Owner: addr, Frames: [][]byte{{0}}, Repetitions: 1}
}
func (f *fakeCodec) GATel(addr, port, value, timeoutMs int, tel *codec.Telegram) bool { return false }

func (f *fakeCodec) IdleTel() *codec.Telegram                   { return &codec.Telegram{Frames: [][]byte{{0xFF}}} }
func (f *fakeCodec) IdleTelPowerOff() *codec.Telegram           { return nil }
func (f *fakeCodec) BackgroundTel(powerOn bool) *codec.Telegram { return nil }

// fakeSPIPort discards every transfer; tests only care about what the
// scheduler decides to ship, not what bytes cross the wire.
type fakeSPIPort struct{ transfers int }

func (f *fakeSPIPort) Transfer(data []byte, speedHz uint32, readLen int) ([]byte, error) {
	f.transfers++
	return nil, nil
}

// newTestScheduler builds a Scheduler wired to an in-memory event bus and a
// single fake codec, ready to drive handlers directly without hardware.
func newTestScheduler(proto codec.ProtocolID, glMax, gaMax int) (*Scheduler, *fakeCodec, *srcp.EventBus) {
	fc := &fakeCodec{id: proto, glMaxAddr: glMax, gaMaxAddr: gaMax}
	codecs := map[codec.ProtocolID]codec.Codec{proto: fc}
	s := NewScheduler(1, config.DDLConfig{Bus: 1}, codecs, &fakeSPIPort{}, nil, nil, nil, nil, nil, nil)
	conn := bus.NewBus(8).NewConnection("test")
	events := srcp.NewEventBus(conn)
	s.Attach(events)
	return s, fc, events
}
