package codec

import "time"

const (
	dccV1MaxAddr = 127
	dccV2MaxAddr = 10239
	dccGAMaxAddr = 2047
)

// dccGLState is the per-address memory a refresh pass consults to decide
// which function-expansion groups actually changed.
type dccGLState struct {
	version    int
	speedSteps int
	driveMode  int
	speed      int
	funcs      uint64
	nFuncs     int
}

// DCC implements the NMRA/DCC codec.
type DCC struct {
	gl map[int]*dccGLState
}

func NewDCC() *DCC { return &DCC{gl: map[int]*dccGLState{}} }

func (d *DCC) ID() ProtocolID { return ProtoDCC }

func (d *DCC) GLMaxAddr(version int) int {
	if version <= 1 {
		return dccV1MaxAddr
	}
	return dccV2MaxAddr
}
func (d *DCC) GAMaxAddr(int) int        { return dccGAMaxAddr }
func (d *DCC) MaxFCount() int           { return 68 }
func (d *DCC) FCountInBaseTelegram() int { return 4 } // F0-F4 ride in the speed/function byte

func (d *DCC) InitGL(addr int, _ uint32, nFuncs int, _ bool) *Telegram {
	d.gl[addr] = &dccGLState{nFuncs: nFuncs}
	return nil
}

func (d *DCC) TermGL(addr int) { delete(d.gl, addr) }

// addrBytes renders the NMRA address field: one byte for short addresses,
// two for the 14-bit extended form (11AAAAAA AAAAAAAA with the top two bits
// set to mark it extended).
func addrBytes(addr int) []byte {
	if addr <= dccV1MaxAddr {
		return []byte{byte(addr)}
	}
	hi := byte(0xC0 | (addr>>8)&0x3F)
	lo := byte(addr & 0xFF)
	return []byte{hi, lo}
}

// bitsToFrame renders a preamble + one-or-more data bytes into the doubled
// SPI waveform spec.md §4.4.2 defines: a `1` bit is FF 00, a `0` bit is
// FF FF 00 00. Each data byte is preceded by a 0 start bit; the packet ends
// with a 1 stop bit plus one extra 1 to guarantee a final falling edge.
func bitsToFrame(preambleLen int, dataBytes ...[]byte) []byte {
	var bits []bool
	for i := 0; i < preambleLen; i++ {
		bits = append(bits, true)
	}
	for _, group := range dataBytes {
		for _, b := range group {
			bits = append(bits, false)
			for i := 7; i >= 0; i-- {
				bits = append(bits, (b>>uint(i))&1 == 1)
			}
		}
	}
	bits = append(bits, true, true)

	out := make([]byte, 0, len(bits)*4)
	for _, bit := range bits {
		if bit {
			out = append(out, 0xFF, 0x00)
		} else {
			out = append(out, 0xFF, 0xFF, 0x00, 0x00)
		}
	}
	return out
}

func xorChecksum(groups ...[]byte) byte {
	var x byte
	for _, g := range groups {
		for _, b := range g {
			x ^= b
		}
	}
	return x
}

func (d *DCC) packet(addr int, cmd []byte, programmingTrack bool) []byte {
	ab := addrBytes(addr)
	xor := xorChecksum(ab, cmd)
	preamble := 16
	if programmingTrack {
		preamble = 25
	}
	return bitsToFrame(preamble, ab, cmd, []byte{xor})
}

func (d *DCC) GLNewTel(addr int, refresh, trigger bool) *Telegram {
	return &Telegram{Owner: addr, ClockHz: 2 * 68966, MinDelay: 4 * time.Millisecond, Trigger: trigger}
}

func (d *DCC) GLBaseTel(addr int, driveMode int, speed, speedSteps int, funcs uint64, tel *Telegram) {
	st := d.gl[addr]
	if st == nil {
		st = &dccGLState{}
		d.gl[addr] = st
	}
	st.driveMode, st.speed, st.speedSteps, st.funcs = driveMode, speed, speedSteps, funcs

	// speedUsed reserves 0 for stop and 1 for emergency stop, so a real
	// running speed of 1..speedSteps is shifted up by one (NMRA RP-9.2).
	speedUsed := 0
	if speed > 0 {
		speedUsed = speed + 1
	}

	var cmd []byte
	switch speedSteps {
	case 128:
		dirBit := byte(1)
		if driveMode == 1 {
			dirBit = 0
		}
		cmd = []byte{0x3F, dirBit<<7 | byte(speed&0x7F)}
	case 28:
		// direction picks the whole base instruction (0110DDDD forward,
		// 0100DDDD reverse); the 5-bit speed field further reserves 2 more
		// codes (so a running speedUsed shifts up by 2 again) and
		// interleaves its low bit into bit 4 alongside the 4-bit field.
		base := byte(0x40)
		if driveMode != 1 {
			base = 0x60
		}
		speed5 := 0
		if speedUsed > 0 {
			speed5 = speedUsed + 2
		}
		cmd = []byte{base | byte((speed5>>1)&0x0F) | byte((speed5<<4)&0x10)}
	default: // 14-step: F0 folds into bit 4 instead of the interleave bit
		base := byte(0x40)
		if driveMode != 1 {
			base = 0x60
		}
		f0 := byte(funcs & 1)
		cmd = []byte{base | f0<<4 | byte(speedUsed&0x0F)}
	}
	tel.PushFrame(d.packet(addr, cmd, false))
}

// fGroup is one function-expansion opcode: the command byte's fixed bits,
// the bit offset of its first function, and how many functions it covers.
type fGroup struct {
	opcode byte
	base   int
	count  int
}

var dccFGroups = []fGroup{
	{0x80, 0, 5},  // F0-F4, sent in every speed-step mode
	{0xB0, 5, 4},  // F5-F8
	{0xA0, 9, 4},  // F9-F12
	{0xD8, 13, 8}, // F13-F20 (extended, 2-byte)
	{0xD9, 21, 8}, // F21-F28
	{0xDA, 29, 8}, // F29-F36
	{0xDB, 37, 8}, // F37-F44
	{0xDC, 45, 8}, // F45-F52
	{0xDD, 53, 8}, // F53-F60
	{0xDE, 61, 8}, // F61-F68
}

func (d *DCC) GLAdditionalTel(addr int, refresh bool, funcs uint64, tel *Telegram) {
	st := d.gl[addr]
	if st == nil {
		return
	}
	old := st.funcs
	st.funcs = funcs
	for _, g := range dccFGroups {
		if st.nFuncs <= g.base {
			continue
		}
		mask := uint64(1)<<uint(g.count) - 1
		newBits := (funcs >> uint(g.base)) & mask
		oldBits := (old >> uint(g.base)) & mask
		if !refresh && newBits == oldBits {
			continue
		}
		var cmd []byte
		if g.count <= 5 {
			cmd = []byte{g.opcode | byte(newBits)}
		} else {
			cmd = []byte{g.opcode, byte(newBits)}
		}
		tel.PushFrame(d.packet(addr, cmd, false))
	}
}

func (d *DCC) GANewTel(addr int, trigger bool) *Telegram {
	return &Telegram{Owner: addr, ClockHz: 2 * 68966, Trigger: trigger}
}

func (d *DCC) GATel(addr, port, value int, timeoutMs int, tel *Telegram) bool {
	cmd := []byte{0x80 | byte(port&1)<<1 | byte(value&1)}
	tel.PushFrame(d.packet(addr, cmd, false))
	return timeoutMs > 0 // extended accessory decoders self-manage the auto-off window
}

// CVPacket builds a direct-mode service-track CV access packet (NMRA
// RP-9.2.3): verify-byte, write-byte, or a single bit's verify/write, used
// by SM programming-track operations. cv is 1-based, as on the wire.
func (d *DCC) CVPacket(cv int, write bool, bitOp bool, bitPos int, bitValue int, value byte) *Telegram {
	cvAddr := uint16(cv - 1)
	var cc byte
	switch {
	case bitOp:
		cc = 0x02
	case write:
		cc = 0x03
	default:
		cc = 0x02 // byte verify shares the bit-manipulation opcode family with a full data byte
	}
	instr := 0x78 | cc<<0 | byte((cvAddr>>8)&0x03)
	var data byte
	if bitOp {
		data = 0xE0 | byte(boolBit(write))<<4 | byte(bitValue)<<3 | byte(bitPos&0x07)
	} else {
		data = value
	}
	cmd := []byte{instr, byte(cvAddr & 0xFF), data}
	xor := xorChecksum(cmd)
	return &Telegram{ClockHz: 2 * 68966, Frames: [][]byte{bitsToFrame(25, cmd, []byte{xor})}, Repetitions: 1}
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (d *DCC) IdleTel() *Telegram {
	t := &Telegram{ClockHz: 2 * 68966}
	t.PushFrame(bitsToFrame(16, []byte{0xFF}, []byte{0x00}, []byte{0xFF}))
	return t
}

func (d *DCC) IdleTelPowerOff() *Telegram { return d.IdleTel() }

func (d *DCC) BackgroundTel(bool) *Telegram { return nil }
