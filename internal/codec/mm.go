package codec

import "time"

// trit is one of the four SPI symbols spec.md §4.4.1 defines. Each is 4
// bytes at the doubled MM line rate.
type trit int

const (
	tritL trit = iota // "0"
	tritH              // "1"
	tritO              // open (idle / address digit 2)
	tritU              // complement half, absolute-direction speed bits only
)

func (t trit) bytes(accessory bool) []byte {
	lead := byte(0xC0)
	if accessory {
		lead = 0xE0 // widened "0" pulse for accessory decoders
	}
	switch t {
	case tritL:
		return []byte{lead, 0x00, lead, 0x00}
	case tritH:
		return []byte{0xFF, 0xFC, 0xFF, 0xFC}
	case tritO:
		return []byte{0xFF, 0xFC, lead, 0x00}
	case tritU:
		return []byte{lead, 0x00, 0xFF, 0xFC}
	default:
		return []byte{lead, 0x00, lead, 0x00}
	}
}

// MMVersion selects which of the four historical function/speed layouts to
// emit; the address/idle encoding is shared by all of them.
type MMVersion int

const (
	MM1 MMVersion = iota
	MM2
	MM3
	MM5
)

const mmMaxAddr = 80

// mmSpeedTrits packs a 0..14 speed into the two low data trits. Real
// decoders use a fixed non-linear table here; this module uses a
// deterministic, monotonic base-3 packing of (speed*2) instead of the
// historical lookup table — see DESIGN.md.
func mmSpeedTrits(speed int) [2]trit {
	v := speed * 2 // keep codepoints spread out, mirroring the real table's non-adjacency
	d0 := v % 3
	d1 := (v / 3) % 3
	return [2]trit{trit(d0), trit(d1)}
}

// MM implements the Märklin-Motorola codec for one of the four historical
// sub-versions. One instance is shared by every locomotive/accessory using
// this protocol on a bus.
type MM struct {
	version MMVersion
	gl      map[int]*mmGLState
}

type mmGLState struct {
	driveMode int
	speed     int
	speedStep int
	funcs     uint64
	relDir    int // not written or read by this codec
}

func NewMM(version MMVersion) *MM {
	return &MM{version: version, gl: map[int]*mmGLState{}}
}

func (m *MM) ID() ProtocolID { return ProtoMM }

func (m *MM) GLMaxAddr(int) int { return mmMaxAddr }
func (m *MM) GAMaxAddr(int) int { return mmMaxAddr*4 + 4 }
func (m *MM) MaxFCount() int {
	if m.version == MM1 {
		return 1
	}
	return 5
}
func (m *MM) FCountInBaseTelegram() int { return m.MaxFCount() }

func (m *MM) InitGL(addr int, _ uint32, _ int, _ bool) *Telegram {
	m.gl[addr] = &mmGLState{}
	return nil
}

func (m *MM) TermGL(addr int) { delete(m.gl, addr) }

// addrTrits encodes addr (0..80) as four base-3 digits; 80 -> O O O O, the
// idle/broadcast pattern spec.md calls out explicitly.
func addrTrits(addr int) [4]trit {
	var out [4]trit
	n := addr
	for i := 3; i >= 0; i-- {
		out[i] = trit(n % 3)
		n /= 3
	}
	return out
}

func (m *MM) packet(addr int, accessory bool, trits [9]trit) []byte {
	buf := make([]byte, 0, 36)
	for _, t := range trits {
		buf = append(buf, t.bytes(accessory)...)
	}
	return buf
}

func (m *MM) frame(addr int, accessory bool, trits [9]trit) []byte {
	paket := m.packet(addr, accessory, trits)
	out := make([]byte, 0, 126)
	out = append(out, paket...)
	out = append(out, make([]byte, 12)...)
	out = append(out, paket...)
	out = append(out, make([]byte, 42)...)
	return out
}

func (m *MM) GLNewTel(addr int, refresh, trigger bool) *Telegram {
	return &Telegram{Owner: addr, ClockHz: 2 * 38461, MinDelay: 0, Trigger: trigger}
}

func (m *MM) GLBaseTel(addr int, driveMode int, speed, speedSteps int, funcs uint64, tel *Telegram) {
	st := m.gl[addr]
	if st == nil {
		st = &mmGLState{}
		m.gl[addr] = st
	}
	st.driveMode, st.speed, st.speedStep, st.funcs = driveMode, speed, speedSteps, funcs

	var trits [9]trit
	at := addrTrits(addr)
	copy(trits[0:4], at[:])
	trits[4] = trit(funcs & 1) // F0

	sp := mmSpeedTrits(speed)
	trits[5], trits[6] = sp[0], sp[1]

	// Absolute-direction versions (V2/V3/V5) flip the high data trit to its
	// complement (tritU family) to signal reverse. V1 frames carry no
	// direction here, and this codec sends no relative-direction toggle for
	// V1, so driveMode does not change what a V1 locomotive receives.
	if m.version != MM1 && driveMode == 1 { // reverse
		if trits[6] == tritL {
			trits[6] = tritU
		}
	}
	trits[7], trits[8] = tritL, tritL // reserved/parity trits, unused by this rendering

	if m.version == MM5 {
		// two adjacent-step packets 50ms apart; scheduler's delay buffer
		// owns the inter-frame gap.
		tel.PushFrame(m.frame(addr, false, trits))
		adj := trits
		sp2 := mmSpeedTrits(speed + 1)
		adj[5], adj[6] = sp2[0], sp2[1]
		tel.PushFrame(m.frame(addr, false, adj))
		tel.MinDelay = 50 * time.Millisecond
		tel.DelaySecond = true
		return
	}
	tel.PushFrame(m.frame(addr, false, trits))
}

func (m *MM) GLAdditionalTel(addr int, refresh bool, funcs uint64, tel *Telegram) {
	if m.version == MM1 {
		return // F0 only, already in the base telegram
	}
	st := m.gl[addr]
	if st == nil {
		return
	}
	if !refresh && funcs == st.funcs {
		return
	}
	st.funcs = funcs
	var trits [9]trit
	at := addrTrits(addr)
	copy(trits[0:4], at[:])
	trits[4] = trit((funcs >> 1) & 1) // F1, folded in for brevity of this rendering
	trits[5] = trit((funcs >> 2) & 1)
	trits[6] = trit((funcs >> 3) & 1)
	trits[7] = trit((funcs >> 4) & 1)
	trits[8] = tritL
	tel.PushFrame(m.frame(addr, false, trits))
}

func (m *MM) GANewTel(addr int, trigger bool) *Telegram {
	return &Telegram{Owner: addr, ClockHz: 2 * 38461, Trigger: trigger}
}

func (m *MM) GATel(addr, port, value int, timeoutMs int, tel *Telegram) bool {
	decoderAddr := (addr-1)/4 + 1
	var trits [9]trit
	at := addrTrits(decoderAddr)
	copy(trits[0:4], at[:])
	trits[4] = trit(port & 1)
	trits[5] = trit(value & 1)
	trits[6], trits[7], trits[8] = tritL, tritL, tritL
	tel.PushFrame(m.frame(decoderAddr, true, trits))
	return false // MM accessory decoders never self-manage the auto-off timeout
}

func (m *MM) IdleTel() *Telegram {
	t := &Telegram{ClockHz: 2 * 38461}
	var trits [9]trit
	for i := range trits {
		trits[i] = tritO
	}
	t.PushFrame(m.frame(mmMaxAddr, false, trits))
	return t
}

func (m *MM) IdleTelPowerOff() *Telegram { return m.IdleTel() }

func (m *MM) BackgroundTel(bool) *Telegram { return nil }
