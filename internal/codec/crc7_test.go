package codec

import "testing"

func TestCRC7_DeterministicAndSensitiveToInput(t *testing.T) {
	c1 := newCRC7()
	c1.addByte(0x01)
	c1.addByte(0x02)
	v1 := c1.finalize()

	c2 := newCRC7()
	c2.addByte(0x01)
	c2.addByte(0x02)
	v2 := c2.finalize()

	if v1 != v2 {
		t.Fatalf("expected deterministic CRC, got %#x vs %#x", v1, v2)
	}

	c3 := newCRC7()
	c3.addByte(0x01)
	c3.addByte(0x03)
	v3 := c3.finalize()
	if v1 == v3 {
		t.Fatal("expected different input to change the CRC")
	}

	if v1 > 0x7F {
		t.Fatalf("CRC-7 must fit in 7 bits, got %#x", v1)
	}
}
