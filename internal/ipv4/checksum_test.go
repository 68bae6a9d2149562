package ipv4

import (
	"encoding/binary"
	"math/rand"
	"testing"
)

func TestChecksumKnownValue(t *testing.T) {
	// Example header from RFC 1071 discussions: checksum over these
	// bytes with the checksum field zeroed must reproduce the stored
	// value 0xB861.
	b := []byte{
		0x45, 0x00, 0x00, 0x73,
		0x00, 0x00, 0x40, 0x00,
		0x40, 0x11, 0x00, 0x00, // checksum zeroed
		0xC0, 0xA8, 0x00, 0x01,
		0xC0, 0xA8, 0x00, 0xC7,
	}
	if got := Checksum(b); got != 0xB861 {
		t.Errorf("Expected checksum 0xB861, got 0x%04X", got)
	}
}

func TestChecksumRoundTripLaw(t *testing.T) {
	// Writing the computed checksum back into the buffer and summing
	// again must complement to zero, for any buffer.
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 100; trial++ {
		size := 20 + rng.Intn(1000)&^1
		b := make([]byte, size)
		rng.Read(b)

		binary.BigEndian.PutUint16(b[10:12], 0)
		sum := Checksum(b)
		binary.BigEndian.PutUint16(b[10:12], sum)

		if got := Checksum(b); got != 0 {
			t.Fatalf("trial %d: checksum over self-checksummed buffer = 0x%04X, want 0", trial, got)
		}
	}
}

func TestChecksumOddLength(t *testing.T) {
	// A trailing odd byte acts as the high byte of a zero-padded word.
	odd := []byte{0x01, 0x02, 0x03}
	padded := []byte{0x01, 0x02, 0x03, 0x00}
	if Checksum(odd) != Checksum(padded) {
		t.Errorf("odd-length checksum 0x%04X != zero-padded checksum 0x%04X",
			Checksum(odd), Checksum(padded))
	}
}

func TestChecksumEmpty(t *testing.T) {
	if got := Checksum(nil); got != 0xFFFF {
		t.Errorf("Expected 0xFFFF for empty input, got 0x%04X", got)
	}
}

func TestChecksumCarryFold(t *testing.T) {
	// All-ones words force repeated carry folding.
	b := make([]byte, 2048)
	for i := range b {
		b[i] = 0xFF
	}
	if got := Checksum(b); got != 0x0000 {
		t.Errorf("Expected 0x0000 for all-ones buffer, got 0x%04X", got)
	}
}
