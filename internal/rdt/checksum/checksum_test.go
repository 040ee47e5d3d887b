package checksum

import (
	"testing"

	"github.com/aetherflow/rdt/internal/rdt/packet"
)

func TestVerifyNoChecksumIsValid(t *testing.T) {
	p := packet.NewData(3, []byte("hello"))
	if !Verify(p) {
		t.Fatal("packet without a stamped checksum should verify as valid")
	}
}

func TestStampThenVerifyRoundTrip(t *testing.T) {
	p := packet.NewData(7, []byte("payload bytes"))
	Stamp(p)

	if !p.HasSum {
		t.Fatal("Stamp should set HasSum")
	}
	if !Verify(p) {
		t.Fatal("freshly stamped packet must verify")
	}
}

func TestVerifyDetectsSingleByteAlteration(t *testing.T) {
	p := packet.NewData(1, []byte("ABCDEF"))
	Stamp(p)

	mutated := p.Clone()
	mutated.Payload[2] = mutated.Payload[2] + 1 // byte arithmetic wraps mod 256

	if Verify(mutated) {
		t.Fatal("a single mutated payload byte must fail verification")
	}
}

func TestVerifyEmptyPayloadRoundTrip(t *testing.T) {
	p := packet.NewData(0, nil)
	Stamp(p)
	if !Verify(p) {
		t.Fatal("empty-payload DATA packet must still verify")
	}
}

func TestAckChecksumIncludesAckValue(t *testing.T) {
	a := packet.NewAck(5)
	Stamp(a)
	if !Verify(a) {
		t.Fatal("ACK packet must verify")
	}

	b := packet.NewAck(6)
	Stamp(b)
	if a.Checksum == b.Checksum {
		// Adjacent ack values always differ in their low 16 bits, so
		// with the ack folded in their checksums cannot collide; equal
		// checksums mean Ack stopped being included at all.
		t.Fatalf("expected ACK checksums for ack=5 and ack=6 to differ, both are %d", a.Checksum)
	}
}
