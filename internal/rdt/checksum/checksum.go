// Package checksum implements the deliberately weak 16-bit XOR-fold
// integrity field used by the RDT channel. It detects single-byte
// corruption (the channel's corruption stage) but carries no
// cryptographic guarantee — by design, per spec.md section 1.
package checksum

import "github.com/aetherflow/rdt/internal/rdt/packet"

// Compute folds the packet's type tag, its seq-or-ack value, and every
// payload byte into a 16-bit XOR accumulator.
func Compute(p *packet.Packet) uint16 {
	var sum uint32

	for _, c := range p.Type.String() {
		sum ^= uint32(c)
	}

	switch p.Type {
	case packet.DATA:
		sum ^= p.Seq
	case packet.ACK:
		sum ^= uint32(p.Ack)
	}

	for _, b := range p.Payload {
		sum ^= uint32(b)
	}

	return uint16(sum & 0xFFFF)
}

// Stamp computes and attaches the checksum, marking it present.
func Stamp(p *packet.Packet) {
	p.Checksum = Compute(p)
	p.HasSum = true
}

// Verify reports whether p's checksum matches its contents. A packet
// with no checksum field is treated as valid, matching the reference
// channel's internal/test-packet convention (spec.md section 4.3).
func Verify(p *packet.Packet) bool {
	if !p.HasSum {
		return true
	}
	return p.Checksum == Compute(p)
}
