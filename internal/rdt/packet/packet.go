// Package packet defines the wire record exchanged between RDT endpoints.
package packet

import "fmt"

// Type tags a Packet as carrying data or an acknowledgment.
type Type uint8

const (
	// DATA carries a sequenced application payload.
	DATA Type = iota
	// ACK carries a cumulative acknowledgment.
	ACK
)

func (t Type) String() string {
	switch t {
	case DATA:
		return "DATA"
	case ACK:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// Packet is the tagged DATA|ACK record described in spec.md section 3.
//
// Seq is only meaningful for DATA, Ack only for ACK, Payload only for
// DATA. Checksum is stamped by the channel at send time, never by the
// endpoint. Corrupted is set by the channel's corruption stage to flag
// a packet whose payload was mutated after the checksum was stamped.
type Packet struct {
	Type Type
	Seq  uint32
	// Ack is signed because the receiver's cumulative-ack cursor starts
	// at -1 ("awaiting seq 0", spec.md section 3) and an ACK carrying
	// that sentinel is a real, valid wire value, not an error case.
	Ack       int64
	Payload   []byte
	Checksum  uint16
	HasSum    bool // whether Checksum has been stamped
	Corrupted bool
}

// Clone returns a deep copy so mutating a delivered packet (e.g. the
// link's corruption stage) never aliases the sender's buffer.
func (p *Packet) Clone() *Packet {
	cp := *p
	if p.Payload != nil {
		cp.Payload = make([]byte, len(p.Payload))
		copy(cp.Payload, p.Payload)
	}
	return &cp
}

// String renders a compact debug representation.
func (p *Packet) String() string {
	switch p.Type {
	case DATA:
		return fmt.Sprintf("DATA{seq=%d, len=%d, corrupted=%v}", p.Seq, len(p.Payload), p.Corrupted)
	case ACK:
		return fmt.Sprintf("ACK{ack=%d}", p.Ack)
	default:
		return "UNKNOWN{}"
	}
}

// NewData builds a DATA packet carrying seq/payload. The checksum is
// left unstamped (HasSum=false) — the channel stamps it at send time.
func NewData(seq uint32, payload []byte) *Packet {
	return &Packet{Type: DATA, Seq: seq, Payload: payload}
}

// NewAck builds an ACK packet acknowledging ack cumulatively. ack may
// be -1, the receiver's initial "awaiting seq 0" sentinel.
func NewAck(ack int64) *Packet {
	return &Packet{Type: ACK, Ack: ack}
}
