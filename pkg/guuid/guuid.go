// Package guuid generates random 16-byte identifiers for rdt-bench's
// connection/run tracking: one per statsserver websocket subscriber and
// per outbound stats/event message.
package guuid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GUUID is a 16-byte identifier, high-entropy but unordered.
type GUUID [16]byte

// New generates a new GUUID using crypto/rand for high entropy.
func New() (GUUID, error) {
	var g GUUID
	_, err := rand.Read(g[:])
	if err != nil {
		return GUUID{}, fmt.Errorf("failed to generate GUUID: %w", err)
	}
	return g, nil
}

// String returns the hex string representation of the GUUID.
func (g GUUID) String() string {
	return hex.EncodeToString(g[:])
}
