package protocol

import "crypto/sha256"

// Checksum computes Bitcoin's message checksum: the first four bytes of
// SHA-256(SHA-256(payload)).
func Checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

// VerackChecksum is Checksum(nil), the well-known constant carried by
// every verack header (5D F6 E0 E2).
var VerackChecksum = Checksum(nil)
