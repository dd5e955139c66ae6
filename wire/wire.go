// Package wire provides the fixed-width integer helpers the ALN control
// protocol is built on. All multi-byte fields on the wire are unsigned
// 16-bit, big-endian.
package wire

import "encoding/binary"

// Uint16Size is the wire size, in bytes, of a single encoded value.
const Uint16Size = 2

// ReadUint16 decodes a big-endian uint16 from the front of b.
// b must be at least Uint16Size bytes long.
func ReadUint16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// WriteUint16 encodes v as big-endian bytes.
func WriteUint16(v uint16) []byte {
	b := make([]byte, Uint16Size)
	binary.BigEndian.PutUint16(b, v)
	return b
}
