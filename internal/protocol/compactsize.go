package protocol

import "encoding/binary"

// CompactSize is Bitcoin's variable-length unsigned integer encoding.
// Decoding accepts any well-formed encoding (including non-canonical
// ones some peers emit); encoding always produces the minimal form.
type CompactSize uint64

// Encode returns the minimal CompactSize wire encoding of cs.
func (cs CompactSize) Encode() []byte {
	n := uint64(cs)
	switch {
	case n <= 0xfc:
		return []byte{byte(n)}
	case n <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(n))
		return buf
	case n <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(n))
		return buf
	default:
		buf := make([]byte, 9)
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], n)
		return buf
	}
}

// DecodeCompactSize reads a CompactSize from the front of buf, returning
// the decoded value and the number of bytes consumed. It returns
// ErrShortBuffer if buf does not hold the discriminator byte or the
// following bytes the discriminator calls for.
func DecodeCompactSize(buf []byte) (CompactSize, int, error) {
	if len(buf) < 1 {
		return 0, 0, ErrShortBuffer
	}
	switch disc := buf[0]; disc {
	case 0xff:
		if len(buf) < 9 {
			return 0, 0, ErrShortBuffer
		}
		return CompactSize(binary.LittleEndian.Uint64(buf[1:9])), 9, nil
	case 0xfe:
		if len(buf) < 5 {
			return 0, 0, ErrShortBuffer
		}
		return CompactSize(binary.LittleEndian.Uint32(buf[1:5])), 5, nil
	case 0xfd:
		if len(buf) < 3 {
			return 0, 0, ErrShortBuffer
		}
		return CompactSize(binary.LittleEndian.Uint16(buf[1:3])), 3, nil
	default:
		return CompactSize(disc), 1, nil
	}
}
