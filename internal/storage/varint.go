package storage

import (
	"io"
)

// ReadVarint reads a SQLite varint: big-endian, 7 bits of payload per byte
// with the high bit as a continuation flag, at most 9 bytes. The 9th byte,
// if present, contributes a full 8 bits.
func ReadVarint(reader io.ByteReader) (uint64, int, error) {
	var result uint64

	for i := 0; i < 8; i++ {
		b, err := reader.ReadByte()
		if err != nil {
			return 0, i, err
		}

		result = result<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}

	// Ninth byte carries a full 8 bits.
	b, err := reader.ReadByte()
	if err != nil {
		return 0, 8, err
	}

	return result<<8 | uint64(b), 9, nil
}

// WriteVarint writes v in the SQLite varint encoding and reports the
// number of bytes written.
func WriteVarint(w io.ByteWriter, v uint64) (int, error) {
	// Values with the top 8 bits set need the 9-byte form where the
	// final byte holds 8 payload bits.
	if v > 0xffffffffffffff {
		var buf [9]byte
		buf[8] = byte(v)
		x := v >> 8
		for i := 7; i >= 0; i-- {
			buf[i] = byte(x&0x7f) | 0x80
			x >>= 7
		}
		for _, b := range buf {
			if err := w.WriteByte(b); err != nil {
				return 0, err
			}
		}
		return 9, nil
	}

	var buf [9]byte
	i := len(buf) - 1
	buf[i] = byte(v & 0x7f)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		buf[i] = byte(v&0x7f) | 0x80
	}

	for _, b := range buf[i:] {
		if err := w.WriteByte(b); err != nil {
			return 0, err
		}
	}

	return len(buf) - i, nil
}

// VarintLen reports the encoded size of v without writing it.
func VarintLen(v uint64) int {
	if v > 0xffffffffffffff {
		return 9
	}
	n := 1
	for v >>= 7; v > 0; v >>= 7 {
		n++
	}
	return n
}
