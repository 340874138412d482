package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileHeader_RoundTrip(t *testing.T) {
	r := require.New(t)

	h := FileHeader{
		PageSize:          4096,
		ReservedBytes:     8,
		FileChangeCounter: 12,
		SizeInPages:       42,
		FreelistHead:      7,
		FreelistPages:     3,
		SchemaCookie:      5,
	}

	parsed, err := ParseFileHeader(h.Bytes())
	r.NoError(err)
	r.Equal(h, parsed)
}

func TestFileHeader_PageSize65536(t *testing.T) {
	r := require.New(t)

	h := NewFileHeader(65536)
	raw := h.Bytes()
	// 65536 does not fit in two bytes and is stored as 1.
	r.Equal([]byte{0x00, 0x01}, raw[16:18])

	parsed, err := ParseFileHeader(raw)
	r.NoError(err)
	r.Equal(65536, parsed.PageSize)
}

func TestParseFileHeader_Invalid(t *testing.T) {
	r := require.New(t)

	_, err := ParseFileHeader(make([]byte, 50))
	r.ErrorIs(err, ErrCorruptHeader)

	bad := NewFileHeader(4096).Bytes()
	bad[0] = 'X'
	_, err = ParseFileHeader(bad)
	r.ErrorIs(err, ErrCorruptHeader)

	// Page size must be a power of two within bounds.
	for _, size := range [][2]byte{{0x01, 0x00}, {0x03, 0x00}, {0x00, 0xFF}} {
		raw := NewFileHeader(4096).Bytes()
		raw[16], raw[17] = size[0], size[1]
		_, err = ParseFileHeader(raw)
		r.ErrorIs(err, ErrCorruptHeader, "page size bytes %v", size)
	}
}
