package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarint_RoundTrip(t *testing.T) {
	r := require.New(t)

	for i := 0; i < 2048; i++ {
		bs := bytes.Buffer{}
		_, err := WriteVarint(&bs, uint64(i))
		r.NoError(err)

		reader := bytes.NewReader(bs.Bytes())
		v, _, err := ReadVarint(reader)
		r.NoError(err)

		r.Equal(uint64(i), v)
	}
}

func TestVarint_Boundaries(t *testing.T) {
	r := require.New(t)

	values := []uint64{
		0, 127, 128, 16383, 16384,
		0xffffffffffffff,     // largest 8-byte encoding
		0x100000000000000,    // smallest 9-byte encoding
		0xffffffffffffffff,   // full 64 bits
		0x8000000000000000,   // sign bit set
	}
	lengths := []int{1, 1, 2, 2, 3, 8, 9, 9, 9}

	for i, v := range values {
		bs := bytes.Buffer{}
		n, err := WriteVarint(&bs, v)
		r.NoError(err)
		r.Equal(lengths[i], n, "encoded length of %d", v)
		r.Equal(lengths[i], VarintLen(v))

		got, m, err := ReadVarint(bytes.NewReader(bs.Bytes()))
		r.NoError(err)
		r.Equal(n, m)
		r.Equal(v, got)
	}
}

func TestVarint_KnownEncodings(t *testing.T) {
	r := require.New(t)

	bs := bytes.Buffer{}
	_, err := WriteVarint(&bs, 300)
	r.NoError(err)
	r.Equal([]byte{0x82, 0x2C}, bs.Bytes())
}

func TestVarint_ShortRead(t *testing.T) {
	r := require.New(t)

	// Continuation bit set with no following byte.
	_, _, err := ReadVarint(bytes.NewReader([]byte{0x82}))
	r.Error(err)
}
