package storage

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_Write(t *testing.T) {
	r := require.New(t)

	rec := NewRecord([]Field{
		{Type: Null, Data: nil},
		{Type: Text, Data: "Databases"},
		{Type: Integer, Data: nil},
		{Type: Integer, Data: int64(42)},
	})

	buf := bytes.Buffer{}
	r.NoError(rec.Write(&buf))

	expected := []byte{
		// header length, includes this byte
		5,
		// NULL
		0,
		// text, 13 + 2*9
		0x1F,
		// NULL
		0,
		// one byte integer
		1,
		// bodies
		'D', 'a', 't', 'a', 'b', 'a', 's', 'e', 's',
		42,
	}
	r.Equal(expected, buf.Bytes())
	r.Equal(len(expected), rec.Size())
}

func TestRecord_RoundTrip(t *testing.T) {
	r := require.New(t)

	rec := NewRecord([]Field{
		{Type: Null, Data: nil},
		{Type: Integer, Data: int64(0)},
		{Type: Integer, Data: int64(1)},
		{Type: Integer, Data: int64(-1)},
		{Type: Integer, Data: int64(127)},
		{Type: Integer, Data: int64(-129)},
		{Type: Integer, Data: int64(40000)},
		{Type: Integer, Data: int64(-8388608)},
		{Type: Integer, Data: int64(1 << 30)},
		{Type: Integer, Data: int64(1) << 40},
		{Type: Integer, Data: int64(1) << 60},
		{Type: Real, Data: 3.5},
		{Type: Real, Data: -0.001},
		{Type: Text, Data: "hello"},
		{Type: Text, Data: ""},
		{Type: Blob, Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	})

	buf := bytes.Buffer{}
	r.NoError(rec.Write(&buf))
	r.Equal(rec.Size(), buf.Len())

	decoded, err := ReadRecord(buf.Bytes())
	r.NoError(err)
	r.Equal(len(rec.Fields), len(decoded.Fields))

	for i, f := range rec.Fields {
		r.Equal(f.Type, decoded.Fields[i].Type, "field %d", i)
		r.Equal(f.Data, decoded.Fields[i].Data, "field %d", i)
	}
}

func TestRecord_WideHeader(t *testing.T) {
	r := require.New(t)

	// Enough text columns that the serial type varints alone push the
	// header length past a single byte.
	var fields []Field
	for i := 0; i < 100; i++ {
		fields = append(fields, Field{Type: Text, Data: strings.Repeat("x", 100)})
	}
	rec := NewRecord(fields)

	buf := bytes.Buffer{}
	r.NoError(rec.Write(&buf))
	r.Equal(rec.Size(), buf.Len())

	decoded, err := ReadRecord(buf.Bytes())
	r.NoError(err)
	r.Equal(100, len(decoded.Fields))
	r.Equal(strings.Repeat("x", 100), decoded.Fields[99].Data)
}

func TestRecord_NegativeIntegerWidths(t *testing.T) {
	r := require.New(t)

	for _, v := range []int64{-1, -128, -32768, -8388608, -2147483648, -140737488355328, -1 << 62} {
		rec := NewRecord([]Field{{Type: Integer, Data: v}})

		buf := bytes.Buffer{}
		r.NoError(rec.Write(&buf))

		decoded, err := ReadRecord(buf.Bytes())
		r.NoError(err)
		r.Equal(v, decoded.Fields[0].Data)
	}
}

func TestReadRecord_Malformed(t *testing.T) {
	r := require.New(t)

	// Header length exceeds the payload.
	_, err := ReadRecord([]byte{10, 1, 2})
	r.ErrorIs(err, ErrMalformedRecord)

	// Field body runs past the payload.
	_, err = ReadRecord([]byte{2, 4, 0x01})
	r.ErrorIs(err, ErrMalformedRecord)

	// Reserved serial type.
	_, err = ReadRecord([]byte{2, 10})
	r.ErrorIs(err, ErrMalformedRecord)

	// Empty payload.
	_, err = ReadRecord(nil)
	r.ErrorIs(err, ErrMalformedRecord)
}
