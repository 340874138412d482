package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// SQLType is the storage class of a field value.
type SQLType uint8

const (
	Null SQLType = iota
	Integer
	Real
	Text
	Blob
)

func (t SQLType) String() string {
	switch t {
	case Null:
		return "NULL"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	}
	return fmt.Sprintf("SQLType(%d)", uint8(t))
}

// Field is a single value in a database record.
//
// Data holds nil, int64, float64, string, or []byte according to Type.
type Field struct {
	Type SQLType
	Data interface{}
}

// Record is an ordered set of fields, the unit stored in a table leaf cell.
type Record struct {
	Fields []Field
}

// NewRecord creates a database record from a set of fields.
func NewRecord(fields []Field) Record {
	return Record{Fields: fields}
}

// serialType computes the serial type tag for a field.
// Integers use the smallest representation that holds the value.
func serialType(f Field) uint64 {
	if f.Data == nil {
		return 0
	}

	switch f.Type {
	case Integer:
		v := f.Data.(int64)
		switch {
		case v == 0:
			return 8
		case v == 1:
			return 9
		case v >= math.MinInt8 && v <= math.MaxInt8:
			return 1
		case v >= math.MinInt16 && v <= math.MaxInt16:
			return 2
		case v >= -8388608 && v <= 8388607:
			return 3
		case v >= math.MinInt32 && v <= math.MaxInt32:
			return 4
		case v >= -140737488355328 && v <= 140737488355327:
			return 5
		default:
			return 6
		}
	case Real:
		return 7
	case Text:
		return 13 + 2*uint64(len(f.Data.(string)))
	case Blob:
		return 12 + 2*uint64(len(f.Data.([]byte)))
	default:
		return 0
	}
}

// serialTypeLen reports the body length in bytes for a serial type.
func serialTypeLen(st uint64) (int, error) {
	switch st {
	case 0, 8, 9:
		return 0, nil
	case 1:
		return 1, nil
	case 2:
		return 2, nil
	case 3:
		return 3, nil
	case 4:
		return 4, nil
	case 5:
		return 6, nil
	case 6, 7:
		return 8, nil
	case 10, 11:
		return 0, fmt.Errorf("%w: reserved serial type %d", ErrMalformedRecord, st)
	}
	if st >= 12 {
		if st%2 == 0 {
			return int(st-12) / 2, nil
		}
		return int(st-13) / 2, nil
	}
	return 0, fmt.Errorf("%w: serial type %d", ErrMalformedRecord, st)
}

// Write encodes the record: a varint header length, one serial-type varint
// per field, then the field bodies.
func (r *Record) Write(w io.Writer) error {
	var header bytes.Buffer
	var body bytes.Buffer

	for _, f := range r.Fields {
		st := serialType(f)
		if _, err := WriteVarint(&header, st); err != nil {
			return err
		}
		if err := writeFieldBody(&body, f, st); err != nil {
			return err
		}
	}

	// The header length varint includes its own size. A single byte is
	// enough until the header grows past 127 bytes.
	headerLen := header.Len() + 1
	if headerLen > 127 {
		headerLen = header.Len() + VarintLen(uint64(header.Len())+2)
	}

	var buf bytes.Buffer
	if _, err := WriteVarint(&buf, uint64(headerLen)); err != nil {
		return err
	}
	buf.Write(header.Bytes())
	buf.Write(body.Bytes())

	_, err := w.Write(buf.Bytes())
	return err
}

func writeFieldBody(buf *bytes.Buffer, f Field, st uint64) error {
	switch st {
	case 0, 8, 9:
		return nil
	case 1, 2, 3, 4, 5, 6:
		v := f.Data.(int64)
		n, _ := serialTypeLen(st)
		for i := n - 1; i >= 0; i-- {
			buf.WriteByte(byte(v >> (8 * i)))
		}
		return nil
	case 7:
		var scratch [8]byte
		binary.BigEndian.PutUint64(scratch[:], math.Float64bits(f.Data.(float64)))
		buf.Write(scratch[:])
		return nil
	}
	if st%2 == 1 {
		buf.WriteString(f.Data.(string))
	} else {
		buf.Write(f.Data.([]byte))
	}
	return nil
}

// ReadRecord decodes a record payload.
func ReadRecord(payload []byte) (Record, error) {
	r := bytes.NewReader(payload)

	headerLen, n, err := ReadVarint(r)
	if err != nil {
		return Record{}, fmt.Errorf("%w: short header", ErrMalformedRecord)
	}
	if headerLen < uint64(n) || headerLen > uint64(len(payload)) {
		return Record{}, fmt.Errorf("%w: header length %d exceeds payload %d", ErrMalformedRecord, headerLen, len(payload))
	}

	// Collect serial types from the rest of the header.
	var serialTypes []uint64
	read := n
	for uint64(read) < headerLen {
		st, m, err := ReadVarint(r)
		if err != nil {
			return Record{}, fmt.Errorf("%w: truncated header", ErrMalformedRecord)
		}
		read += m
		serialTypes = append(serialTypes, st)
	}

	body := payload[headerLen:]
	fields := make([]Field, 0, len(serialTypes))
	for _, st := range serialTypes {
		size, err := serialTypeLen(st)
		if err != nil {
			return Record{}, err
		}
		if size > len(body) {
			return Record{}, fmt.Errorf("%w: field length %d exceeds payload", ErrMalformedRecord, size)
		}

		fields = append(fields, decodeField(st, body[:size]))
		body = body[size:]
	}

	return Record{Fields: fields}, nil
}

func decodeField(st uint64, body []byte) Field {
	switch st {
	case 0:
		return Field{Type: Null, Data: nil}
	case 8:
		return Field{Type: Integer, Data: int64(0)}
	case 9:
		return Field{Type: Integer, Data: int64(1)}
	case 1, 2, 3, 4, 5, 6:
		// Sign-extend from the first byte.
		v := int64(int8(body[0]))
		for _, b := range body[1:] {
			v = v<<8 | int64(b)
		}
		return Field{Type: Integer, Data: v}
	case 7:
		return Field{Type: Real, Data: math.Float64frombits(binary.BigEndian.Uint64(body))}
	}
	if st%2 == 1 {
		return Field{Type: Text, Data: string(body)}
	}
	data := make([]byte, len(body))
	copy(data, body)
	return Field{Type: Blob, Data: data}
}

// Size reports the encoded length of the record in bytes.
func (r *Record) Size() int {
	header := 0
	body := 0
	for _, f := range r.Fields {
		st := serialType(f)
		header += VarintLen(st)
		n, _ := serialTypeLen(st)
		body += n
	}
	if header+1 > 127 {
		return header + VarintLen(uint64(header)+2) + body
	}
	return header + 1 + body
}
