package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const headerMagic = "SQLite format 3\x00"

// FileHeader is the 100-byte database file header.
type FileHeader struct {
	// PageSize is the size of every database page. A raw stored value of
	// 1 means 65536.
	PageSize int
	// ReservedBytes is unused space at the end of each page.
	ReservedBytes byte
	// FileChangeCounter increases with every modification to the database.
	FileChangeCounter uint32
	// SizeInPages is the size of the database in pages.
	SizeInPages uint32
	// FreelistHead is the page number of the first freelist trunk page, or 0.
	FreelistHead uint32
	// FreelistPages is the total number of pages on the freelist.
	FreelistPages uint32
	// SchemaCookie increases with every schema change.
	SchemaCookie uint32
}

// NewFileHeader creates a header for a new database.
func NewFileHeader(pageSize int) FileHeader {
	return FileHeader{
		PageSize:    pageSize,
		SizeInPages: 1,
	}
}

// ParseFileHeader deserializes and validates a FileHeader.
func ParseFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) != 100 {
		return FileHeader{}, fmt.Errorf("%w: header must be 100 bytes", ErrCorruptHeader)
	}

	if !bytes.Equal(buf[:16], []byte(headerMagic)) {
		return FileHeader{}, fmt.Errorf("%w: bad magic", ErrCorruptHeader)
	}

	pageSize := int(binary.BigEndian.Uint16(buf[16:18]))
	if pageSize == 1 {
		pageSize = 65536
	}
	if pageSize < 512 || pageSize > 65536 || pageSize&(pageSize-1) != 0 {
		return FileHeader{}, fmt.Errorf("%w: invalid page size %d", ErrCorruptHeader, pageSize)
	}

	return FileHeader{
		PageSize:          pageSize,
		ReservedBytes:     buf[20],
		FileChangeCounter: binary.BigEndian.Uint32(buf[24:28]),
		SizeInPages:       binary.BigEndian.Uint32(buf[28:32]),
		FreelistHead:      binary.BigEndian.Uint32(buf[32:36]),
		FreelistPages:     binary.BigEndian.Uint32(buf[36:40]),
		SchemaCookie:      binary.BigEndian.Uint32(buf[40:44]),
	}, nil
}

// Bytes serializes the header to its 100-byte representation.
func (h FileHeader) Bytes() []byte {
	data := make([]byte, 100)
	copy(data, headerMagic)

	pageSize := h.PageSize
	if pageSize == 65536 {
		pageSize = 1
	}
	binary.BigEndian.PutUint16(data[16:], uint16(pageSize))

	// 18	File format write version. 1 for legacy; 2 for WAL.
	data[18] = 1
	// 19	File format read version. 1 for legacy; 2 for WAL.
	data[19] = 1
	// 20	Bytes of unused "reserved" space at the end of each page.
	data[20] = h.ReservedBytes
	// 21	Maximum embedded payload fraction. Must be 64.
	data[21] = 64
	// 22	Minimum embedded payload fraction. Must be 32.
	data[22] = 32
	// 23	Leaf payload fraction. Must be 32.
	data[23] = 32

	binary.BigEndian.PutUint32(data[24:], h.FileChangeCounter)
	binary.BigEndian.PutUint32(data[28:], h.SizeInPages)
	binary.BigEndian.PutUint32(data[32:], h.FreelistHead)
	binary.BigEndian.PutUint32(data[36:], h.FreelistPages)
	binary.BigEndian.PutUint32(data[40:], h.SchemaCookie)
	// Schema format number.
	binary.BigEndian.PutUint32(data[44:], 4)
	// Text encoding. 1 for UTF-8.
	binary.BigEndian.PutUint32(data[56:], 1)
	// Version-valid-for and sqlite version number.
	binary.BigEndian.PutUint32(data[92:], h.FileChangeCounter)
	binary.BigEndian.PutUint32(data[96:], 3027002)

	return data
}
