package storage

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// File is a page-addressed source and destination of database pages.
type File interface {
	PageSize() int
	Reserved() byte
	TotalPages() int
	Header() FileHeader
	ReadPage(page int) ([]byte, error)
	WritePage(page int, data []byte) error
	WriteHeader(h FileHeader) error
	Sync() error
	Close() error
}

// DbFile is a File backed by a single database file on disk.
type DbFile struct {
	path       string
	header     FileHeader
	file       *os.File
	totalPages int

	mu *sync.RWMutex
}

// OpenDbFile opens or creates a database file. pageSize applies only when
// the file is created; an existing file dictates its own page size.
func OpenDbFile(path string, pageSize int) (*DbFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}

	// Brand new database: write the header and the sqlite_master root page.
	if info.Size() == 0 {
		header := NewFileHeader(pageSize)
		root := NewPage(1, pageSize, header.ReservedBytes, PageTypeLeaf)
		copy(root.Data(), header.Bytes())
		if _, err := file.WriteAt(root.Data(), 0); err != nil {
			file.Close()
			return nil, fmt.Errorf("%w: %v", ErrIo, err)
		}
		if err := file.Sync(); err != nil {
			file.Close()
			return nil, fmt.Errorf("%w: %v", ErrIo, err)
		}
		return &DbFile{
			path:       path,
			header:     header,
			file:       file,
			totalPages: 1,
			mu:         &sync.RWMutex{},
		}, nil
	}

	headerBytes := make([]byte, 100)
	if _, err := file.ReadAt(headerBytes, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}

	header, err := ParseFileHeader(headerBytes)
	if err != nil {
		file.Close()
		return nil, err
	}

	if info.Size()%int64(header.PageSize) != 0 {
		file.Close()
		return nil, fmt.Errorf("%w: file length %d is not a multiple of page size %d",
			ErrCorruptHeader, info.Size(), header.PageSize)
	}

	return &DbFile{
		path:       path,
		header:     header,
		file:       file,
		totalPages: int(info.Size() / int64(header.PageSize)),
		mu:         &sync.RWMutex{},
	}, nil
}

func (f *DbFile) Path() string { return f.path }

func (f *DbFile) PageSize() int { return f.header.PageSize }

func (f *DbFile) Reserved() byte { return f.header.ReservedBytes }

func (f *DbFile) Header() FileHeader { return f.header }

func (f *DbFile) TotalPages() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.totalPages
}

// ReadPage reads a whole page from disk.
func (f *DbFile) ReadPage(page int) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if page < 1 || page > f.totalPages {
		return nil, fmt.Errorf("%w: page %d out of bounds (%d total)", ErrIo, page, f.totalPages)
	}

	data := make([]byte, f.header.PageSize)
	n, err := f.file.ReadAt(data, int64(page-1)*int64(f.header.PageSize))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading page %d: %v", ErrIo, page, err)
	}
	if n != f.header.PageSize {
		return nil, fmt.Errorf("%w: short read of page %d", ErrIo, page)
	}

	return data, nil
}

// WritePage writes a whole page to disk. Writing one page past the end
// extends the file.
func (f *DbFile) WritePage(page int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) != f.header.PageSize {
		return fmt.Errorf("%w: page %d write is %d bytes, page size is %d", ErrIo, page, len(data), f.header.PageSize)
	}
	if page < 1 || page > f.totalPages+1 {
		return fmt.Errorf("%w: cannot write page %d with %d total pages", ErrIo, page, f.totalPages)
	}

	if _, err := f.file.WriteAt(data, int64(page-1)*int64(f.header.PageSize)); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", ErrIo, page, err)
	}

	if page > f.totalPages {
		f.totalPages = page
	}

	return nil
}

// WriteHeader persists header changes into the first 100 bytes of the file.
func (f *DbFile) WriteHeader(h FileHeader) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.file.WriteAt(h.Bytes(), 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIo, err)
	}
	f.header = h
	return nil
}

func (f *DbFile) Sync() error {
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrIo, err)
	}
	return nil
}

func (f *DbFile) Close() error {
	return f.file.Close()
}

var _ File = (*DbFile)(nil)

// MemoryFile is an in-memory File used by tests.
type MemoryFile struct {
	header FileHeader
	data   []byte
}

// NewMemoryFile creates an empty in-memory database.
func NewMemoryFile(pageSize int) *MemoryFile {
	header := NewFileHeader(pageSize)
	root := NewPage(1, pageSize, header.ReservedBytes, PageTypeLeaf)
	copy(root.Data(), header.Bytes())

	return &MemoryFile{
		header: header,
		data:   append([]byte(nil), root.Data()...),
	}
}

func (m *MemoryFile) PageSize() int { return m.header.PageSize }

func (m *MemoryFile) Reserved() byte { return m.header.ReservedBytes }

func (m *MemoryFile) Header() FileHeader { return m.header }

func (m *MemoryFile) TotalPages() int { return len(m.data) / m.header.PageSize }

func (m *MemoryFile) ReadPage(page int) ([]byte, error) {
	offset := (page - 1) * m.header.PageSize
	if page < 1 || offset+m.header.PageSize > len(m.data) {
		return nil, fmt.Errorf("%w: page does not exist: %d", ErrIo, page)
	}
	data := make([]byte, m.header.PageSize)
	copy(data, m.data[offset:])
	return data, nil
}

func (m *MemoryFile) WritePage(page int, data []byte) error {
	if len(data) != m.header.PageSize {
		return fmt.Errorf("%w: page %d write is %d bytes", ErrIo, page, len(data))
	}
	offset := (page - 1) * m.header.PageSize
	for offset+m.header.PageSize > len(m.data) {
		m.data = append(m.data, make([]byte, m.header.PageSize)...)
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *MemoryFile) WriteHeader(h FileHeader) error {
	copy(m.data, h.Bytes())
	m.header = h
	return nil
}

func (m *MemoryFile) Sync() error { return nil }

func (m *MemoryFile) Close() error { return nil }

var _ File = (*MemoryFile)(nil)
