package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// Mode gates pager mutation.
type Mode int

const (
	ModeNone Mode = iota
	ModeRead
	ModeWrite
)

// Pager manages database paging. Dirty pages accumulate in memory until
// Flush persists them (commit); Reset discards them (rollback).
type Pager interface {
	Mode() Mode
	SetMode(Mode)
	PageSize() int
	TotalPages() int
	Header() FileHeader
	BumpSchemaCookie()
	Read(page int) (*MemPage, error)
	ReadRaw(page int) ([]byte, error)
	Write(pages ...*MemPage) error
	Allocate(PageType) (*MemPage, error)
	AllocateRaw() (int, []byte, error)
	Free(page int) error
	Flush() error
	Reset()
}

type pager struct {
	mode   Mode
	file   File
	header FileHeader

	// dirty holds modified btree pages; dirtyRaw holds modified freelist
	// pages, which have no btree structure.
	dirty    map[int]*MemPage
	dirtyRaw map[int][]byte

	// clean caches pages read from the file. Admission is best effort;
	// a miss only costs a re-read.
	clean *ristretto.Cache[int, *MemPage]
}

// NewPager creates a pager over a database file.
func NewPager(file File) (Pager, error) {
	clean, err := ristretto.NewCache(&ristretto.Config[int, *MemPage]{
		NumCounters: 1 << 14,
		MaxCost:     2048,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	header := file.Header()
	if header.SizeInPages == 0 {
		// Legacy files leave the in-header page count at zero.
		header.SizeInPages = uint32(file.TotalPages())
	}

	return &pager{
		mode:     ModeRead,
		file:     file,
		header:   header,
		dirty:    make(map[int]*MemPage),
		dirtyRaw: make(map[int][]byte),
		clean:    clean,
	}, nil
}

func (p *pager) Mode() Mode { return p.mode }

func (p *pager) SetMode(mode Mode) { p.mode = mode }

func (p *pager) PageSize() int { return p.header.PageSize }

func (p *pager) TotalPages() int { return int(p.header.SizeInPages) }

func (p *pager) Header() FileHeader { return p.header }

func (p *pager) BumpSchemaCookie() { p.header.SchemaCookie++ }

// Read returns the current image of a btree page. In write mode the caller
// receives a private copy so an abandoned modification never taints the
// clean cache.
func (p *pager) Read(pageNumber int) (*MemPage, error) {
	if pageNumber < 1 || pageNumber > int(p.header.SizeInPages) {
		return nil, fmt.Errorf("%w: page %d out of bounds", ErrIo, pageNumber)
	}

	if pg, ok := p.dirty[pageNumber]; ok {
		return pg, nil
	}

	pg, err := p.readClean(pageNumber)
	if err != nil {
		return nil, err
	}

	if p.mode == ModeWrite {
		return pg.Clone(), nil
	}
	return pg, nil
}

func (p *pager) readClean(pageNumber int) (*MemPage, error) {
	if pg, ok := p.clean.Get(pageNumber); ok {
		return pg, nil
	}

	data, err := p.file.ReadPage(pageNumber)
	if err != nil {
		return nil, err
	}

	pg, err := FromBytes(pageNumber, data, p.file.Reserved())
	if err != nil {
		return nil, err
	}

	p.clean.Set(pageNumber, pg, 1)
	return pg, nil
}

// Write registers modified pages with the pager.
func (p *pager) Write(pages ...*MemPage) error {
	if p.mode != ModeWrite {
		return errors.New("write: cannot modify pager in read mode")
	}

	for _, pg := range pages {
		p.dirty[pg.Number()] = pg
	}

	return nil
}

// Allocate returns a new dirty page, reusing the freelist before growing
// the file.
func (p *pager) Allocate(pageType PageType) (*MemPage, error) {
	if p.mode != ModeWrite {
		return nil, errors.New("allocate: cannot modify pager in read mode")
	}

	if p.header.FreelistHead != 0 {
		pageNumber, err := p.allocateFromFreelist()
		if err != nil {
			return nil, err
		}
		pg := NewPage(pageNumber, p.header.PageSize, p.header.ReservedBytes, pageType)
		p.dirty[pageNumber] = pg
		return pg, nil
	}

	p.header.SizeInPages++
	pg := NewPage(int(p.header.SizeInPages), p.header.PageSize, p.header.ReservedBytes, pageType)
	p.dirty[pg.Number()] = pg
	return pg, nil
}

// AllocateRaw returns a new dirty page with no btree structure, for
// overflow chains.
func (p *pager) AllocateRaw() (int, []byte, error) {
	if p.mode != ModeWrite {
		return 0, nil, errors.New("allocate: cannot modify pager in read mode")
	}

	if p.header.FreelistHead != 0 {
		pageNumber, err := p.allocateFromFreelist()
		if err != nil {
			return 0, nil, err
		}
		raw := make([]byte, p.header.PageSize)
		p.dirtyRaw[pageNumber] = raw
		return pageNumber, raw, nil
	}

	p.header.SizeInPages++
	raw := make([]byte, p.header.PageSize)
	p.dirtyRaw[int(p.header.SizeInPages)] = raw
	return int(p.header.SizeInPages), raw, nil
}

// Freelist trunk page layout: 4 bytes next trunk page, 4 bytes leaf count,
// then that many 4-byte leaf page numbers.
func (p *pager) allocateFromFreelist() (int, error) {
	head := int(p.header.FreelistHead)
	trunk, err := p.readRaw(head)
	if err != nil {
		return 0, err
	}

	count := binary.BigEndian.Uint32(trunk[4:8])
	if count > 0 {
		pageNumber := int(binary.BigEndian.Uint32(trunk[8+4*(count-1):]))
		binary.BigEndian.PutUint32(trunk[4:8], count-1)
		p.dirtyRaw[head] = trunk
		p.header.FreelistPages--
		if pageNumber < 2 || pageNumber > int(p.header.SizeInPages) {
			return 0, fmt.Errorf("%w: freelist leaf %d out of range", ErrCorruptTree, pageNumber)
		}
		return pageNumber, nil
	}

	// Empty trunk: reuse the trunk page itself.
	p.header.FreelistHead = binary.BigEndian.Uint32(trunk[0:4])
	p.header.FreelistPages--
	return head, nil
}

// Free returns a page to the freelist.
func (p *pager) Free(pageNumber int) error {
	if p.mode != ModeWrite {
		return errors.New("free: cannot modify pager in read mode")
	}
	if pageNumber < 2 || pageNumber > int(p.header.SizeInPages) {
		return fmt.Errorf("%w: cannot free page %d", ErrIo, pageNumber)
	}

	if p.header.FreelistHead == 0 {
		trunk := make([]byte, p.header.PageSize)
		p.dirtyRaw[pageNumber] = trunk
		p.header.FreelistHead = uint32(pageNumber)
		p.header.FreelistPages++
		delete(p.dirty, pageNumber)
		return nil
	}

	head := int(p.header.FreelistHead)
	trunk, err := p.readRaw(head)
	if err != nil {
		return err
	}

	count := binary.BigEndian.Uint32(trunk[4:8])
	usable := p.header.PageSize - int(p.header.ReservedBytes)
	if int(8+4*(count+1)) <= usable {
		binary.BigEndian.PutUint32(trunk[8+4*count:], uint32(pageNumber))
		binary.BigEndian.PutUint32(trunk[4:8], count+1)
		p.dirtyRaw[head] = trunk
	} else {
		// Trunk is full: the freed page becomes the new head trunk.
		newTrunk := make([]byte, p.header.PageSize)
		binary.BigEndian.PutUint32(newTrunk[0:4], uint32(head))
		p.dirtyRaw[pageNumber] = newTrunk
		p.header.FreelistHead = uint32(pageNumber)
	}

	p.header.FreelistPages++
	delete(p.dirty, pageNumber)
	return nil
}

// ReadRaw returns the raw image of a page with no btree structure, such
// as an overflow page.
func (p *pager) ReadRaw(pageNumber int) ([]byte, error) {
	if pageNumber < 1 || pageNumber > int(p.header.SizeInPages) {
		return nil, fmt.Errorf("%w: page %d out of bounds", ErrIo, pageNumber)
	}
	return p.readRaw(pageNumber)
}

func (p *pager) readRaw(pageNumber int) ([]byte, error) {
	if raw, ok := p.dirtyRaw[pageNumber]; ok {
		return raw, nil
	}
	if pg, ok := p.dirty[pageNumber]; ok {
		data := make([]byte, len(pg.Data()))
		copy(data, pg.Data())
		return data, nil
	}
	return p.file.ReadPage(pageNumber)
}

// Flush writes all dirty pages and the updated header, then syncs.
func (p *pager) Flush() error {
	if p.mode != ModeWrite {
		return errors.New("flush: cannot modify pager in read mode")
	}

	p.header.FileChangeCounter++

	// Page 1 carries the file header in its first 100 bytes; keep the
	// image current before it hits the disk.
	if pg, ok := p.dirty[1]; ok {
		copy(pg.Data(), p.header.Bytes())
	}

	for pageNumber, pg := range p.dirty {
		if err := p.file.WritePage(pageNumber, pg.Data()); err != nil {
			return err
		}
	}
	for pageNumber, raw := range p.dirtyRaw {
		if err := p.file.WritePage(pageNumber, raw); err != nil {
			return err
		}
	}

	if err := p.file.WriteHeader(p.header); err != nil {
		return err
	}

	if err := p.file.Sync(); err != nil {
		return err
	}

	// Promote flushed pages to the clean cache.
	for pageNumber, pg := range p.dirty {
		pg.dirty = false
		p.clean.Set(pageNumber, pg, 1)
		delete(p.dirty, pageNumber)
	}
	for pageNumber := range p.dirtyRaw {
		p.clean.Del(pageNumber)
		delete(p.dirtyRaw, pageNumber)
	}

	return nil
}

// Reset discards all uncommitted changes.
func (p *pager) Reset() {
	p.dirty = make(map[int]*MemPage)
	p.dirtyRaw = make(map[int][]byte)

	header := p.file.Header()
	if header.SizeInPages == 0 {
		header.SizeInPages = uint32(p.file.TotalPages())
	}
	p.header = header
}

var _ Pager = (*pager)(nil)
