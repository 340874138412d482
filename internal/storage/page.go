package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PageType is the btree page type tag. See associated enumeration values.
type PageType byte

const (
	// PageTypeInteriorIndex interior index page
	PageTypeInteriorIndex PageType = 0x02

	// PageTypeInterior interior table page
	PageTypeInterior PageType = 0x05

	// PageTypeLeafIndex leaf index page
	PageTypeLeafIndex PageType = 0x0A

	// PageTypeLeaf leaf table page
	PageTypeLeaf PageType = 0x0D
)

func validPageType(t PageType) bool {
	switch t {
	case PageTypeInteriorIndex, PageTypeInterior, PageTypeLeafIndex, PageTypeLeaf:
		return true
	}
	return false
}

// PageHeader contains metadata about a btree page.
//
// Layout: 1 byte type, 2 bytes first freeblock offset, 2 bytes cell count,
// 2 bytes cell content start (0 is interpreted as 65536), 1 byte fragmented
// free bytes, and, on interior pages only, a 4 byte right-most child pointer.
// On page 1 the header begins after the 100-byte file header.
type PageHeader struct {
	// Type is the PageType for the page.
	Type PageType

	// FreeBlock is the offset of the first freeblock on the page, or zero.
	// Freeblocks form a chain: 2 bytes next-freeblock offset, 2 bytes size.
	FreeBlock uint16

	// NumCells is the number of cells stored in this page.
	NumCells uint16

	// CellsOffset is the start of the cell content area.
	CellsOffset uint16

	// FragmentedBytes counts unusable bytes within the cell content area.
	FragmentedBytes byte

	// RightPage is the right-most child pointer. Interior pages only.
	RightPage uint32
}

// MemPage is an in-memory image of a single database page.
type MemPage struct {
	header     PageHeader
	pageNumber int
	data       []byte
	usable     int
	dirty      bool
}

// NewPage initializes an empty page of the given type.
func NewPage(pageNumber int, pageSize int, reserved byte, pageType PageType) *MemPage {
	usable := pageSize - int(reserved)
	p := &MemPage{
		header: PageHeader{
			Type:        pageType,
			CellsOffset: uint16(usable % 65536),
		},
		pageNumber: pageNumber,
		data:       make([]byte, pageSize),
		usable:     usable,
		dirty:      true,
	}
	p.updateHeaderData()
	return p
}

// FromBytes parses a raw page image.
func FromBytes(pageNumber int, data []byte, reserved byte) (*MemPage, error) {
	p := &MemPage{
		pageNumber: pageNumber,
		data:       data,
		usable:     len(data) - int(reserved),
	}

	o := p.headerOffset()
	if len(data) < o+12 {
		return nil, fmt.Errorf("%w: page %d too small", ErrCorruptTree, pageNumber)
	}

	p.header = PageHeader{
		Type:            PageType(data[o]),
		FreeBlock:       binary.BigEndian.Uint16(data[o+1 : o+3]),
		NumCells:        binary.BigEndian.Uint16(data[o+3 : o+5]),
		CellsOffset:     binary.BigEndian.Uint16(data[o+5 : o+7]),
		FragmentedBytes: data[o+7],
	}
	if !validPageType(p.header.Type) {
		return nil, fmt.Errorf("%w: page %d has invalid type 0x%02x", ErrCorruptTree, pageNumber, data[o])
	}
	if p.header.Type == PageTypeInterior || p.header.Type == PageTypeInteriorIndex {
		p.header.RightPage = binary.BigEndian.Uint32(data[o+8 : o+12])
	}

	return p, nil
}

// Number returns the 1-based page number.
func (p *MemPage) Number() int { return p.pageNumber }

// Type returns the btree page type.
func (p *MemPage) Type() PageType { return p.header.Type }

// Leaf reports whether the page is a table or index leaf.
func (p *MemPage) Leaf() bool {
	return p.header.Type == PageTypeLeaf || p.header.Type == PageTypeLeafIndex
}

// Index reports whether the page belongs to an index btree.
func (p *MemPage) Index() bool {
	return p.header.Type == PageTypeLeafIndex || p.header.Type == PageTypeInteriorIndex
}

// CellCount returns the number of cells on the page.
func (p *MemPage) CellCount() int { return int(p.header.NumCells) }

// RightPage returns the right-most child pointer of an interior page.
func (p *MemPage) RightPage() int { return int(p.header.RightPage) }

// SetRightPage updates the right-most child pointer.
func (p *MemPage) SetRightPage(page int) {
	p.header.RightPage = uint32(page)
	p.dirty = true
	p.updateHeaderData()
}

// Data exposes the raw page image.
func (p *MemPage) Data() []byte { return p.data }

func (p *MemPage) headerOffset() int {
	if p.pageNumber == 1 {
		return 100
	}
	return 0
}

func (p *MemPage) headerSize() int {
	if p.Leaf() {
		return 8
	}
	return 12
}

// contentStart is the offset of the cell content area.
func (p *MemPage) contentStart() int {
	if p.header.CellsOffset == 0 {
		return 65536
	}
	return int(p.header.CellsOffset)
}

// pointerArrayEnd is the first byte past the cell pointer array.
func (p *MemPage) pointerArrayEnd() int {
	return p.headerOffset() + p.headerSize() + 2*int(p.header.NumCells)
}

// CellPointer returns the content offset of cell i.
func (p *MemPage) CellPointer(i int) int {
	o := p.headerOffset() + p.headerSize() + 2*i
	return int(binary.BigEndian.Uint16(p.data[o : o+2]))
}

// Cell returns the raw bytes of cell i through the end of the usable region.
// Cell parsing consumes only what the cell's encoding declares.
func (p *MemPage) Cell(i int) ([]byte, error) {
	if i < 0 || i >= int(p.header.NumCells) {
		return nil, fmt.Errorf("%w: cell %d out of range on page %d", ErrCorruptTree, i, p.pageNumber)
	}
	ptr := p.CellPointer(i)
	if ptr < p.headerOffset()+p.headerSize() || ptr >= p.usable {
		return nil, fmt.Errorf("%w: cell pointer %d out of range on page %d", ErrCorruptTree, ptr, p.pageNumber)
	}
	return p.data[ptr:p.usable], nil
}

// CellBytes returns exactly the bytes cell i occupies in the content area.
func (p *MemPage) CellBytes(i int) ([]byte, error) {
	size, err := p.cellSize(i)
	if err != nil {
		return nil, err
	}
	cell, err := p.Cell(i)
	if err != nil {
		return nil, err
	}
	return cell[:size], nil
}

// SetCellChild rewrites the 4-byte left child pointer of interior cell i.
func (p *MemPage) SetCellChild(i int, child int) error {
	if p.Leaf() {
		return fmt.Errorf("%w: leaf page %d has no child pointers", ErrCorruptTree, p.pageNumber)
	}
	cell, err := p.Cell(i)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(cell[:4], uint32(child))
	p.dirty = true
	return nil
}

// CellChild reads the 4-byte left child pointer of interior cell i.
func (p *MemPage) CellChild(i int) (int, error) {
	if p.Leaf() {
		return 0, fmt.Errorf("%w: leaf page %d has no child pointers", ErrCorruptTree, p.pageNumber)
	}
	cell, err := p.Cell(i)
	if err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(cell[:4])), nil
}

// freeGap is the contiguous space between the pointer array and cell content.
func (p *MemPage) freeGap() int {
	return p.contentStart() - p.pointerArrayEnd()
}

// freeTotal includes freeblocks and fragments reclaimable by defragmenting.
func (p *MemPage) freeTotal() int {
	total := p.freeGap() + int(p.header.FragmentedBytes)
	next := int(p.header.FreeBlock)
	for next != 0 {
		total += int(binary.BigEndian.Uint16(p.data[next+2 : next+4]))
		next = int(binary.BigEndian.Uint16(p.data[next : next+2]))
	}
	return total
}

// Fits reports whether a cell of n bytes can be placed on the page.
func (p *MemPage) Fits(n int) bool {
	return p.freeTotal() >= n+2
}

// InsertCell places cell bytes at index i, shifting the pointer array.
// The caller has already established sort order and that the cell fits.
func (p *MemPage) InsertCell(i int, cell []byte) error {
	need := len(cell) + 2
	if p.freeGap() < need {
		if p.freeTotal() < need {
			return fmt.Errorf("cell of %d bytes does not fit on page %d", len(cell), p.pageNumber)
		}
		if err := p.Defragment(); err != nil {
			return err
		}
	}

	// Cells are allocated from the top of the content area downward.
	offset := p.contentStart() - len(cell)
	copy(p.data[offset:], cell)

	// Shift pointers for cells at or after i.
	base := p.headerOffset() + p.headerSize()
	copy(p.data[base+2*(i+1):base+2*int(p.header.NumCells)+2], p.data[base+2*i:base+2*int(p.header.NumCells)])
	binary.BigEndian.PutUint16(p.data[base+2*i:], uint16(offset))

	p.header.NumCells++
	p.header.CellsOffset = uint16(offset % 65536)
	p.dirty = true
	p.updateHeaderData()
	return nil
}

// RemoveCell deletes cell i of the given content size, adding its space to
// the freeblock chain. Pages are not compacted eagerly.
func (p *MemPage) RemoveCell(i int, size int) error {
	if i < 0 || i >= int(p.header.NumCells) {
		return fmt.Errorf("%w: cell %d out of range on page %d", ErrCorruptTree, i, p.pageNumber)
	}
	offset := p.CellPointer(i)

	base := p.headerOffset() + p.headerSize()
	copy(p.data[base+2*i:], p.data[base+2*(i+1):base+2*int(p.header.NumCells)])
	p.header.NumCells--

	if size < 4 {
		p.header.FragmentedBytes += byte(size)
	} else {
		// Insert into the freeblock chain ordered by offset.
		prev := 0
		next := int(p.header.FreeBlock)
		for next != 0 && next < offset {
			prev = next
			next = int(binary.BigEndian.Uint16(p.data[next : next+2]))
		}
		binary.BigEndian.PutUint16(p.data[offset:], uint16(next))
		binary.BigEndian.PutUint16(p.data[offset+2:], uint16(size))
		if prev == 0 {
			p.header.FreeBlock = uint16(offset)
		} else {
			binary.BigEndian.PutUint16(p.data[prev:], uint16(offset))
		}
	}

	p.dirty = true
	p.updateHeaderData()
	return nil
}

// ReplaceCell swaps the contents of cell i. sized as the old cell occupied.
func (p *MemPage) ReplaceCell(i int, oldSize int, cell []byte) error {
	if err := p.RemoveCell(i, oldSize); err != nil {
		return err
	}
	return p.InsertCell(i, cell)
}

// Defragment rebuilds the cell content area to make free space contiguous.
func (p *MemPage) Defragment() error {
	type cellImage struct {
		offset int
		size   int
	}

	cells := make([]cellImage, p.CellCount())
	for i := range cells {
		size, err := p.cellSize(i)
		if err != nil {
			return err
		}
		cells[i] = cellImage{offset: p.CellPointer(i), size: size}
	}

	// Copy cells out, then lay them back in from the top of the page.
	var scratch bytes.Buffer
	for _, c := range cells {
		scratch.Write(p.data[c.offset : c.offset+c.size])
	}

	base := p.headerOffset() + p.headerSize()
	writeAt := p.usable
	consumed := 0
	raw := scratch.Bytes()
	for i, c := range cells {
		writeAt -= c.size
		copy(p.data[writeAt:], raw[consumed:consumed+c.size])
		consumed += c.size
		binary.BigEndian.PutUint16(p.data[base+2*i:], uint16(writeAt))
	}

	p.header.CellsOffset = uint16(writeAt % 65536)
	p.header.FreeBlock = 0
	p.header.FragmentedBytes = 0
	p.dirty = true
	p.updateHeaderData()
	return nil
}

// cellSize computes the bytes cell i occupies in the content area.
func (p *MemPage) cellSize(i int) (int, error) {
	cell, err := p.Cell(i)
	if err != nil {
		return 0, err
	}
	r := bytes.NewReader(cell)

	switch p.header.Type {
	case PageTypeInterior:
		// 4-byte child pointer followed by the rowid key.
		if _, err := r.Seek(4, 0); err != nil {
			return 0, err
		}
		_, n, err := ReadVarint(r)
		if err != nil {
			return 0, fmt.Errorf("%w: truncated interior cell", ErrCorruptTree)
		}
		return 4 + n, nil

	case PageTypeLeaf:
		payloadLen, n1, err := ReadVarint(r)
		if err != nil {
			return 0, fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
		}
		_, n2, err := ReadVarint(r)
		if err != nil {
			return 0, fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
		}
		local, spills := p.LocalPayload(int(payloadLen))
		size := n1 + n2 + local
		if spills {
			size += 4
		}
		return size, nil

	case PageTypeLeafIndex, PageTypeInteriorIndex:
		child := 0
		if p.header.Type == PageTypeInteriorIndex {
			child = 4
			if _, err := r.Seek(4, 0); err != nil {
				return 0, err
			}
		}
		payloadLen, n, err := ReadVarint(r)
		if err != nil {
			return 0, fmt.Errorf("%w: truncated index cell", ErrCorruptTree)
		}
		local, spills := p.LocalPayload(int(payloadLen))
		size := child + n + local
		if spills {
			size += 4
		}
		return size, nil
	}

	return 0, fmt.Errorf("%w: page %d has invalid type", ErrCorruptTree, p.pageNumber)
}

// LocalPayload computes how many payload bytes live on the page itself.
// The rest, if any, spill to an overflow chain.
func (p *MemPage) LocalPayload(payloadLen int) (local int, spills bool) {
	maxLocal := p.maxLocal()
	if payloadLen <= maxLocal {
		return payloadLen, false
	}

	minLocal := (p.usable-12)*32/255 - 23
	k := minLocal + (payloadLen-minLocal)%(p.usable-4)
	if k > maxLocal {
		return minLocal, true
	}
	return k, true
}

func (p *MemPage) maxLocal() int {
	if p.Index() {
		return (p.usable-12)*64/255 - 23
	}
	return p.usable - 35
}

// updateHeaderData syncs the parsed header into the raw page image.
func (p *MemPage) updateHeaderData() {
	o := p.headerOffset()
	p.data[o] = byte(p.header.Type)
	binary.BigEndian.PutUint16(p.data[o+1:], p.header.FreeBlock)
	binary.BigEndian.PutUint16(p.data[o+3:], p.header.NumCells)
	binary.BigEndian.PutUint16(p.data[o+5:], p.header.CellsOffset)
	p.data[o+7] = p.header.FragmentedBytes
	if !p.Leaf() {
		binary.BigEndian.PutUint32(p.data[o+8:], p.header.RightPage)
	}
}

// Clone returns a deep copy of the page.
func (p *MemPage) Clone() *MemPage {
	data := make([]byte, len(p.data))
	copy(data, p.data)
	return &MemPage{
		header:     p.header,
		pageNumber: p.pageNumber,
		data:       data,
		usable:     p.usable,
		dirty:      p.dirty,
	}
}

// Reinitialize resets the page image to an empty page of the given type,
// preserving the page number. Used when the root grows a level.
func (p *MemPage) Reinitialize(pageType PageType) {
	for i := p.headerOffset(); i < len(p.data); i++ {
		p.data[i] = 0
	}
	p.header = PageHeader{
		Type:        pageType,
		CellsOffset: uint16(p.usable % 65536),
	}
	p.dirty = true
	p.updateHeaderData()
}

// CopyTo copies this page's btree content onto dst. dst keeps its own
// page number; page 1 header displacement is accounted for.
func (p *MemPage) CopyTo(dst *MemPage) {
	if p.headerOffset() == dst.headerOffset() {
		copy(dst.data, p.data)
	} else {
		// Moving off of (or onto) page 1 shifts all offsets; rebuild by cell.
		dst.Reinitialize(p.header.Type)
		dst.header.RightPage = p.header.RightPage
		for i := 0; i < p.CellCount(); i++ {
			size, err := p.cellSize(i)
			if err != nil {
				continue
			}
			cell, _ := p.Cell(i)
			_ = dst.InsertCell(i, cell[:size])
		}
		dst.updateHeaderData()
		return
	}
	dst.header = p.header
	dst.dirty = true
	dst.updateHeaderData()
}
