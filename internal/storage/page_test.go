package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeLeafCell(t *testing.T, rowid int64, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	if _, err := WriteVarint(&buf, uint64(len(payload))); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteVarint(&buf, uint64(rowid)); err != nil {
		t.Fatal(err)
	}
	buf.Write(payload)
	return buf.Bytes()
}

func TestPage_InsertCell(t *testing.T) {
	r := require.New(t)

	p := NewPage(2, 256, 0, PageTypeLeaf)
	cell := makeLeafCell(t, 1, []byte{0xAA, 0xBB, 0xCC})
	r.NoError(p.InsertCell(0, cell))

	r.Equal(1, p.CellCount())
	// Content grows down from the end of the page.
	r.Equal(256-len(cell), p.CellPointer(0))
	r.Equal(cell, p.data[256-len(cell):])

	got, err := p.CellBytes(0)
	r.NoError(err)
	r.Equal(cell, got)
}

func TestPage_InsertCell_ShiftsPointers(t *testing.T) {
	r := require.New(t)

	p := NewPage(2, 256, 0, PageTypeLeaf)
	first := makeLeafCell(t, 5, []byte{5})
	second := makeLeafCell(t, 3, []byte{3})

	r.NoError(p.InsertCell(0, first))
	// Lower rowid inserted before the existing cell.
	r.NoError(p.InsertCell(0, second))

	r.Equal(2, p.CellCount())

	got0, err := p.CellBytes(0)
	r.NoError(err)
	r.Equal(second, got0)

	got1, err := p.CellBytes(1)
	r.NoError(err)
	r.Equal(first, got1)
}

func TestPage_RoundTripThroughBytes(t *testing.T) {
	r := require.New(t)

	p := NewPage(2, 256, 0, PageTypeLeaf)
	for i := 0; i < 4; i++ {
		r.NoError(p.InsertCell(i, makeLeafCell(t, int64(i+1), []byte{byte(i)})))
	}

	parsed, err := FromBytes(2, p.Data(), 0)
	r.NoError(err)
	r.Equal(4, parsed.CellCount())
	r.Equal(PageTypeLeaf, parsed.Type())

	for i := 0; i < 4; i++ {
		want, err := p.CellBytes(i)
		r.NoError(err)
		got, err := parsed.CellBytes(i)
		r.NoError(err)
		r.Equal(want, got)
	}
}

func TestPage_FromBytes_InvalidType(t *testing.T) {
	r := require.New(t)

	data := make([]byte, 256)
	data[0] = 0x07
	_, err := FromBytes(2, data, 0)
	r.ErrorIs(err, ErrCorruptTree)
}

func TestPage_RemoveCell(t *testing.T) {
	r := require.New(t)

	p := NewPage(2, 256, 0, PageTypeLeaf)
	keep := makeLeafCell(t, 1, []byte{1, 1, 1, 1})
	drop := makeLeafCell(t, 2, []byte{2, 2, 2, 2})
	r.NoError(p.InsertCell(0, keep))
	r.NoError(p.InsertCell(1, drop))

	free := p.freeTotal()
	size, err := p.cellSize(1)
	r.NoError(err)

	r.NoError(p.RemoveCell(1, size))
	r.Equal(1, p.CellCount())
	// The removed cell's space plus its pointer slot come back.
	r.Equal(free+size+2, p.freeTotal())

	got, err := p.CellBytes(0)
	r.NoError(err)
	r.Equal(keep, got)
}

func TestPage_InsertCell_DefragmentsWhenGapIsShort(t *testing.T) {
	r := require.New(t)

	p := NewPage(2, 256, 0, PageTypeLeaf)

	// Fill the page with equal-sized cells.
	payload := make([]byte, 20)
	var sizes []int
	for i := 0; p.Fits(len(makeLeafCell(t, int64(i+1), payload))); i++ {
		cell := makeLeafCell(t, int64(i+1), payload)
		r.NoError(p.InsertCell(i, cell))
		sizes = append(sizes, len(cell))
	}
	r.Greater(len(sizes), 3)

	// Free two non-adjacent cells, leaving holes too small on their own.
	r.NoError(p.RemoveCell(2, sizes[2]))
	r.NoError(p.RemoveCell(0, sizes[0]))

	// A cell larger than either hole fits only after defragmentation.
	big := makeLeafCell(t, 99, make([]byte, 30))
	r.True(p.Fits(len(big)))
	r.NoError(p.InsertCell(0, big))

	got, err := p.CellBytes(0)
	r.NoError(err)
	r.Equal(big, got)
}

func TestPage_Fits(t *testing.T) {
	r := require.New(t)

	p := NewPage(2, 256, 0, PageTypeLeaf)
	free := p.freeTotal()

	r.True(p.Fits(free - 2))
	r.False(p.Fits(free - 1))
}

func TestPage_HeaderOffsetOnPageOne(t *testing.T) {
	r := require.New(t)

	p := NewPage(1, 512, 0, PageTypeLeaf)
	r.Equal(byte(PageTypeLeaf), p.Data()[100])

	cell := makeLeafCell(t, 1, []byte{0xFF})
	r.NoError(p.InsertCell(0, cell))
	// The pointer array starts after the 100-byte file header region.
	r.Equal(512-len(cell), p.CellPointer(0))
}

func TestPage_InteriorRightPage(t *testing.T) {
	r := require.New(t)

	p := NewPage(2, 256, 0, PageTypeInterior)
	p.SetRightPage(7)
	r.Equal(7, p.RightPage())

	parsed, err := FromBytes(2, p.Data(), 0)
	r.NoError(err)
	r.Equal(7, parsed.RightPage())
}

func TestPage_SetCellChild(t *testing.T) {
	r := require.New(t)

	p := NewPage(2, 256, 0, PageTypeInterior)
	r.NoError(p.InsertCell(0, makeTableInteriorCell(3, 10)))

	child, err := p.CellChild(0)
	r.NoError(err)
	r.Equal(3, child)

	r.NoError(p.SetCellChild(0, 9))
	child, err = p.CellChild(0)
	r.NoError(err)
	r.Equal(9, child)
}
