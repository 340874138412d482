package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// BTree navigates and mutates a single table or index btree.
//
// The root page number never changes: when the root overflows, its
// content moves to a fresh child and the root is rebuilt one level
// deeper, so sqlite_master root references stay valid.
type BTree struct {
	rootPage int
	pager    Pager
	index    bool
}

// NewBTreeTable opens a table btree rooted at the given page.
func NewBTreeTable(rootPage int, p Pager) *BTree {
	return &BTree{rootPage: rootPage, pager: p}
}

// NewBTreeIndex opens an index btree rooted at the given page.
func NewBTreeIndex(rootPage int, p Pager) *BTree {
	return &BTree{rootPage: rootPage, pager: p, index: true}
}

// tableLeafEntry parses cell i of a table leaf page: payload length varint,
// rowid varint, then the payload with any overflow chain resolved.
func tableLeafEntry(pager Pager, p *MemPage, i int) (int64, []byte, error) {
	cell, err := p.Cell(i)
	if err != nil {
		return 0, nil, err
	}
	r := bytes.NewReader(cell)

	payloadLen, n1, err := ReadVarint(r)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
	}
	rowid, n2, err := ReadVarint(r)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
	}

	payload, err := assemblePayload(pager, p, cell[n1+n2:], int(payloadLen))
	if err != nil {
		return 0, nil, err
	}

	return int64(rowid), payload, nil
}

// tableInteriorCell parses cell i of a table interior page.
func tableInteriorCell(p *MemPage, i int) (child int, key int64, err error) {
	cell, err := p.Cell(i)
	if err != nil {
		return 0, 0, err
	}
	child = int(binary.BigEndian.Uint32(cell[:4]))

	k, _, err := ReadVarint(bytes.NewReader(cell[4:]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: truncated interior cell", ErrCorruptTree)
	}
	return child, int64(k), nil
}

// indexEntry parses cell i of an index page and returns the key payload
// with any overflow resolved. child is zero on leaf pages.
func indexEntry(pager Pager, p *MemPage, i int) (payload []byte, child int, err error) {
	cell, err := p.Cell(i)
	if err != nil {
		return nil, 0, err
	}

	offset := 0
	if p.Type() == PageTypeInteriorIndex {
		child = int(binary.BigEndian.Uint32(cell[:4]))
		offset = 4
	}

	payloadLen, n, err := ReadVarint(bytes.NewReader(cell[offset:]))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: truncated index cell", ErrCorruptTree)
	}

	payload, err = assemblePayload(pager, p, cell[offset+n:], int(payloadLen))
	if err != nil {
		return nil, 0, err
	}
	return payload, child, nil
}

// assemblePayload gathers a cell payload, following the overflow chain
// when the payload exceeds the page-local maximum.
func assemblePayload(pager Pager, p *MemPage, local []byte, payloadLen int) ([]byte, error) {
	localLen, spills := p.LocalPayload(payloadLen)
	if !spills {
		if payloadLen > len(local) {
			return nil, fmt.Errorf("%w: payload length %d exceeds cell", ErrMalformedRecord, payloadLen)
		}
		return local[:payloadLen], nil
	}

	if localLen+4 > len(local) {
		return nil, fmt.Errorf("%w: overflowing cell too short", ErrMalformedRecord)
	}

	payload := make([]byte, 0, payloadLen)
	payload = append(payload, local[:localLen]...)

	usable := pager.PageSize() - int(pager.Header().ReservedBytes)
	next := int(binary.BigEndian.Uint32(local[localLen : localLen+4]))
	for len(payload) < payloadLen {
		if next == 0 {
			return nil, fmt.Errorf("%w: overflow chain ends before payload is complete", ErrCorruptTree)
		}
		raw, err := pager.ReadRaw(next)
		if err != nil {
			return nil, err
		}

		remaining := payloadLen - len(payload)
		chunk := usable - 4
		if chunk > remaining {
			chunk = remaining
		}
		payload = append(payload, raw[4:4+chunk]...)
		next = int(binary.BigEndian.Uint32(raw[:4]))
	}

	return payload, nil
}

// makeCell builds the on-page cell image for a new entry, writing overflow
// pages for any payload that does not fit locally.
func (b *BTree) makeCell(rowid int64, payload []byte) ([]byte, error) {
	var buf bytes.Buffer

	if _, err := WriteVarint(&buf, uint64(len(payload))); err != nil {
		return nil, err
	}
	if !b.index {
		if _, err := WriteVarint(&buf, uint64(rowid)); err != nil {
			return nil, err
		}
	}

	usable := b.pager.PageSize() - int(b.pager.Header().ReservedBytes)
	localLen, spills := localPayload(usable, b.index, len(payload))
	buf.Write(payload[:localLen])

	if spills {
		first, err := b.writeOverflow(payload[localLen:], usable)
		if err != nil {
			return nil, err
		}
		var ptr [4]byte
		binary.BigEndian.PutUint32(ptr[:], uint32(first))
		buf.Write(ptr[:])
	}

	return buf.Bytes(), nil
}

// localPayload mirrors MemPage.LocalPayload for cells built before their
// destination page is known. All pages share a usable size.
func localPayload(usable int, index bool, payloadLen int) (int, bool) {
	maxLocal := usable - 35
	if index {
		maxLocal = (usable-12)*64/255 - 23
	}
	if payloadLen <= maxLocal {
		return payloadLen, false
	}

	minLocal := (usable-12)*32/255 - 23
	k := minLocal + (payloadLen-minLocal)%(usable-4)
	if k > maxLocal {
		return minLocal, true
	}
	return k, true
}

// writeOverflow stores spilled payload bytes in a forward-linked chain
// and returns the first overflow page number.
func (b *BTree) writeOverflow(rest []byte, usable int) (int, error) {
	chunk := usable - 4

	var pages []int
	var images [][]byte
	for off := 0; off < len(rest); off += chunk {
		n, raw, err := b.pager.AllocateRaw()
		if err != nil {
			return 0, err
		}
		end := off + chunk
		if end > len(rest) {
			end = len(rest)
		}
		copy(raw[4:], rest[off:end])
		pages = append(pages, n)
		images = append(images, raw)
	}

	// Link each page to its successor.
	for i := 0; i < len(pages)-1; i++ {
		binary.BigEndian.PutUint32(images[i][:4], uint32(pages[i+1]))
	}

	return pages[0], nil
}

// pathEntry records the descent through an interior page.
// childIdx == CellCount() means the right-most pointer was taken.
type pathEntry struct {
	page     *MemPage
	childIdx int
}

func (b *BTree) childAt(p *MemPage, i int) (int, error) {
	if i == p.CellCount() {
		return p.RightPage(), nil
	}
	return p.CellChild(i)
}

func (b *BTree) checkChild(child int) error {
	if child < 1 || child > b.pager.TotalPages() {
		return fmt.Errorf("%w: child pointer %d out of range", ErrCorruptTree, child)
	}
	return nil
}

// descendToLeaf walks from the root to the leaf that owns the given key,
// recording the path. For table trees key is the rowid; for index trees
// the decoded key tuple is supplied.
func (b *BTree) descendToLeaf(rowid int64, key []Field) ([]pathEntry, *MemPage, error) {
	var path []pathEntry

	page, err := b.pager.Read(b.rootPage)
	if err != nil {
		return nil, nil, err
	}

	for !page.Leaf() {
		if len(path) > 64 {
			return nil, nil, fmt.Errorf("%w: btree too deep, likely a cycle", ErrCorruptTree)
		}

		var idx int
		if b.index {
			idx, _, err = b.searchIndexPage(page, key)
		} else {
			idx, _, err = b.searchTablePage(page, rowid)
		}
		if err != nil {
			return nil, nil, err
		}

		child, err := b.childAt(page, idx)
		if err != nil {
			return nil, nil, err
		}
		if err := b.checkChild(child); err != nil {
			return nil, nil, err
		}

		path = append(path, pathEntry{page: page, childIdx: idx})
		if page, err = b.pager.Read(child); err != nil {
			return nil, nil, err
		}
	}

	return path, page, nil
}

// searchTablePage binary-searches a page for a rowid. It returns the
// index of the first cell with key >= rowid and whether it matched.
func (b *BTree) searchTablePage(p *MemPage, rowid int64) (int, bool, error) {
	lo, hi := 0, p.CellCount()
	for lo < hi {
		mid := (lo + hi) / 2

		var key int64
		var err error
		if p.Leaf() {
			key, err = tableLeafCellRowid(p, mid)
		} else {
			_, key, err = tableInteriorCell(p, mid)
		}
		if err != nil {
			return 0, false, err
		}

		switch {
		case key < rowid:
			lo = mid + 1
		case key > rowid:
			hi = mid
		default:
			return mid, true, nil
		}
	}
	return lo, false, nil
}

// searchIndexPage binary-searches an index page for a key tuple. It
// returns the index of the first cell >= key and whether the leading
// columns of that cell matched exactly.
func (b *BTree) searchIndexPage(p *MemPage, key []Field) (int, bool, error) {
	lo, hi := 0, p.CellCount()
	found := false
	for lo < hi {
		mid := (lo + hi) / 2

		payload, _, err := indexEntry(b.pager, p, mid)
		if err != nil {
			return 0, false, err
		}
		rec, err := ReadRecord(payload)
		if err != nil {
			return 0, false, err
		}

		entryKey := rec.Fields
		if len(entryKey) > len(key) {
			entryKey = entryKey[:len(key)]
		}

		switch c := CompareKeys(entryKey, key); {
		case c < 0:
			lo = mid + 1
		case c > 0:
			hi = mid
		default:
			found = true
			hi = mid
		}
	}
	return lo, found, nil
}

func tableLeafCellRowid(p *MemPage, i int) (int64, error) {
	cell, err := p.Cell(i)
	if err != nil {
		return 0, err
	}
	r := bytes.NewReader(cell)
	if _, _, err := ReadVarint(r); err != nil {
		return 0, fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
	}
	rowid, _, err := ReadVarint(r)
	if err != nil {
		return 0, fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
	}
	return int64(rowid), nil
}

// Insert places a new entry in the btree. For table trees payload is the
// encoded record keyed by rowid; for index trees payload is the encoded
// key tuple and rowid is ignored.
func (b *BTree) Insert(rowid int64, payload []byte) error {
	cell, err := b.makeCell(rowid, payload)
	if err != nil {
		return err
	}

	var key []Field
	if b.index {
		rec, err := ReadRecord(payload)
		if err != nil {
			return err
		}
		key = rec.Fields
	}

	path, leaf, err := b.descendToLeaf(rowid, key)
	if err != nil {
		return err
	}

	var idx int
	if b.index {
		idx, _, err = b.searchIndexPage(leaf, key)
	} else {
		idx, _, err = b.searchTablePage(leaf, rowid)
	}
	if err != nil {
		return err
	}

	return b.insertAt(path, leaf, idx, cell)
}

// MaxRowid returns the largest rowid in a table btree. It reports false
// when the tree holds no entries.
func (b *BTree) MaxRowid() (int64, bool, error) {
	page, err := b.pager.Read(b.rootPage)
	if err != nil {
		return 0, false, err
	}

	for depth := 0; !page.Leaf(); depth++ {
		if depth > 64 {
			return 0, false, fmt.Errorf("%w: btree too deep, likely a cycle", ErrCorruptTree)
		}
		child := page.RightPage()
		if err := b.checkChild(child); err != nil {
			return 0, false, err
		}
		if page, err = b.pager.Read(child); err != nil {
			return 0, false, err
		}
	}

	if n := page.CellCount(); n > 0 {
		rowid, err := tableLeafCellRowid(page, n-1)
		if err != nil {
			return 0, false, err
		}
		return rowid, true, nil
	}

	// Deletes can leave the rightmost leaf empty while entries remain
	// elsewhere; fall back to a full walk.
	cursor := NewCursor(b.pager, b.rootPage)
	more, err := cursor.Rewind()
	if err != nil {
		return 0, false, err
	}
	var max int64
	found := false
	for more {
		max = cursor.Rowid()
		found = true
		if more, err = cursor.Next(); err != nil {
			return 0, false, err
		}
	}
	return max, found, nil
}

// insertAt inserts a cell at idx in page, splitting up the path as needed.
func (b *BTree) insertAt(path []pathEntry, page *MemPage, idx int, cell []byte) error {
	if page.Fits(len(cell)) {
		if err := page.InsertCell(idx, cell); err != nil {
			return err
		}
		return b.pager.Write(page)
	}
	return b.split(path, page, idx, cell)
}

// split divides an overfull page at its median and promotes the boundary
// into the parent, creating a deeper root when the root itself splits.
func (b *BTree) split(path []pathEntry, page *MemPage, idx int, cell []byte) error {
	// Gather the page's cells with the new cell in sort position.
	cells := make([][]byte, 0, page.CellCount()+1)
	for i := 0; i < page.CellCount(); i++ {
		c, err := page.CellBytes(i)
		if err != nil {
			return err
		}
		cells = append(cells, append([]byte(nil), c...))
	}
	cells = append(cells[:idx:idx], append([][]byte{cell}, cells[idx:]...)...)

	pageType := page.Type()
	rightMost := 0
	if !page.Leaf() {
		rightMost = page.RightPage()
	}

	if len(path) == 0 {
		// The root splits: move its content to a fresh child and retry,
		// keeping the root page number stable.
		child, err := b.pager.Allocate(pageType)
		if err != nil {
			return err
		}
		for i, c := range cells {
			if i == idx {
				continue
			}
			target := i
			if i > idx {
				target--
			}
			if err := child.InsertCell(target, c); err != nil {
				return err
			}
		}
		if !child.Leaf() {
			child.SetRightPage(rightMost)
		}

		interiorType := PageTypeInterior
		if b.index {
			interiorType = PageTypeInteriorIndex
		}
		page.Reinitialize(interiorType)
		page.SetRightPage(child.Number())

		if err := b.pager.Write(page, child); err != nil {
			return err
		}
		return b.insertAt([]pathEntry{{page: page, childIdx: 0}}, child, idx, cell)
	}

	// Split roughly at the median cell.
	m := len(cells) / 2

	right, err := b.pager.Allocate(pageType)
	if err != nil {
		return err
	}

	var leftCells, rightCells [][]byte
	var promoted []byte
	leftRight := 0

	switch pageType {
	case PageTypeLeaf:
		// Boundary is the largest rowid in the left half.
		leftCells, rightCells = cells[:m], cells[m:]
		boundary, err := leafCellRowid(leftCells[len(leftCells)-1])
		if err != nil {
			return err
		}
		promoted = makeTableInteriorCell(page.Number(), boundary)

	case PageTypeInterior:
		// The median cell's key moves up; its child becomes the left
		// page's right-most pointer.
		leftCells, rightCells = cells[:m], cells[m+1:]
		leftRight = int(binary.BigEndian.Uint32(cells[m][:4]))
		key, _, err := ReadVarint(bytes.NewReader(cells[m][4:]))
		if err != nil {
			return err
		}
		promoted = makeTableInteriorCell(page.Number(), int64(key))

	case PageTypeLeafIndex:
		// The median entry moves up wholesale.
		leftCells, rightCells = cells[:m], cells[m+1:]
		promoted = makeIndexInteriorCell(page.Number(), cells[m])

	case PageTypeInteriorIndex:
		leftCells, rightCells = cells[:m], cells[m+1:]
		leftRight = int(binary.BigEndian.Uint32(cells[m][:4]))
		promoted = makeIndexInteriorCell(page.Number(), cells[m][4:])
	}

	// Rebuild the original page with the left half; fill the new right page.
	page.Reinitialize(pageType)
	for i, c := range leftCells {
		if err := page.InsertCell(i, c); err != nil {
			return err
		}
	}
	for i, c := range rightCells {
		if err := right.InsertCell(i, c); err != nil {
			return err
		}
	}
	if !page.Leaf() {
		page.SetRightPage(leftRight)
		right.SetRightPage(rightMost)
	}

	// Redirect the parent's reference from the split page to the right
	// half, whose keys its boundary still bounds, then link the left half.
	parent := path[len(path)-1]
	if parent.childIdx == parent.page.CellCount() {
		parent.page.SetRightPage(right.Number())
	} else {
		if err := parent.page.SetCellChild(parent.childIdx, right.Number()); err != nil {
			return err
		}
	}

	if err := b.pager.Write(page, right, parent.page); err != nil {
		return err
	}

	return b.insertAt(path[:len(path)-1], parent.page, parent.childIdx, promoted)
}

func leafCellRowid(cell []byte) (int64, error) {
	r := bytes.NewReader(cell)
	if _, _, err := ReadVarint(r); err != nil {
		return 0, fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
	}
	rowid, _, err := ReadVarint(r)
	if err != nil {
		return 0, fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
	}
	return int64(rowid), nil
}

func makeTableInteriorCell(child int, key int64) []byte {
	var buf bytes.Buffer
	var cp [4]byte
	binary.BigEndian.PutUint32(cp[:], uint32(child))
	buf.Write(cp[:])
	WriteVarint(&buf, uint64(key))
	return buf.Bytes()
}

func makeIndexInteriorCell(child int, body []byte) []byte {
	var buf bytes.Buffer
	var cp [4]byte
	binary.BigEndian.PutUint32(cp[:], uint32(child))
	buf.Write(cp[:])
	buf.Write(body)
	return buf.Bytes()
}

// Delete removes the entry with the given rowid from a table tree.
// Cells are removed in place; sparse pages are left for later reuse
// rather than rebalanced, which read-path invariants permit.
func (b *BTree) Delete(rowid int64) error {
	path, leaf, err := b.descendToLeaf(rowid, nil)
	if err != nil {
		return err
	}

	idx, found, err := b.searchTablePage(leaf, rowid)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: rowid %d", ErrKeyNotFound, rowid)
	}

	size, err := leaf.cellSize(idx)
	if err != nil {
		return err
	}
	if err := leaf.RemoveCell(idx, size); err != nil {
		return err
	}

	pages := []*MemPage{leaf}
	for _, e := range path {
		pages = append(pages, e.page)
	}
	return b.pager.Write(pages...)
}

// DeleteKey removes one index entry matching the full key tuple
// (key columns plus rowid).
func (b *BTree) DeleteKey(key []Field) error {
	path, leaf, err := b.descendToLeaf(0, key)
	if err != nil {
		return err
	}

	idx, found, err := b.searchIndexPage(leaf, key)
	if err != nil {
		return err
	}
	if found {
		size, err := leaf.cellSize(idx)
		if err != nil {
			return err
		}
		if err := leaf.RemoveCell(idx, size); err != nil {
			return err
		}
		return b.pager.Write(leaf)
	}

	// The entry may live on an interior page: walk the path bottom-up.
	for level := len(path) - 1; level >= 0; level-- {
		e := path[level]
		if e.childIdx >= e.page.CellCount() {
			continue
		}
		payload, _, err := indexEntry(b.pager, e.page, e.childIdx)
		if err != nil {
			return err
		}
		rec, err := ReadRecord(payload)
		if err != nil {
			return err
		}
		if CompareKeys(rec.Fields, key) == 0 {
			return b.deleteInterior(path[:level], e.page, e.childIdx)
		}
	}

	return fmt.Errorf("%w: index key", ErrKeyNotFound)
}

// deleteInterior removes cell idx from an interior index page by swapping
// in the predecessor entry from the left subtree's right-most leaf.
func (b *BTree) deleteInterior(path []pathEntry, page *MemPage, idx int) error {
	child, err := page.CellChild(idx)
	if err != nil {
		return err
	}

	// Find the right-most leaf of the left subtree.
	var subPath []pathEntry
	leaf, err := b.pager.Read(child)
	if err != nil {
		return err
	}
	for !leaf.Leaf() {
		subPath = append(subPath, pathEntry{page: leaf, childIdx: leaf.CellCount()})
		next := leaf.RightPage()
		if err := b.checkChild(next); err != nil {
			return err
		}
		if leaf, err = b.pager.Read(next); err != nil {
			return err
		}
	}
	if leaf.CellCount() == 0 {
		return fmt.Errorf("%w: empty leaf below interior entry", ErrCorruptTree)
	}

	// Take the predecessor cell from the leaf.
	pred := leaf.CellCount() - 1
	predCell, err := leaf.CellBytes(pred)
	if err != nil {
		return err
	}
	replacement := makeIndexInteriorCell(child, append([]byte(nil), predCell...))

	predSize, err := leaf.cellSize(pred)
	if err != nil {
		return err
	}
	if err := leaf.RemoveCell(pred, predSize); err != nil {
		return err
	}

	oldSize, err := page.cellSize(idx)
	if err != nil {
		return err
	}
	if err := page.RemoveCell(idx, oldSize); err != nil {
		return err
	}

	if err := b.pager.Write(leaf); err != nil {
		return err
	}
	return b.insertAt(path, page, idx, replacement)
}

// FreeAll returns every page of the tree to the freelist, overflow
// chains included. Used when a table or index is dropped; the caller is
// responsible for removing the schema entry.
func (b *BTree) FreeAll() error {
	return b.freeSubtree(b.rootPage, 0)
}

func (b *BTree) freeSubtree(pageNumber, depth int) error {
	if depth > 64 {
		return fmt.Errorf("%w: tree deeper than 64 levels", ErrCorruptTree)
	}

	page, err := b.pager.Read(pageNumber)
	if err != nil {
		return err
	}

	for i := 0; i < page.CellCount(); i++ {
		if !page.Leaf() {
			child, err := page.CellChild(i)
			if err != nil {
				return err
			}
			if err := b.checkChild(child); err != nil {
				return err
			}
			if err := b.freeSubtree(child, depth+1); err != nil {
				return err
			}
		}
		if err := b.freeCellOverflow(page, i); err != nil {
			return err
		}
	}

	if !page.Leaf() {
		right := page.RightPage()
		if err := b.checkChild(right); err != nil {
			return err
		}
		if err := b.freeSubtree(right, depth+1); err != nil {
			return err
		}
	}

	return b.pager.Free(pageNumber)
}

// freeCellOverflow releases the overflow chain of cell i, if it has one.
func (b *BTree) freeCellOverflow(page *MemPage, i int) error {
	// Interior table cells carry no payload.
	if page.Type() == PageTypeInterior {
		return nil
	}

	cell, err := page.Cell(i)
	if err != nil {
		return err
	}

	offset := 0
	if page.Type() == PageTypeInteriorIndex {
		offset = 4
	}

	r := bytes.NewReader(cell[offset:])
	payloadLen, n, err := ReadVarint(r)
	if err != nil {
		return fmt.Errorf("%w: truncated cell", ErrCorruptTree)
	}
	offset += n

	if page.Type() == PageTypeLeaf {
		_, n, err := ReadVarint(r)
		if err != nil {
			return fmt.Errorf("%w: truncated leaf cell", ErrCorruptTree)
		}
		offset += n
	}

	local, spills := page.LocalPayload(int(payloadLen))
	if !spills {
		return nil
	}
	if offset+local+4 > len(cell) {
		return fmt.Errorf("%w: overflowing cell too short", ErrMalformedRecord)
	}

	next := int(binary.BigEndian.Uint32(cell[offset+local : offset+local+4]))
	for hops := 0; next != 0; hops++ {
		if hops > b.pager.TotalPages() {
			return fmt.Errorf("%w: overflow chain cycles", ErrCorruptTree)
		}
		raw, err := b.pager.ReadRaw(next)
		if err != nil {
			return err
		}
		freed := next
		next = int(binary.BigEndian.Uint32(raw[:4]))
		if err := b.pager.Free(freed); err != nil {
			return err
		}
	}
	return nil
}
