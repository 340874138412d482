package storage

import (
	"fmt"
)

// frame tracks the cursor position within one page of the descent.
//
// On a leaf, pos is the cell index of the current entry. On a table
// interior page, pos is the child slot last descended (CellCount meaning
// the right-most pointer). On an index interior page, positions alternate
// between children and cells: even pos descends child pos/2, odd pos
// stops at cell (pos-1)/2.
type frame struct {
	page *MemPage
	pos  int
}

// Cursor iterates a btree in key order.
type Cursor struct {
	// Name is an optional identifier for debugging and logging.
	Name string

	pager    Pager
	rootPage int
	index    bool
	frames   []frame

	currentRowid   int64
	currentPayload []byte
}

// NewCursor opens a cursor over the table btree rooted at rootPage.
// The cursor is positioned before the first entry.
func NewCursor(p Pager, rootPage int) *Cursor {
	return &Cursor{pager: p, rootPage: rootPage}
}

// NewIndexCursor opens a cursor over an index btree.
func NewIndexCursor(p Pager, rootPage int) *Cursor {
	return &Cursor{pager: p, rootPage: rootPage, index: true}
}

// Rewind positions the cursor at the first entry in key order.
// It returns false when the tree is empty.
func (c *Cursor) Rewind() (bool, error) {
	root, err := c.pager.Read(c.rootPage)
	if err != nil {
		return false, err
	}
	c.frames = []frame{{page: root, pos: -1}}
	return c.Next()
}

// Next advances the cursor to the next entry, returning false when
// iteration is complete.
func (c *Cursor) Next() (bool, error) {
	for len(c.frames) > 0 {
		f := &c.frames[len(c.frames)-1]
		f.pos++

		if f.page.Leaf() {
			if f.pos < f.page.CellCount() {
				return true, c.load(f.page, f.pos)
			}
			c.frames = c.frames[:len(c.frames)-1]
			continue
		}

		if c.index {
			// Odd positions emit the interior cell itself.
			if f.pos%2 == 1 {
				cellIdx := (f.pos - 1) / 2
				if cellIdx < f.page.CellCount() {
					return true, c.load(f.page, cellIdx)
				}
				c.frames = c.frames[:len(c.frames)-1]
				continue
			}
			childIdx := f.pos / 2
			if childIdx > f.page.CellCount() {
				c.frames = c.frames[:len(c.frames)-1]
				continue
			}
			if err := c.descend(f.page, childIdx); err != nil {
				return false, err
			}
			continue
		}

		if f.pos > f.page.CellCount() {
			c.frames = c.frames[:len(c.frames)-1]
			continue
		}
		if err := c.descend(f.page, f.pos); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (c *Cursor) descend(p *MemPage, childIdx int) error {
	if len(c.frames) > 64 {
		return fmt.Errorf("%w: btree too deep, likely a cycle", ErrCorruptTree)
	}

	var child int
	var err error
	if childIdx == p.CellCount() {
		child = p.RightPage()
	} else {
		child, err = p.CellChild(childIdx)
		if err != nil {
			return err
		}
	}
	if child < 1 || child > c.pager.TotalPages() {
		return fmt.Errorf("%w: child pointer %d out of range", ErrCorruptTree, child)
	}

	page, err := c.pager.Read(child)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, frame{page: page, pos: -1})
	return nil
}

func (c *Cursor) load(p *MemPage, cellIdx int) error {
	if c.index {
		payload, _, err := indexEntry(c.pager, p, cellIdx)
		if err != nil {
			return err
		}
		c.currentPayload = payload
		c.currentRowid = 0
		return nil
	}

	rowid, payload, err := tableLeafEntry(c.pager, p, cellIdx)
	if err != nil {
		return err
	}
	c.currentRowid = rowid
	c.currentPayload = payload
	return nil
}

// Valid reports whether the cursor is positioned on an entry. A seek
// that misses leaves the cursor on the next larger entry when one
// exists; Valid distinguishes that from running off the end.
func (c *Cursor) Valid() bool { return len(c.frames) > 0 }

// Rowid returns the rowid of the current table entry.
func (c *Cursor) Rowid() int64 { return c.currentRowid }

// Record decodes the current entry's payload.
func (c *Cursor) Record() (Record, error) {
	return ReadRecord(c.currentPayload)
}

// SeekRowid positions the cursor at the entry with the given rowid.
// It returns false with the cursor positioned at the next larger entry
// when no exact match exists.
func (c *Cursor) SeekRowid(rowid int64) (bool, error) {
	bt := &BTree{rootPage: c.rootPage, pager: c.pager}
	return c.seek(bt, rowid, nil)
}

// SeekIndex positions the cursor at the first index entry whose leading
// columns equal key, for iterating a run of matching entries with Next.
func (c *Cursor) SeekIndex(key []Field) (bool, error) {
	bt := &BTree{rootPage: c.rootPage, pager: c.pager, index: true}
	return c.seek(bt, 0, key)
}

func (c *Cursor) seek(bt *BTree, rowid int64, key []Field) (bool, error) {
	c.frames = c.frames[:0]

	page, err := c.pager.Read(c.rootPage)
	if err != nil {
		return false, err
	}

	for {
		if len(c.frames) > 64 {
			return false, fmt.Errorf("%w: btree too deep, likely a cycle", ErrCorruptTree)
		}

		var idx int
		var found bool
		if c.index {
			idx, found, err = bt.searchIndexPage(page, key)
		} else {
			idx, found, err = bt.searchTablePage(page, rowid)
		}
		if err != nil {
			return false, err
		}

		if page.Leaf() {
			if idx >= page.CellCount() {
				// Past the last entry on this leaf; resume in the parent.
				c.frames = append(c.frames, frame{page: page, pos: idx - 1})
				more, err := c.Next()
				if err != nil {
					return false, err
				}
				if !more {
					return false, nil
				}
				return c.matchesSeek(rowid, key)
			}
			c.frames = append(c.frames, frame{page: page, pos: idx})
			if err := c.load(page, idx); err != nil {
				return false, err
			}
			return found, nil
		}

		// Interior keys bound their left subtree, so a matching entry is
		// found by descending at the matching cell. For index pages the
		// frame position encodes "child idx taken" so a later Next emits
		// the interior cell itself before moving right.
		if c.index {
			c.frames = append(c.frames, frame{page: page, pos: 2 * idx})
		} else {
			c.frames = append(c.frames, frame{page: page, pos: idx})
		}

		child := 0
		if idx == page.CellCount() {
			child = page.RightPage()
		} else {
			child, err = page.CellChild(idx)
			if err != nil {
				return false, err
			}
		}
		if child < 1 || child > c.pager.TotalPages() {
			return false, fmt.Errorf("%w: child pointer %d out of range", ErrCorruptTree, child)
		}
		if page, err = c.pager.Read(child); err != nil {
			return false, err
		}
	}
}

// matchesSeek reloads match state after a Next that crossed a page
// boundary during a seek.
func (c *Cursor) matchesSeek(rowid int64, key []Field) (bool, error) {
	if c.index {
		rec, err := c.Record()
		if err != nil {
			return false, err
		}
		entryKey := rec.Fields
		if len(entryKey) > len(key) {
			entryKey = entryKey[:len(key)]
		}
		return CompareKeys(entryKey, key) == 0, nil
	}
	return c.currentRowid == rowid, nil
}
