package storage

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) (*BTree, Pager) {
	t.Helper()

	p, err := NewPager(NewMemoryFile(512))
	if err != nil {
		t.Fatal(err)
	}
	p.SetMode(ModeWrite)
	return NewBTreeTable(1, p), p
}

func encodeRow(t *testing.T, fields ...Field) []byte {
	t.Helper()

	rec := NewRecord(fields)
	var buf bytes.Buffer
	if err := rec.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBTree_InsertAndScan(t *testing.T) {
	r := require.New(t)
	bt, p := newTestTree(t)

	const n = 500
	for i := 1; i <= n; i++ {
		payload := encodeRow(t, Field{Type: Text, Data: fmt.Sprintf("name-%04d", i)})
		r.NoError(bt.Insert(int64(i), payload))
	}
	// Enough rows to split past a single level.
	r.Greater(p.TotalPages(), 3)

	cursor := NewCursor(p, 1)
	more, err := cursor.Rewind()
	r.NoError(err)

	seen := 0
	for more {
		seen++
		r.Equal(int64(seen), cursor.Rowid())

		rec, err := cursor.Record()
		r.NoError(err)
		r.Equal(fmt.Sprintf("name-%04d", seen), rec.Fields[0].Data)

		more, err = cursor.Next()
		r.NoError(err)
	}
	r.Equal(n, seen)
}

func TestBTree_InsertOutOfOrder(t *testing.T) {
	r := require.New(t)
	bt, p := newTestTree(t)

	rng := rand.New(rand.NewSource(1))
	rowids := rng.Perm(400)
	for _, i := range rowids {
		payload := encodeRow(t, Field{Type: Integer, Data: int64(i)})
		r.NoError(bt.Insert(int64(i+1), payload))
	}

	cursor := NewCursor(p, 1)
	more, err := cursor.Rewind()
	r.NoError(err)

	var prev int64
	count := 0
	for more {
		r.Greater(cursor.Rowid(), prev)
		prev = cursor.Rowid()
		count++

		more, err = cursor.Next()
		r.NoError(err)
	}
	r.Equal(len(rowids), count)
}

func TestBTree_SeekRowid(t *testing.T) {
	r := require.New(t)
	bt, p := newTestTree(t)

	// Even rowids only, so odd seeks land on the next larger entry.
	for i := 2; i <= 600; i += 2 {
		payload := encodeRow(t, Field{Type: Integer, Data: int64(i * 10)})
		r.NoError(bt.Insert(int64(i), payload))
	}

	cursor := NewCursor(p, 1)

	found, err := cursor.SeekRowid(100)
	r.NoError(err)
	r.True(found)
	r.Equal(int64(100), cursor.Rowid())

	rec, err := cursor.Record()
	r.NoError(err)
	r.Equal(int64(1000), rec.Fields[0].Data)

	// Iteration continues from the seek position.
	more, err := cursor.Next()
	r.NoError(err)
	r.True(more)
	r.Equal(int64(102), cursor.Rowid())

	found, err = cursor.SeekRowid(101)
	r.NoError(err)
	r.False(found)
	r.Equal(int64(102), cursor.Rowid())

	found, err = cursor.SeekRowid(601)
	r.NoError(err)
	r.False(found)
}

func TestBTree_OverflowPayload(t *testing.T) {
	r := require.New(t)
	bt, p := newTestTree(t)

	// Far larger than a 512-byte page can hold locally.
	big := strings.Repeat("overflow!", 500)
	r.NoError(bt.Insert(1, encodeRow(t, Field{Type: Text, Data: big})))
	r.NoError(bt.Insert(2, encodeRow(t, Field{Type: Text, Data: "small"})))

	cursor := NewCursor(p, 1)
	more, err := cursor.Rewind()
	r.NoError(err)
	r.True(more)

	rec, err := cursor.Record()
	r.NoError(err)
	r.Equal(big, rec.Fields[0].Data)

	more, err = cursor.Next()
	r.NoError(err)
	r.True(more)

	rec, err = cursor.Record()
	r.NoError(err)
	r.Equal("small", rec.Fields[0].Data)
}

func TestBTree_OverflowSurvivesFlush(t *testing.T) {
	r := require.New(t)

	file := NewMemoryFile(512)
	p, err := NewPager(file)
	r.NoError(err)
	p.SetMode(ModeWrite)

	big := strings.Repeat("x", 2000)
	bt := NewBTreeTable(1, p)
	r.NoError(bt.Insert(7, encodeRow(t, Field{Type: Text, Data: big})))
	r.NoError(p.Flush())

	p2, err := NewPager(file)
	r.NoError(err)

	cursor := NewCursor(p2, 1)
	more, err := cursor.Rewind()
	r.NoError(err)
	r.True(more)
	r.Equal(int64(7), cursor.Rowid())

	rec, err := cursor.Record()
	r.NoError(err)
	r.Equal(big, rec.Fields[0].Data)
}

func TestBTree_Delete(t *testing.T) {
	r := require.New(t)
	bt, p := newTestTree(t)

	for i := 1; i <= 300; i++ {
		r.NoError(bt.Insert(int64(i), encodeRow(t, Field{Type: Integer, Data: int64(i)})))
	}

	// Remove every third row.
	for i := 3; i <= 300; i += 3 {
		r.NoError(bt.Delete(int64(i)))
	}

	r.ErrorIs(bt.Delete(3), ErrKeyNotFound)
	r.ErrorIs(bt.Delete(1000), ErrKeyNotFound)

	cursor := NewCursor(p, 1)
	more, err := cursor.Rewind()
	r.NoError(err)

	count := 0
	for more {
		r.NotZero(cursor.Rowid() % 3)
		count++
		more, err = cursor.Next()
		r.NoError(err)
	}
	r.Equal(200, count)

	// Deleted slots accept new entries.
	r.NoError(bt.Insert(3, encodeRow(t, Field{Type: Integer, Data: int64(-3)})))
	found, err := cursor.SeekRowid(3)
	r.NoError(err)
	r.True(found)
}

func TestBTree_RootPageNumberIsStable(t *testing.T) {
	r := require.New(t)

	p, err := NewPager(NewMemoryFile(512))
	r.NoError(err)
	p.SetMode(ModeWrite)

	// Tables beyond the first live on pages other than 1, as catalog
	// entries record a fixed root page per table.
	rootPage, err := p.Allocate(PageTypeLeaf)
	r.NoError(err)
	r.NoError(p.Write(rootPage))

	bt := NewBTreeTable(rootPage.Number(), p)
	for i := 1; i <= 500; i++ {
		r.NoError(bt.Insert(int64(i), encodeRow(t, Field{Type: Integer, Data: int64(i)})))
	}

	root, err := p.Read(rootPage.Number())
	r.NoError(err)
	r.Equal(PageTypeInterior, root.Type())

	cursor := NewCursor(p, rootPage.Number())
	more, err := cursor.Rewind()
	r.NoError(err)

	count := 0
	for more {
		count++
		more, err = cursor.Next()
		r.NoError(err)
	}
	r.Equal(500, count)
}

func newTestIndex(t *testing.T) (*BTree, Pager, int) {
	t.Helper()

	p, err := NewPager(NewMemoryFile(512))
	if err != nil {
		t.Fatal(err)
	}
	p.SetMode(ModeWrite)

	root, err := p.Allocate(PageTypeLeafIndex)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Write(root); err != nil {
		t.Fatal(err)
	}
	return NewBTreeIndex(root.Number(), p), p, root.Number()
}

// indexKey builds an index entry payload: the key column followed by the
// rowid it points at.
func indexKey(t *testing.T, key Field, rowid int64) []byte {
	return encodeRow(t, key, Field{Type: Integer, Data: rowid})
}

func TestBTreeIndex_InsertAndScan(t *testing.T) {
	r := require.New(t)
	bt, p, root := newTestIndex(t)

	rng := rand.New(rand.NewSource(7))
	for _, i := range rng.Perm(400) {
		key := Field{Type: Text, Data: fmt.Sprintf("key-%04d", i)}
		r.NoError(bt.Insert(0, indexKey(t, key, int64(i+1))))
	}

	cursor := NewIndexCursor(p, root)
	more, err := cursor.Rewind()
	r.NoError(err)

	var prev string
	count := 0
	for more {
		rec, err := cursor.Record()
		r.NoError(err)
		r.Len(rec.Fields, 2)

		key := rec.Fields[0].Data.(string)
		r.Greater(key, prev)
		prev = key
		count++

		more, err = cursor.Next()
		r.NoError(err)
	}
	r.Equal(400, count)
}

func TestBTreeIndex_SeekLeadingColumn(t *testing.T) {
	r := require.New(t)
	bt, p, root := newTestIndex(t)

	// Several rowids share each key value.
	rowid := int64(1)
	for i := 0; i < 100; i++ {
		for j := 0; j < 3; j++ {
			key := Field{Type: Integer, Data: int64(i)}
			r.NoError(bt.Insert(0, indexKey(t, key, rowid)))
			rowid++
		}
	}

	cursor := NewIndexCursor(p, root)
	found, err := cursor.SeekIndex([]Field{{Type: Integer, Data: int64(42)}})
	r.NoError(err)
	r.True(found)

	// All three matching entries come out in rowid order.
	var rowids []int64
	for {
		rec, err := cursor.Record()
		r.NoError(err)
		if rec.Fields[0].Data != int64(42) {
			break
		}
		rowids = append(rowids, rec.Fields[1].Data.(int64))

		more, err := cursor.Next()
		r.NoError(err)
		if !more {
			break
		}
	}
	r.Equal([]int64{127, 128, 129}, rowids)

	found, err = cursor.SeekIndex([]Field{{Type: Integer, Data: int64(1000)}})
	r.NoError(err)
	r.False(found)
}

func TestBTreeIndex_DeleteKey(t *testing.T) {
	r := require.New(t)
	bt, p, root := newTestIndex(t)

	for i := 0; i < 300; i++ {
		key := Field{Type: Text, Data: fmt.Sprintf("key-%04d", i)}
		r.NoError(bt.Insert(0, indexKey(t, key, int64(i+1))))
	}

	// Delete every key, including entries promoted to interior pages.
	for i := 0; i < 300; i += 2 {
		key := []Field{
			{Type: Text, Data: fmt.Sprintf("key-%04d", i)},
			{Type: Integer, Data: int64(i + 1)},
		}
		r.NoError(bt.DeleteKey(key))
	}

	r.ErrorIs(bt.DeleteKey([]Field{
		{Type: Text, Data: "key-0000"},
		{Type: Integer, Data: int64(1)},
	}), ErrKeyNotFound)

	cursor := NewIndexCursor(p, root)
	more, err := cursor.Rewind()
	r.NoError(err)

	count := 0
	for more {
		rec, err := cursor.Record()
		r.NoError(err)

		var i int
		_, err = fmt.Sscanf(rec.Fields[0].Data.(string), "key-%04d", &i)
		r.NoError(err)
		r.Equal(1, i%2)

		count++
		more, err = cursor.Next()
		r.NoError(err)
	}
	r.Equal(150, count)
}
