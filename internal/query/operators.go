package query

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/joeandaverde/litedb/internal/metadata"
	"github.com/joeandaverde/litedb/internal/storage"
	"github.com/joeandaverde/litedb/tsql/ast"
)

// operator is one stage of a pull pipeline. next returns io.EOF after
// the final row.
type operator interface {
	next() (*row, error)
}

// tableScan walks a table btree in rowid order, producing one row per
// entry with the table's declared column layout.
type tableScan struct {
	pager   storage.Pager
	table   *metadata.TableDefinition
	cursor  *storage.Cursor
	started bool
}

func newTableScan(pager storage.Pager, table *metadata.TableDefinition) *tableScan {
	return &tableScan{
		pager:  pager,
		table:  table,
		cursor: storage.NewCursor(pager, table.RootPage),
	}
}

func (s *tableScan) next() (*row, error) {
	var ok bool
	var err error
	if !s.started {
		s.started = true
		ok, err = s.cursor.Rewind()
	} else {
		ok, err = s.cursor.Next()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, io.EOF
	}
	return tableRow(s.cursor, s.table)
}

// tableRow decodes the cursor's current entry into a row. The rowid
// alias column, stored as null, reads back as the entry's rowid.
func tableRow(cursor *storage.Cursor, table *metadata.TableDefinition) (*row, error) {
	rec, err := cursor.Record()
	if err != nil {
		return nil, err
	}

	fields := make([]storage.Field, len(table.Columns))
	for i := range fields {
		if i < len(rec.Fields) {
			fields[i] = rec.Fields[i]
		} else {
			fields[i] = nullField()
		}
	}
	if table.RowidAlias >= 0 {
		fields[table.RowidAlias] = storage.Field{Type: storage.Integer, Data: cursor.Rowid()}
	}
	return &row{rowid: cursor.Rowid(), fields: fields}, nil
}

// indexBounds delimit the run of index entries a scan emits: an exact
// leading-column prefix, or a half- or fully-bounded range on it.
type indexBounds struct {
	eq          []storage.Field
	lower       []storage.Field
	lowerStrict bool
	upper       []storage.Field
	upperStrict bool
}

// indexScan walks the index entries inside bounds in key order,
// resolving each entry's rowid against the table btree.
type indexScan struct {
	pager   storage.Pager
	table   *metadata.TableDefinition
	index   *metadata.IndexDefinition
	bounds  indexBounds
	cursor  *storage.Cursor
	started bool
	done    bool
}

func newIndexScan(pager storage.Pager, table *metadata.TableDefinition, index *metadata.IndexDefinition, bounds indexBounds) *indexScan {
	return &indexScan{
		pager:  pager,
		table:  table,
		index:  index,
		bounds: bounds,
		cursor: storage.NewIndexCursor(pager, index.RootPage),
	}
}

func (s *indexScan) next() (*row, error) {
	for !s.done {
		var ok bool
		var err error
		if !s.started {
			s.started = true
			ok, err = s.position()
		} else {
			ok, err = s.cursor.Next()
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		emit, past, err := s.inBounds()
		if err != nil {
			return nil, err
		}
		if past {
			break
		}
		if !emit {
			continue
		}

		rec, err := s.cursor.Record()
		if err != nil {
			return nil, err
		}
		if len(rec.Fields) == 0 {
			return nil, fmt.Errorf("query: empty index entry in %s", s.index.Name)
		}
		last := rec.Fields[len(rec.Fields)-1]
		rowid, isInt := last.Data.(int64)
		if !isInt {
			return nil, fmt.Errorf("query: index %s entry has no rowid", s.index.Name)
		}

		table := storage.NewCursor(s.pager, s.table.RootPage)
		found, err := table.SeekRowid(rowid)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("query: index %s references missing rowid %d", s.index.Name, rowid)
		}
		return tableRow(table, s.table)
	}

	s.done = true
	return nil, io.EOF
}

// position moves to the first candidate entry: a seek when the range
// has a starting key, a rewind otherwise.
func (s *indexScan) position() (bool, error) {
	start := s.bounds.eq
	if start == nil {
		start = s.bounds.lower
	}
	if start == nil {
		return s.cursor.Rewind()
	}

	found, err := s.cursor.SeekIndex(start)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}
	// A miss leaves the cursor on the next larger entry, which may
	// still fall inside the range.
	return s.cursor.Valid(), nil
}

// inBounds classifies the current entry: emit it, skip it, or stop
// because every later entry is past the range.
func (s *indexScan) inBounds() (emit, past bool, err error) {
	rec, err := s.cursor.Record()
	if err != nil {
		return false, false, err
	}
	prefix := func(bound []storage.Field) []storage.Field {
		f := rec.Fields
		if len(f) > len(bound) {
			f = f[:len(bound)]
		}
		return f
	}

	if s.bounds.eq != nil {
		if storage.CompareKeys(prefix(s.bounds.eq), s.bounds.eq) != 0 {
			return false, true, nil
		}
		return true, false, nil
	}

	if s.bounds.lower != nil {
		c := storage.CompareKeys(prefix(s.bounds.lower), s.bounds.lower)
		if c < 0 || (c == 0 && s.bounds.lowerStrict) {
			return false, false, nil
		}
	}
	if s.bounds.upper != nil {
		c := storage.CompareKeys(prefix(s.bounds.upper), s.bounds.upper)
		if c > 0 || (c == 0 && s.bounds.upperStrict) {
			return false, true, nil
		}
	}
	return true, false, nil
}

// filterOp passes through rows for which the predicate is true.
// Unknown (NULL) predicates drop the row, same as false.
type filterOp struct {
	input operator
	expr  ast.Expression
	ctx   *evalContext
}

func (f *filterOp) next() (*row, error) {
	for {
		r, err := f.input.next()
		if err != nil {
			return nil, err
		}
		f.ctx.row = r
		v, err := eval(f.expr, f.ctx)
		if err != nil {
			return nil, err
		}
		if ok, unknown := truth(v); !unknown && ok {
			return r, nil
		}
	}
}

// nestedLoopJoin pairs every left row with matching right rows. The
// right side is re-opened per left row. For a LEFT join, a left row
// with no match is emitted once padded with nulls.
type nestedLoopJoin struct {
	left       operator
	openRight  func() (operator, error)
	on         ast.Expression
	leftJoin   bool
	rightWidth int
	ctx        *evalContext

	currentLeft *row
	right       operator
	matched     bool
}

func (j *nestedLoopJoin) next() (*row, error) {
	for {
		if j.right == nil {
			left, err := j.left.next()
			if err != nil {
				return nil, err
			}
			j.currentLeft = left
			j.matched = false
			if j.right, err = j.openRight(); err != nil {
				return nil, err
			}
		}

		rightRow, err := j.right.next()
		if err == io.EOF {
			j.right = nil
			if j.leftJoin && !j.matched {
				return j.combine(j.currentLeft, nil), nil
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		combined := j.combine(j.currentLeft, rightRow)

		// A bare comma join has no ON predicate and pairs every row.
		if j.on == nil {
			j.matched = true
			return combined, nil
		}

		j.ctx.row = combined
		v, err := eval(j.on, j.ctx)
		if err != nil {
			return nil, err
		}
		if ok, unknown := truth(v); !unknown && ok {
			j.matched = true
			return combined, nil
		}
	}
}

func (j *nestedLoopJoin) combine(left, right *row) *row {
	fields := make([]storage.Field, 0, len(left.fields)+j.rightWidth)
	fields = append(fields, left.fields...)
	if right != nil {
		fields = append(fields, right.fields...)
	} else {
		for i := 0; i < j.rightWidth; i++ {
			fields = append(fields, nullField())
		}
	}
	return &row{rowid: left.rowid, fields: fields}
}

// projectOp evaluates the result expressions for each input row.
type projectOp struct {
	input operator
	exprs []ast.Expression
	ctx   *evalContext
}

func (p *projectOp) next() (*row, error) {
	r, err := p.input.next()
	if err != nil {
		return nil, err
	}
	p.ctx.row = r
	out := make([]storage.Field, len(p.exprs))
	for i, e := range p.exprs {
		if out[i], err = eval(e, p.ctx); err != nil {
			return nil, err
		}
	}
	return &row{rowid: r.rowid, fields: out, aggregates: r.aggregates}, nil
}

// sortOp materializes its input and emits it ordered by the given
// terms. The sort is stable so equal keys keep their arrival order.
type sortOp struct {
	input operator
	terms []ast.OrderingTerm
	ctx   *evalContext

	sorted []*row
	pos    int
	ready  bool
}

func (s *sortOp) next() (*row, error) {
	if !s.ready {
		if err := s.materialize(); err != nil {
			return nil, err
		}
		s.ready = true
	}
	if s.pos >= len(s.sorted) {
		return nil, io.EOF
	}
	r := s.sorted[s.pos]
	s.pos++
	return r, nil
}

func (s *sortOp) materialize() error {
	var rows []*row
	keys := make([][]storage.Field, 0)
	for {
		r, err := s.input.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		s.ctx.row = r
		key := make([]storage.Field, len(s.terms))
		for i, t := range s.terms {
			if key[i], err = eval(t.Expr, s.ctx); err != nil {
				return err
			}
		}
		rows = append(rows, r)
		keys = append(keys, key)
	}

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		for i, t := range s.terms {
			c := storage.CompareFields(ka[i], kb[i])
			if c == 0 {
				continue
			}
			if t.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	s.sorted = make([]*row, len(rows))
	for i, idx := range order {
		s.sorted[i] = rows[idx]
	}
	return nil
}

// limitOp stops after n rows.
type limitOp struct {
	input operator
	n     int
	seen  int
}

func (l *limitOp) next() (*row, error) {
	if l.seen >= l.n {
		return nil, io.EOF
	}
	r, err := l.input.next()
	if err != nil {
		return nil, err
	}
	l.seen++
	return r, nil
}

// unionOp concatenates two inputs of equal width. Unless all is set,
// duplicate rows are suppressed across both inputs.
type unionOp struct {
	first  operator
	second operator
	all    bool

	seen    map[string]struct{}
	onFirst bool
	started bool
}

func (u *unionOp) next() (*row, error) {
	if !u.started {
		u.started = true
		u.onFirst = true
		if !u.all {
			u.seen = make(map[string]struct{})
		}
	}
	for {
		var r *row
		var err error
		if u.onFirst {
			r, err = u.first.next()
			if err == io.EOF {
				u.onFirst = false
				continue
			}
		} else {
			r, err = u.second.next()
		}
		if err != nil {
			return nil, err
		}
		if u.all {
			return r, nil
		}
		key := rowKey(r)
		if _, dup := u.seen[key]; dup {
			continue
		}
		u.seen[key] = struct{}{}
		return r, nil
	}
}

// rowKey builds a duplicate-detection key. The type tag keeps 1 and
// '1' distinct.
func rowKey(r *row) string {
	var b strings.Builder
	for _, f := range r.fields {
		fmt.Fprintf(&b, "%d:%v|", f.Type, f.Data)
	}
	return b.String()
}

// sliceOp replays a materialized row set, used for subquery results and
// for mutation target sets collected before any write happens.
type sliceOp struct {
	rows []*row
	pos  int
}

func (s *sliceOp) next() (*row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}
