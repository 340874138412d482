package query

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joeandaverde/litedb/internal/metadata"
	"github.com/joeandaverde/litedb/internal/storage"
	"github.com/joeandaverde/litedb/tsql/ast"
)

// Mutator executes statements that change the database. It operates
// within the pager's current write transaction; committing or rolling
// back is the caller's concern.
type Mutator struct {
	pager   storage.Pager
	catalog *metadata.Catalog
	log     *logrus.Logger
}

func NewMutator(pager storage.Pager, catalog *metadata.Catalog, log *logrus.Logger) *Mutator {
	return &Mutator{pager: pager, catalog: catalog, log: log}
}

// CreateTable allocates a root page for a new table and records its
// definition in the schema table.
func (m *Mutator) CreateTable(stmt *ast.CreateTableStatement) (int, error) {
	if _, err := m.catalog.Table(stmt.TableName); err == nil {
		if stmt.IfNotExists {
			return 0, nil
		}
		return 0, fmt.Errorf("query: table %s already exists", stmt.TableName)
	}

	seen := make(map[string]struct{})
	for _, col := range stmt.Columns {
		key := strings.ToLower(col.Name)
		if _, dup := seen[key]; dup {
			return 0, fmt.Errorf("query: duplicate column name %s", col.Name)
		}
		seen[key] = struct{}{}
	}

	root, err := m.pager.Allocate(storage.PageTypeLeaf)
	if err != nil {
		return 0, err
	}
	if err := m.pager.Write(root); err != nil {
		return 0, err
	}

	if err := m.addSchemaEntry("table", stmt.TableName, stmt.TableName, root.Number(), stmt.RawText); err != nil {
		return 0, err
	}

	m.log.WithFields(logrus.Fields{
		"table": stmt.TableName,
		"root":  root.Number(),
	}).Debug("created table")
	return 0, nil
}

// CreateIndex allocates an index root, records the definition, and
// backfills entries for rows already in the table.
func (m *Mutator) CreateIndex(stmt *ast.CreateIndexStatement) (int, error) {
	if _, err := m.catalog.Index(stmt.IndexName); err == nil {
		if stmt.IfNotExists {
			return 0, nil
		}
		return 0, fmt.Errorf("query: index %s already exists", stmt.IndexName)
	}

	table, err := m.catalog.Table(stmt.TableName)
	if err != nil {
		return 0, err
	}
	offsets, err := columnOffsets(table, stmt.Columns)
	if err != nil {
		return 0, err
	}

	root, err := m.pager.Allocate(storage.PageTypeLeafIndex)
	if err != nil {
		return 0, err
	}
	if err := m.pager.Write(root); err != nil {
		return 0, err
	}

	if err := m.addSchemaEntry("index", stmt.IndexName, stmt.TableName, root.Number(), stmt.RawText); err != nil {
		return 0, err
	}

	index := storage.NewBTreeIndex(root.Number(), m.pager)
	scan := newTableScan(m.pager, table)
	for {
		r, err := scan.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		payload, err := encodeIndexKey(r, offsets)
		if err != nil {
			return 0, err
		}
		if err := index.Insert(0, payload); err != nil {
			return 0, err
		}
	}

	m.log.WithFields(logrus.Fields{
		"index": stmt.IndexName,
		"table": stmt.TableName,
	}).Debug("created index")
	return 0, nil
}

// DropTable removes a table, its indexes, and all their schema entries.
// Every page of the dropped btrees returns to the freelist.
func (m *Mutator) DropTable(stmt *ast.DropTableStatement) (int, error) {
	table, err := m.catalog.Table(stmt.TableName)
	if err != nil {
		if stmt.IfExists && errors.Is(err, metadata.ErrTableNotFound) {
			return 0, nil
		}
		return 0, err
	}

	indexes, err := m.catalog.Indexes(table.Name)
	if err != nil {
		return 0, err
	}
	for _, idx := range indexes {
		if err := storage.NewBTreeIndex(idx.RootPage, m.pager).FreeAll(); err != nil {
			return 0, err
		}
	}
	if err := storage.NewBTreeTable(table.RootPage, m.pager).FreeAll(); err != nil {
		return 0, err
	}

	// A table's schema entry and those of its indexes share tbl_name.
	if err := m.removeSchemaEntries(func(name, tableName string) bool {
		return strings.EqualFold(tableName, table.Name)
	}); err != nil {
		return 0, err
	}

	m.log.WithField("table", table.Name).Debug("dropped table")
	return 0, nil
}

// DropIndex removes an index and returns its pages to the freelist.
func (m *Mutator) DropIndex(stmt *ast.DropIndexStatement) (int, error) {
	index, err := m.catalog.Index(stmt.IndexName)
	if err != nil {
		if stmt.IfExists && errors.Is(err, metadata.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, err
	}

	if err := storage.NewBTreeIndex(index.RootPage, m.pager).FreeAll(); err != nil {
		return 0, err
	}

	if err := m.removeSchemaEntries(func(name, tableName string) bool {
		return strings.EqualFold(name, index.Name)
	}); err != nil {
		return 0, err
	}

	m.log.WithField("index", index.Name).Debug("dropped index")
	return 0, nil
}

// Insert appends rows to a table and maintains its indexes. It returns
// the number of rows written and the last assigned rowid.
func (m *Mutator) Insert(stmt *ast.InsertStatement) (int, int64, error) {
	table, err := m.catalog.Table(stmt.Table)
	if err != nil {
		return 0, 0, err
	}
	indexes, err := m.catalog.Indexes(table.Name)
	if err != nil {
		return 0, 0, err
	}

	// Without an explicit column list values map positionally.
	targets := make([]int, 0, len(table.Columns))
	if len(stmt.Columns) == 0 {
		for i := range table.Columns {
			targets = append(targets, i)
		}
	} else {
		for _, name := range stmt.Columns {
			col, err := table.Column(name)
			if err != nil {
				return 0, 0, err
			}
			targets = append(targets, col.Offset)
		}
	}

	tree := storage.NewBTreeTable(table.RootPage, m.pager)
	nextRowid, _, err := tree.MaxRowid()
	if err != nil {
		return 0, 0, err
	}
	nextRowid++

	ctx := &evalContext{schema: schema{}}
	var lastRowid int64
	for _, valueRow := range stmt.Rows {
		if len(valueRow) != len(targets) {
			return 0, 0, fmt.Errorf("query: %d values for %d columns", len(valueRow), len(targets))
		}

		fields := make([]storage.Field, len(table.Columns))
		for i := range fields {
			fields[i] = nullField()
		}
		for i, expr := range valueRow {
			v, err := eval(expr, ctx)
			if err != nil {
				return 0, 0, err
			}
			col := table.Columns[targets[i]]
			fields[col.Offset] = applyAffinity(v, col.Type)
		}

		rowid := nextRowid
		if table.RowidAlias >= 0 {
			key := fields[table.RowidAlias]
			if key.Type != storage.Null {
				given, ok := key.Data.(int64)
				if !ok {
					col := table.Columns[table.RowidAlias]
					return 0, 0, &ConstraintError{Table: table.Name, Column: col.Name, Reason: "datatype mismatch"}
				}
				rowid = given
			}
			fields[table.RowidAlias] = storage.Field{Type: storage.Integer, Data: rowid}
		}

		if err := m.checkNotNull(table, fields); err != nil {
			return 0, 0, err
		}
		if err := m.checkUniqueRowid(table, rowid); err != nil {
			return 0, 0, err
		}

		payload, err := encodeRecord(storedFields(table, fields))
		if err != nil {
			return 0, 0, err
		}
		if err := tree.Insert(rowid, payload); err != nil {
			return 0, 0, err
		}
		if err := m.insertIndexEntries(indexes, table, &row{rowid: rowid, fields: fields}); err != nil {
			return 0, 0, err
		}

		lastRowid = rowid
		if rowid >= nextRowid {
			nextRowid = rowid + 1
		}
	}

	return len(stmt.Rows), lastRowid, nil
}

// Update rewrites the rows matching the filter. Targets are collected
// before any row changes so the scan never observes its own writes.
func (m *Mutator) Update(stmt *ast.UpdateStatement) (int, error) {
	table, err := m.catalog.Table(stmt.Table)
	if err != nil {
		return 0, err
	}
	indexes, err := m.catalog.Indexes(table.Name)
	if err != nil {
		return 0, err
	}

	assignments := make(map[int]ast.Expression, len(stmt.Assignments))
	for _, a := range stmt.Assignments {
		col, err := table.Column(a.Column)
		if err != nil {
			return 0, err
		}
		if _, dup := assignments[col.Offset]; dup {
			return 0, fmt.Errorf("query: column %s assigned twice", col.Name)
		}
		assignments[col.Offset] = a.Value
	}

	targets, sch, err := m.collectTargets(table, stmt.Filter)
	if err != nil {
		return 0, err
	}

	tree := storage.NewBTreeTable(table.RootPage, m.pager)
	ctx := m.rowCtx(sch)
	for _, target := range targets {
		fields := append([]storage.Field(nil), target.fields...)
		ctx.row = target
		for offset, expr := range assignments {
			v, err := eval(expr, ctx)
			if err != nil {
				return 0, err
			}
			fields[offset] = applyAffinity(v, table.Columns[offset].Type)
		}

		rowid := target.rowid
		if table.RowidAlias >= 0 {
			if _, assigned := assignments[table.RowidAlias]; assigned {
				col := table.Columns[table.RowidAlias]
				key := fields[table.RowidAlias]
				if key.Type == storage.Null {
					return 0, &ConstraintError{Table: table.Name, Column: col.Name, Reason: "NOT NULL constraint failed"}
				}
				given, ok := key.Data.(int64)
				if !ok {
					return 0, &ConstraintError{Table: table.Name, Column: col.Name, Reason: "datatype mismatch"}
				}
				rowid = given
			}
			fields[table.RowidAlias] = storage.Field{Type: storage.Integer, Data: rowid}
		}

		if err := m.checkNotNull(table, fields); err != nil {
			return 0, err
		}
		if rowid != target.rowid {
			if err := m.checkUniqueRowid(table, rowid); err != nil {
				return 0, err
			}
		}

		if err := tree.Delete(target.rowid); err != nil {
			return 0, err
		}
		if err := m.deleteIndexEntries(indexes, table, target); err != nil {
			return 0, err
		}

		payload, err := encodeRecord(storedFields(table, fields))
		if err != nil {
			return 0, err
		}
		if err := tree.Insert(rowid, payload); err != nil {
			return 0, err
		}
		if err := m.insertIndexEntries(indexes, table, &row{rowid: rowid, fields: fields}); err != nil {
			return 0, err
		}
	}

	return len(targets), nil
}

// Delete removes the rows matching the filter.
func (m *Mutator) Delete(stmt *ast.DeleteStatement) (int, error) {
	table, err := m.catalog.Table(stmt.Table)
	if err != nil {
		return 0, err
	}
	indexes, err := m.catalog.Indexes(table.Name)
	if err != nil {
		return 0, err
	}

	targets, _, err := m.collectTargets(table, stmt.Filter)
	if err != nil {
		return 0, err
	}

	tree := storage.NewBTreeTable(table.RootPage, m.pager)
	for _, target := range targets {
		if err := tree.Delete(target.rowid); err != nil {
			return 0, err
		}
		if err := m.deleteIndexEntries(indexes, table, target); err != nil {
			return 0, err
		}
	}
	return len(targets), nil
}

// collectTargets materializes the rows a mutation applies to.
func (m *Mutator) collectTargets(table *metadata.TableDefinition, filter ast.Expression) ([]*row, schema, error) {
	sch := tableSchema(table.Name, table)

	var op operator = newTableScan(m.pager, table)
	if filter != nil {
		op = &filterOp{input: op, expr: filter, ctx: m.rowCtx(sch)}
	}

	var targets []*row
	for {
		r, err := op.next()
		if err == io.EOF {
			return targets, sch, nil
		}
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, r)
	}
}

// rowCtx builds an evaluation context whose subqueries run against the
// same pager and catalog.
func (m *Mutator) rowCtx(sch schema) *evalContext {
	p := &planner{
		pager:    m.pager,
		catalog:  m.catalog,
		log:      m.log,
		subCache: make(map[*ast.SelectStatement][]storage.Field),
	}
	return &evalContext{schema: sch, subquery: p.subqueryValues}
}

func (m *Mutator) checkNotNull(table *metadata.TableDefinition, fields []storage.Field) error {
	for _, col := range table.Columns {
		if col.NotNull && fields[col.Offset].Type == storage.Null {
			return &ConstraintError{Table: table.Name, Column: col.Name, Reason: "NOT NULL constraint failed"}
		}
	}
	return nil
}

func (m *Mutator) checkUniqueRowid(table *metadata.TableDefinition, rowid int64) error {
	cursor := storage.NewCursor(m.pager, table.RootPage)
	exists, err := cursor.SeekRowid(rowid)
	if err != nil {
		return err
	}
	if exists {
		column := ""
		if table.RowidAlias >= 0 {
			column = table.Columns[table.RowidAlias].Name
		}
		return &ConstraintError{Table: table.Name, Column: column, Reason: "UNIQUE constraint failed"}
	}
	return nil
}

func (m *Mutator) insertIndexEntries(indexes []*metadata.IndexDefinition, table *metadata.TableDefinition, r *row) error {
	for _, idx := range indexes {
		offsets, err := columnOffsets(table, idx.Columns)
		if err != nil {
			return err
		}
		payload, err := encodeIndexKey(r, offsets)
		if err != nil {
			return err
		}
		if err := storage.NewBTreeIndex(idx.RootPage, m.pager).Insert(0, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mutator) deleteIndexEntries(indexes []*metadata.IndexDefinition, table *metadata.TableDefinition, r *row) error {
	for _, idx := range indexes {
		offsets, err := columnOffsets(table, idx.Columns)
		if err != nil {
			return err
		}
		key := indexKeyFields(r, offsets)
		if err := storage.NewBTreeIndex(idx.RootPage, m.pager).DeleteKey(key); err != nil {
			return err
		}
	}
	return nil
}

// addSchemaEntry appends a row to the schema table and invalidates
// cached definitions.
func (m *Mutator) addSchemaEntry(kind, name, tableName string, rootPage int, sql string) error {
	master := storage.NewBTreeTable(metadata.MasterRootPage, m.pager)
	rowid, _, err := master.MaxRowid()
	if err != nil {
		return err
	}

	payload, err := encodeRecord([]storage.Field{
		{Type: storage.Text, Data: kind},
		{Type: storage.Text, Data: name},
		{Type: storage.Text, Data: tableName},
		{Type: storage.Integer, Data: int64(rootPage)},
		{Type: storage.Text, Data: sql},
	})
	if err != nil {
		return err
	}
	if err := master.Insert(rowid+1, payload); err != nil {
		return err
	}

	m.pager.BumpSchemaCookie()
	m.catalog.Invalidate()
	return nil
}

// removeSchemaEntries deletes every schema table row whose (name,
// tbl_name) pair the predicate matches and invalidates cached
// definitions.
func (m *Mutator) removeSchemaEntries(match func(name, tableName string) bool) error {
	cursor := storage.NewCursor(m.pager, metadata.MasterRootPage)
	var rowids []int64

	more, err := cursor.Rewind()
	if err != nil {
		return err
	}
	for more {
		record, err := cursor.Record()
		if err != nil {
			return err
		}
		if len(record.Fields) >= 5 {
			name, _ := record.Fields[1].Data.(string)
			tableName, _ := record.Fields[2].Data.(string)
			if match(name, tableName) {
				rowids = append(rowids, cursor.Rowid())
			}
		}
		if more, err = cursor.Next(); err != nil {
			return err
		}
	}

	master := storage.NewBTreeTable(metadata.MasterRootPage, m.pager)
	for _, rowid := range rowids {
		if err := master.Delete(rowid); err != nil {
			return err
		}
	}

	m.pager.BumpSchemaCookie()
	m.catalog.Invalidate()
	return nil
}

func columnOffsets(table *metadata.TableDefinition, names []string) ([]int, error) {
	offsets := make([]int, len(names))
	for i, name := range names {
		col, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		offsets[i] = col.Offset
	}
	return offsets, nil
}

// indexKeyFields builds the key tuple for an index entry: the indexed
// column values followed by the rowid.
func indexKeyFields(r *row, offsets []int) []storage.Field {
	key := make([]storage.Field, 0, len(offsets)+1)
	for _, off := range offsets {
		key = append(key, r.fields[off])
	}
	return append(key, storage.Field{Type: storage.Integer, Data: r.rowid})
}

func encodeIndexKey(r *row, offsets []int) ([]byte, error) {
	return encodeRecord(indexKeyFields(r, offsets))
}

// storedFields is the on-disk image of a row: the rowid alias column,
// when present, is stored as null.
func storedFields(table *metadata.TableDefinition, fields []storage.Field) []storage.Field {
	if table.RowidAlias < 0 {
		return fields
	}
	stored := append([]storage.Field(nil), fields...)
	stored[table.RowidAlias] = nullField()
	return stored
}

func encodeRecord(fields []storage.Field) ([]byte, error) {
	record := storage.NewRecord(fields)
	var buf bytes.Buffer
	if err := record.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyAffinity converts a value toward a column's declared type when
// the conversion is lossless, following type affinity rules: integer
// columns accept integral reals and numeric text, text columns render
// numbers, and anything that cannot convert is stored as given.
func applyAffinity(f storage.Field, t storage.SQLType) storage.Field {
	if f.Type == storage.Null {
		return f
	}

	switch t {
	case storage.Integer:
		switch f.Type {
		case storage.Real:
			v := f.Data.(float64)
			if v == float64(int64(v)) {
				return storage.Field{Type: storage.Integer, Data: int64(v)}
			}
		case storage.Text:
			s := strings.TrimSpace(f.Data.(string))
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return storage.Field{Type: storage.Integer, Data: i}
			}
			if r, err := strconv.ParseFloat(s, 64); err == nil {
				if r == float64(int64(r)) {
					return storage.Field{Type: storage.Integer, Data: int64(r)}
				}
				return storage.Field{Type: storage.Real, Data: r}
			}
		}
	case storage.Real:
		switch f.Type {
		case storage.Integer:
			return storage.Field{Type: storage.Real, Data: float64(f.Data.(int64))}
		case storage.Text:
			s := strings.TrimSpace(f.Data.(string))
			if r, err := strconv.ParseFloat(s, 64); err == nil {
				return storage.Field{Type: storage.Real, Data: r}
			}
		}
	case storage.Text:
		switch f.Type {
		case storage.Integer:
			return storage.Field{Type: storage.Text, Data: strconv.FormatInt(f.Data.(int64), 10)}
		case storage.Real:
			return storage.Field{Type: storage.Text, Data: strconv.FormatFloat(f.Data.(float64), 'g', -1, 64)}
		}
	}
	return f
}
