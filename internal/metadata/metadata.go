package metadata

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/joeandaverde/litedb/internal/storage"
	"github.com/joeandaverde/litedb/tsql"
	"github.com/joeandaverde/litedb/tsql/ast"
)

// MasterRootPage is the root page of the schema table. Every database
// file has it, and it lists every other table and index.
const MasterRootPage = 1

var (
	ErrTableNotFound  = errors.New("metadata: table not found")
	ErrIndexNotFound  = errors.New("metadata: index not found")
	ErrColumnNotFound = errors.New("metadata: column not found")
)

// ColumnDefinition represents a specification for a column in a table
type ColumnDefinition struct {
	Name       string          `json:"name"`
	Type       storage.SQLType `json:"type"`
	Offset     int             `json:"offset"`
	PrimaryKey bool            `json:"is_primary_key"`
	NotNull    bool            `json:"not_null"`
}

// TableDefinition describes a table: its columns and btree root page.
type TableDefinition struct {
	Name     string              `json:"name"`
	RawText  string              `json:"raw_text"`
	Columns  []*ColumnDefinition `json:"columns"`
	RootPage int                 `json:"root_page"`

	// RowidAlias is the offset of the INTEGER PRIMARY KEY column, or -1.
	// That column is stored as null and reads back the rowid.
	RowidAlias int `json:"rowid_alias"`
}

// Column finds a column by name, ignoring case.
func (t *TableDefinition) Column(name string) (*ColumnDefinition, error) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.Name, name)
}

// IndexDefinition describes an index: the table and columns it covers
// and its btree root page.
type IndexDefinition struct {
	Name     string   `json:"name"`
	Table    string   `json:"table"`
	RawText  string   `json:"raw_text"`
	Columns  []string `json:"columns"`
	RootPage int      `json:"root_page"`
}

// Catalog resolves table and index definitions from the schema table.
// Definitions are cached until a schema change invalidates them.
type Catalog struct {
	mu      sync.RWMutex
	pager   storage.Pager
	cookie  uint32
	tables  map[string]*TableDefinition
	indexes map[string][]*IndexDefinition
}

// NewCatalog creates a catalog over the database the pager serves.
func NewCatalog(pager storage.Pager) *Catalog {
	return &Catalog{pager: pager}
}

// Table resolves a table definition by name, ignoring case.
func (c *Catalog) Table(name string) (*TableDefinition, error) {
	tables, _, err := c.load()
	if err != nil {
		return nil, err
	}

	if t, ok := tables[strings.ToLower(name)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
}

// Index resolves an index definition by name, ignoring case.
func (c *Catalog) Index(name string) (*IndexDefinition, error) {
	_, indexes, err := c.load()
	if err != nil {
		return nil, err
	}

	for _, list := range indexes {
		for _, idx := range list {
			if strings.EqualFold(idx.Name, name) {
				return idx, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
}

// Indexes lists the indexes covering a table.
func (c *Catalog) Indexes(tableName string) ([]*IndexDefinition, error) {
	_, indexes, err := c.load()
	if err != nil {
		return nil, err
	}
	return indexes[strings.ToLower(tableName)], nil
}

// Tables lists all table definitions sorted by name.
func (c *Catalog) Tables() ([]*TableDefinition, error) {
	tables, _, err := c.load()
	if err != nil {
		return nil, err
	}

	list := make([]*TableDefinition, 0, len(tables))
	for _, t := range tables {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// Invalidate drops the cached definitions. Callers invoke it after any
// statement that changes the schema, and after rollback.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = nil
	c.indexes = nil
}

func (c *Catalog) load() (map[string]*TableDefinition, map[string][]*IndexDefinition, error) {
	c.mu.RLock()
	if c.tables != nil && c.cookie == c.pager.Header().SchemaCookie {
		tables, indexes := c.tables, c.indexes
		c.mu.RUnlock()
		return tables, indexes, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	tables := make(map[string]*TableDefinition)
	indexes := make(map[string][]*IndexDefinition)

	cursor := storage.NewCursor(c.pager, MasterRootPage)
	more, err := cursor.Rewind()
	if err != nil {
		return nil, nil, err
	}
	for more {
		record, err := cursor.Record()
		if err != nil {
			return nil, nil, err
		}

		if err := collectEntry(record, tables, indexes); err != nil {
			return nil, nil, err
		}

		if more, err = cursor.Next(); err != nil {
			return nil, nil, err
		}
	}

	c.tables = tables
	c.indexes = indexes
	c.cookie = c.pager.Header().SchemaCookie
	return tables, indexes, nil
}

// collectEntry decodes one schema table record. The record layout is
// type, name, tbl_name, rootpage, sql.
func collectEntry(record storage.Record, tables map[string]*TableDefinition, indexes map[string][]*IndexDefinition) error {
	if len(record.Fields) < 5 {
		return fmt.Errorf("schema record has %d fields", len(record.Fields))
	}

	entryType, _ := record.Fields[0].Data.(string)
	name, _ := record.Fields[1].Data.(string)
	_, _ = record.Fields[2].Data.(string)
	rawText, _ := record.Fields[4].Data.(string)

	rootPage, ok := record.Fields[3].Data.(int64)
	if !ok {
		return fmt.Errorf("schema entry %q has no root page", name)
	}

	switch entryType {
	case "table":
		table, err := tableFromSQL(rawText, int(rootPage))
		if err != nil {
			return fmt.Errorf("schema entry %q: %w", name, err)
		}
		tables[strings.ToLower(table.Name)] = table

	case "index":
		index, err := indexFromSQL(rawText, int(rootPage))
		if err != nil {
			return fmt.Errorf("schema entry %q: %w", name, err)
		}
		key := strings.ToLower(index.Table)
		indexes[key] = append(indexes[key], index)
	}

	return nil
}

// tableFromSQL rebuilds a table definition from its CREATE TABLE text.
func tableFromSQL(createSQL string, rootPage int) (*TableDefinition, error) {
	stmt, err := tsql.Parse(createSQL)
	if err != nil {
		return nil, err
	}
	create, ok := stmt.(*ast.CreateTableStatement)
	if !ok {
		return nil, fmt.Errorf("expected CREATE TABLE, got %T", stmt)
	}

	table := &TableDefinition{
		Name:       create.TableName,
		RawText:    createSQL,
		RootPage:   rootPage,
		RowidAlias: -1,
	}
	for i, c := range create.Columns {
		column := &ColumnDefinition{
			Offset:     i,
			Name:       c.Name,
			Type:       SQLTypeFromString(c.Type),
			PrimaryKey: c.PrimaryKey,
			NotNull:    c.NotNull,
		}
		table.Columns = append(table.Columns, column)

		if column.PrimaryKey && column.Type == storage.Integer && table.RowidAlias < 0 {
			table.RowidAlias = i
		}
	}

	return table, nil
}

// indexFromSQL rebuilds an index definition from its CREATE INDEX text.
func indexFromSQL(createSQL string, rootPage int) (*IndexDefinition, error) {
	stmt, err := tsql.Parse(createSQL)
	if err != nil {
		return nil, err
	}
	create, ok := stmt.(*ast.CreateIndexStatement)
	if !ok {
		return nil, fmt.Errorf("expected CREATE INDEX, got %T", stmt)
	}

	return &IndexDefinition{
		Name:     create.IndexName,
		Table:    create.TableName,
		RawText:  createSQL,
		Columns:  create.Columns,
		RootPage: rootPage,
	}, nil
}

// SQLTypeFromString maps a declared column type to a storage class using
// affinity-style name matching.
func SQLTypeFromString(declared string) storage.SQLType {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"):
		return storage.Integer
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return storage.Text
	case strings.Contains(t, "BLOB"):
		return storage.Blob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return storage.Real
	default:
		return storage.Text
	}
}
