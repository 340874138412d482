package metadata

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/litedb/internal/storage"
)

// addSchemaEntry appends a record to the schema table in the layout
// type, name, tbl_name, rootpage, sql.
func addSchemaEntry(t *testing.T, pager storage.Pager, rowid int64, entryType, name, tableName string, rootPage int, sql string) {
	t.Helper()

	record := storage.NewRecord([]storage.Field{
		{Type: storage.Text, Data: entryType},
		{Type: storage.Text, Data: name},
		{Type: storage.Text, Data: tableName},
		{Type: storage.Integer, Data: int64(rootPage)},
		{Type: storage.Text, Data: sql},
	})

	var buf bytes.Buffer
	require.NoError(t, record.Write(&buf))

	bt := storage.NewBTreeTable(MasterRootPage, pager)
	require.NoError(t, bt.Insert(rowid, buf.Bytes()))
}

func newTestCatalog(t *testing.T) (*Catalog, storage.Pager) {
	t.Helper()

	pager, err := storage.NewPager(storage.NewMemoryFile(4096))
	require.NoError(t, err)
	pager.SetMode(storage.ModeWrite)

	return NewCatalog(pager), pager
}

func TestCatalog_Table(t *testing.T) {
	assert := require.New(t)

	catalog, pager := newTestCatalog(t)
	addSchemaEntry(t, pager, 1, "table", "users", "users", 2,
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER)")

	table, err := catalog.Table("users")
	assert.NoError(err)
	assert.Equal("users", table.Name)
	assert.Equal(2, table.RootPage)
	assert.Equal(0, table.RowidAlias)

	assert.Len(table.Columns, 3)
	assert.Equal("id", table.Columns[0].Name)
	assert.Equal(storage.Integer, table.Columns[0].Type)
	assert.True(table.Columns[0].PrimaryKey)
	assert.Equal("name", table.Columns[1].Name)
	assert.Equal(storage.Text, table.Columns[1].Type)
	assert.True(table.Columns[1].NotNull)
	assert.Equal("age", table.Columns[2].Name)
	assert.Equal(2, table.Columns[2].Offset)
}

func TestCatalog_TableLookupIsCaseInsensitive(t *testing.T) {
	assert := require.New(t)

	catalog, pager := newTestCatalog(t)
	addSchemaEntry(t, pager, 1, "table", "Users", "Users", 2,
		"CREATE TABLE Users (id INTEGER PRIMARY KEY)")

	table, err := catalog.Table("USERS")
	assert.NoError(err)
	assert.Equal("Users", table.Name)

	column, err := table.Column("ID")
	assert.NoError(err)
	assert.Equal("id", column.Name)

	_, err = table.Column("nope")
	assert.ErrorIs(err, ErrColumnNotFound)
}

func TestCatalog_TableNotFound(t *testing.T) {
	assert := require.New(t)

	catalog, _ := newTestCatalog(t)
	_, err := catalog.Table("missing")
	assert.ErrorIs(err, ErrTableNotFound)
}

func TestCatalog_NoRowidAliasWithoutIntegerPrimaryKey(t *testing.T) {
	assert := require.New(t)

	catalog, pager := newTestCatalog(t)
	addSchemaEntry(t, pager, 1, "table", "things", "things", 2,
		"CREATE TABLE things (name TEXT PRIMARY KEY, qty INTEGER)")

	table, err := catalog.Table("things")
	assert.NoError(err)
	assert.Equal(-1, table.RowidAlias)
}

func TestCatalog_Indexes(t *testing.T) {
	assert := require.New(t)

	catalog, pager := newTestCatalog(t)
	addSchemaEntry(t, pager, 1, "table", "orders", "orders", 2,
		"CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, amount REAL)")
	addSchemaEntry(t, pager, 2, "index", "idx_orders_user", "orders", 3,
		"CREATE INDEX idx_orders_user ON orders (user_id)")

	indexes, err := catalog.Indexes("orders")
	assert.NoError(err)
	assert.Len(indexes, 1)
	assert.Equal("idx_orders_user", indexes[0].Name)
	assert.Equal([]string{"user_id"}, indexes[0].Columns)
	assert.Equal(3, indexes[0].RootPage)

	index, err := catalog.Index("IDX_ORDERS_USER")
	assert.NoError(err)
	assert.Equal("idx_orders_user", index.Name)

	_, err = catalog.Index("missing")
	assert.ErrorIs(err, ErrIndexNotFound)
}

func TestCatalog_InvalidateSeesNewTables(t *testing.T) {
	assert := require.New(t)

	catalog, pager := newTestCatalog(t)
	addSchemaEntry(t, pager, 1, "table", "a", "a", 2, "CREATE TABLE a (x INTEGER)")

	_, err := catalog.Table("a")
	assert.NoError(err)
	_, err = catalog.Table("b")
	assert.ErrorIs(err, ErrTableNotFound)

	addSchemaEntry(t, pager, 2, "table", "b", "b", 3, "CREATE TABLE b (y INTEGER)")
	catalog.Invalidate()

	table, err := catalog.Table("b")
	assert.NoError(err)
	assert.Equal(3, table.RootPage)
}

func TestCatalog_SchemaCookieChangeReloads(t *testing.T) {
	assert := require.New(t)

	catalog, pager := newTestCatalog(t)
	addSchemaEntry(t, pager, 1, "table", "a", "a", 2, "CREATE TABLE a (x INTEGER)")

	_, err := catalog.Table("a")
	assert.NoError(err)

	addSchemaEntry(t, pager, 2, "table", "b", "b", 3, "CREATE TABLE b (y INTEGER)")
	pager.BumpSchemaCookie()

	table, err := catalog.Table("b")
	assert.NoError(err)
	assert.Equal("b", table.Name)
}

func TestCatalog_Tables(t *testing.T) {
	assert := require.New(t)

	catalog, pager := newTestCatalog(t)
	addSchemaEntry(t, pager, 1, "table", "zebra", "zebra", 2, "CREATE TABLE zebra (x INTEGER)")
	addSchemaEntry(t, pager, 2, "table", "apple", "apple", 3, "CREATE TABLE apple (y INTEGER)")

	tables, err := catalog.Tables()
	assert.NoError(err)
	assert.Len(tables, 2)
	assert.Equal("apple", tables[0].Name)
	assert.Equal("zebra", tables[1].Name)
}

func TestSQLTypeFromString(t *testing.T) {
	assert := require.New(t)

	assert.Equal(storage.Integer, SQLTypeFromString("INTEGER"))
	assert.Equal(storage.Integer, SQLTypeFromString("int"))
	assert.Equal(storage.Integer, SQLTypeFromString("BIGINT"))
	assert.Equal(storage.Text, SQLTypeFromString("TEXT"))
	assert.Equal(storage.Text, SQLTypeFromString("VARCHAR"))
	assert.Equal(storage.Real, SQLTypeFromString("REAL"))
	assert.Equal(storage.Real, SQLTypeFromString("DOUBLE"))
	assert.Equal(storage.Blob, SQLTypeFromString("BLOB"))
	assert.Equal(storage.Text, SQLTypeFromString("whatever"))
}
