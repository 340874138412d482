package query

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/litedb/internal/metadata"
	"github.com/joeandaverde/litedb/internal/storage"
	"github.com/joeandaverde/litedb/tsql"
	"github.com/joeandaverde/litedb/tsql/ast"
)

type testDB struct {
	pager   storage.Pager
	catalog *metadata.Catalog
	mutator *Mutator
	log     *logrus.Logger
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()

	pager, err := storage.NewPager(storage.NewMemoryFile(4096))
	require.NoError(t, err)
	pager.SetMode(storage.ModeWrite)

	log := logrus.New()
	log.SetOutput(io.Discard)

	catalog := metadata.NewCatalog(pager)
	return &testDB{
		pager:   pager,
		catalog: catalog,
		mutator: NewMutator(pager, catalog, log),
		log:     log,
	}
}

// exec parses and runs a statement that modifies the database,
// returning the affected row count.
func (db *testDB) exec(t *testing.T, sql string) int {
	t.Helper()
	n, err := db.tryExec(sql)
	require.NoError(t, err, sql)
	return n
}

func (db *testDB) tryExec(sql string) (int, error) {
	stmt, err := tsql.Parse(sql)
	if err != nil {
		return 0, err
	}

	switch s := stmt.(type) {
	case *ast.CreateTableStatement:
		return db.mutator.CreateTable(s)
	case *ast.CreateIndexStatement:
		return db.mutator.CreateIndex(s)
	case *ast.DropTableStatement:
		return db.mutator.DropTable(s)
	case *ast.DropIndexStatement:
		return db.mutator.DropIndex(s)
	case *ast.InsertStatement:
		n, _, err := db.mutator.Insert(s)
		return n, err
	case *ast.UpdateStatement:
		return db.mutator.Update(s)
	case *ast.DeleteStatement:
		return db.mutator.Delete(s)
	}
	return 0, nil
}

// query runs a SELECT to completion.
func (db *testDB) query(t *testing.T, sql string) ([]string, [][]storage.Field) {
	t.Helper()
	columns, rows, err := db.tryQuery(sql)
	require.NoError(t, err, sql)
	return columns, rows
}

func (db *testDB) tryQuery(sql string) ([]string, [][]storage.Field, error) {
	stmt, err := tsql.Parse(sql)
	if err != nil {
		return nil, nil, err
	}
	sel, ok := stmt.(*ast.SelectStatement)
	if !ok {
		return nil, nil, fmt.Errorf("not a select: %s", sql)
	}

	result, err := Select(db.pager, db.catalog, db.log, sel)
	if err != nil {
		return nil, nil, err
	}

	var rows [][]storage.Field
	for {
		fields, err := result.Next()
		if err == io.EOF {
			return result.Columns, rows, nil
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, fields)
	}
}

// loadFixture creates the users/orders dataset most query tests run
// against.
func loadFixture(t *testing.T, db *testDB) {
	t.Helper()

	db.exec(t, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)")
	db.exec(t, "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, product TEXT, amount REAL)")

	db.exec(t, `INSERT INTO users (name, age) VALUES
		('Alice', 28), ('Bob', 35), ('Charlie', 42), ('David', 22), ('Eve', 31)`)
	db.exec(t, `INSERT INTO orders (user_id, product, amount) VALUES
		(1, 'Laptop', 1200.00), (1, 'Mouse', 25.50),
		(2, 'Monitor', 350.00),
		(3, 'Keyboard', 120.00), (3, 'Headphones', 85.00), (3, 'Desk Chair', 250.00),
		(4, 'USB Drive', 15.00)`)
}

func textField(s string) storage.Field {
	return storage.Field{Type: storage.Text, Data: s}
}

func intField(i int64) storage.Field {
	return storage.Field{Type: storage.Integer, Data: i}
}

func realField(r float64) storage.Field {
	return storage.Field{Type: storage.Real, Data: r}
}

// column extracts one column of a result set.
func column(rows [][]storage.Field, i int) []storage.Field {
	out := make([]storage.Field, len(rows))
	for j, r := range rows {
		out[j] = r[i]
	}
	return out
}
