package driver

import (
	"database/sql"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("litedb", path.Join(t.TempDir(), "lite.db"))
	require.NoError(t, err)

	// A single connection keeps every statement on one pager.
	db.SetMaxOpenConns(1)
	return db
}

func TestDriver_Open(t *testing.T) {
	assert := require.New(t)

	db := openTestDB(t)
	assert.NotNil(db)
	assert.NoError(db.Ping())
}

func TestDriver_Exec(t *testing.T) {
	assert := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE foo (name TEXT);")
	assert.NoError(err)

	res, err := db.Exec("INSERT INTO foo (name) VALUES ('bar'), ('baz');")
	assert.NoError(err)

	affected, err := res.RowsAffected()
	assert.NoError(err)
	assert.Equal(int64(2), affected)

	lastID, err := res.LastInsertId()
	assert.NoError(err)
	assert.Equal(int64(2), lastID)

	rows, err := db.Query("SELECT name FROM foo WHERE name = 'bar';")
	assert.NoError(err)
	defer rows.Close()

	var name string
	for rows.Next() {
		assert.NoError(rows.Scan(&name))
	}
	assert.NoError(rows.Err())
	assert.Equal("bar", name)
}

func TestDriver_QueryTypes(t *testing.T) {
	assert := require.New(t)
	db := openTestDB(t)

	_, err := db.Exec("CREATE TABLE t (i INTEGER, r REAL, s TEXT)")
	assert.NoError(err)
	_, err = db.Exec("INSERT INTO t (i, r, s) VALUES (42, 1.5, 'hello'), (NULL, NULL, NULL)")
	assert.NoError(err)

	rows, err := db.Query("SELECT i, r, s FROM t")
	assert.NoError(err)
	defer rows.Close()

	cols, err := rows.Columns()
	assert.NoError(err)
	assert.Equal([]string{"i", "r", "s"}, cols)

	assert.True(rows.Next())
	var i int64
	var r float64
	var s string
	assert.NoError(rows.Scan(&i, &r, &s))
	assert.Equal(int64(42), i)
	assert.Equal(1.5, r)
	assert.Equal("hello", s)

	assert.True(rows.Next())
	var ni sql.NullInt64
	var nr sql.NullFloat64
	var ns sql.NullString
	assert.NoError(rows.Scan(&ni, &nr, &ns))
	assert.False(ni.Valid)
	assert.False(nr.Valid)
	assert.False(ns.Valid)
}

func TestDriver_PageSizeParam(t *testing.T) {
	assert := require.New(t)

	db, err := sql.Open("litedb", path.Join(t.TempDir(), "lite.db")+"?page_size=8192")
	assert.NoError(err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec("CREATE TABLE t (a INTEGER)")
	assert.NoError(err)

	var n int64
	assert.NoError(db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	assert.Equal(int64(0), n)
}
