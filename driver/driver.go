package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joeandaverde/litedb/internal/backend"
	"github.com/joeandaverde/litedb/internal/storage"
)

func init() {
	sql.Register("litedb", &LiteDBDriver{})
}

type LiteDBDriver struct{}

type LiteDBConnection struct {
	dsn     string
	backend *backend.Backend
}

type LiteDBStmt struct {
	command string
	conn    *LiteDBConnection
}

// LiteDBTx exists to satisfy database/sql. Every statement commits on
// its own, so Commit is a no-op and Rollback cannot undo anything.
type LiteDBTx struct{}

type LiteDBResult struct {
	affected int64
	lastID   int64
}

type LiteDBRows struct {
	result *backend.Result
}

// Open opens a litedb connection. The DSN is a file path with optional
// parameters: path/to/db?page_size=4096.
//
// TODO: share a single backend between connections opened on the same
// path so the pager caches stay coherent.
func (d *LiteDBDriver) Open(dsn string) (driver.Conn, error) {
	config, err := parseDsn(dsn)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	b, err := backend.Open(logger, config)
	if err != nil {
		return nil, err
	}

	return &LiteDBConnection{dsn: dsn, backend: b}, nil
}

// Prepare prepares a litedb query
func (c *LiteDBConnection) Prepare(command string) (driver.Stmt, error) {
	return &LiteDBStmt{
		command: command,
		conn:    c,
	}, nil
}

// Begin begins a litedb transaction
func (c *LiteDBConnection) Begin() (driver.Tx, error) {
	return &LiteDBTx{}, nil
}

// Close closes a litedb connection
func (c *LiteDBConnection) Close() error {
	return nil
}

func (c *LiteDBConnection) run(command string) (*backend.Result, error) {
	stmt, err := c.backend.Prepare(command)
	if err != nil {
		return nil, err
	}
	return c.backend.Exec(context.Background(), stmt)
}

func (c *LiteDBStmt) Close() error {
	return nil
}

// NumInput returns the number of placeholder parameters. Placeholders
// are not supported, so the count is unknown.
func (c *LiteDBStmt) NumInput() int {
	return -1
}

// Exec executes a query that doesn't return rows, such as an INSERT or
// UPDATE.
func (c *LiteDBStmt) Exec(args []driver.Value) (driver.Result, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("litedb: placeholder parameters are not supported")
	}

	result, err := c.conn.run(c.command)
	if err != nil {
		return nil, err
	}
	return &LiteDBResult{
		affected: int64(result.RowsAffected),
		lastID:   result.LastInsertID,
	}, nil
}

// Query executes a query that may return rows, such as a SELECT.
func (c *LiteDBStmt) Query(args []driver.Value) (driver.Rows, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("litedb: placeholder parameters are not supported")
	}

	result, err := c.conn.run(c.command)
	if err != nil {
		return nil, err
	}
	return &LiteDBRows{result: result}, nil
}

func (t *LiteDBTx) Commit() error {
	return nil
}

func (t *LiteDBTx) Rollback() error {
	return fmt.Errorf("litedb: rollback is not supported, statements auto-commit")
}

func (r *LiteDBResult) LastInsertId() (int64, error) {
	return r.lastID, nil
}

func (r *LiteDBResult) RowsAffected() (int64, error) {
	return r.affected, nil
}

// Columns returns the names of the result columns.
func (r *LiteDBRows) Columns() []string {
	return r.result.Columns[:]
}

// Close closes the rows iterator.
func (r *LiteDBRows) Close() error {
	return nil
}

// Next populates the next row of data into the provided slice,
// returning io.EOF when the result set is exhausted.
func (r *LiteDBRows) Next(dest []driver.Value) error {
	fields, err := r.result.Next()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return err
	}

	for i, f := range fields {
		dest[i] = fieldValue(f)
	}
	return nil
}

// fieldValue converts a storage value to a driver.Value.
func fieldValue(f storage.Field) driver.Value {
	switch f.Type {
	case storage.Null:
		return nil
	case storage.Integer:
		return f.Data.(int64)
	case storage.Real:
		return f.Data.(float64)
	case storage.Text:
		return f.Data.(string)
	default:
		return f.Data.([]byte)
	}
}

func parseDsn(dsn string) (backend.Config, error) {
	pageSize := 4096
	dbPath := dsn

	if pos := strings.IndexRune(dsn, '?'); pos >= 1 {
		dbPath = dsn[:pos]
		params, err := url.ParseQuery(dsn[pos+1:])
		if err != nil {
			return backend.Config{}, err
		}

		if val := params.Get("page_size"); val != "" {
			iv, err := strconv.ParseInt(val, 10, 32)
			if err != nil {
				return backend.Config{}, fmt.Errorf("invalid page_size: %v: %v", val, err)
			}
			pageSize = int(iv)
		}
	}

	return backend.Config{
		Path:     dbPath,
		PageSize: pageSize,
	}, nil
}

var _ driver.Driver = (*LiteDBDriver)(nil)

var _ driver.Conn = (*LiteDBConnection)(nil)

var _ driver.Stmt = (*LiteDBStmt)(nil)

var _ driver.Tx = (*LiteDBTx)(nil)

var _ driver.Result = (*LiteDBResult)(nil)

var _ driver.Rows = (*LiteDBRows)(nil)
