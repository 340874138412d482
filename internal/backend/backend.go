package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/joeandaverde/litedb/internal/metadata"
	"github.com/joeandaverde/litedb/internal/query"
	"github.com/joeandaverde/litedb/internal/storage"
	"github.com/joeandaverde/litedb/tsql"
	"github.com/joeandaverde/litedb/tsql/ast"
)

// Config describes the database a backend serves.
type Config struct {
	Path     string
	PageSize int
}

// Backend executes SQL statements against a single database file.
// Statements are serialized: each mutating statement commits on success
// and rolls back on failure.
type Backend struct {
	mu      sync.Mutex
	pager   storage.Pager
	catalog *metadata.Catalog

	log *logrus.Logger
}

// Open opens or creates the database file and returns a backend over it.
func Open(log *logrus.Logger, config Config) (*Backend, error) {
	if config.PageSize == 0 {
		config.PageSize = 4096
	}
	if config.PageSize < 512 {
		return nil, errors.New("backend: page size must be at least 512")
	}

	log.WithField("path", config.Path).Info("opening database")

	file, err := storage.OpenDbFile(config.Path, config.PageSize)
	if err != nil {
		return nil, err
	}
	pager, err := storage.NewPager(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return New(log, pager), nil
}

// New builds a backend over an existing pager.
func New(log *logrus.Logger, pager storage.Pager) *Backend {
	return &Backend{
		pager:   pager,
		catalog: metadata.NewCatalog(pager),
		log:     log,
	}
}

// Statement is a parsed statement ready for execution.
type Statement struct {
	SQL  string
	stmt ast.Statement
}

// Mutates reports whether executing the statement can change the
// database.
func (s *Statement) Mutates() bool { return s.stmt.Mutates() }

// ReturnsRows reports whether the statement produces a result set.
func (s *Statement) ReturnsRows() bool { return s.stmt.ReturnsRows() }

// Result is the outcome of one statement. For selects, rows stream
// through Next until io.EOF; for mutations, RowsAffected and
// LastInsertID are set and Next reports io.EOF immediately.
type Result struct {
	Columns      []string
	RowsAffected int
	LastInsertID int64

	rows *query.Rows
}

// Next returns the next result row.
func (r *Result) Next() ([]storage.Field, error) {
	if r.rows == nil {
		return nil, io.EOF
	}
	return r.rows.Next()
}

// Prepare parses a statement.
func (b *Backend) Prepare(command string) (*Statement, error) {
	b.log.WithField("sql", command).Debug("prepare")

	stmt, err := tsql.Parse(command)
	if err != nil {
		return nil, err
	}
	return &Statement{SQL: command, stmt: stmt}, nil
}

// Exec executes a prepared statement. Select results must be drained
// before the next call on this backend.
func (b *Backend) Exec(ctx context.Context, stmt *Statement) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sel, ok := stmt.stmt.(*ast.SelectStatement); ok {
		rows, err := query.Select(b.pager, b.catalog, b.log, sel)
		if err != nil {
			return nil, err
		}
		return &Result{Columns: rows.Columns, rows: rows}, nil
	}

	b.pager.SetMode(storage.ModeWrite)
	result, err := b.mutate(stmt)
	if err != nil {
		b.rollback()
		return nil, err
	}
	if err := b.commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Backend) mutate(stmt *Statement) (*Result, error) {
	mutator := query.NewMutator(b.pager, b.catalog, b.log)

	switch s := stmt.stmt.(type) {
	case *ast.CreateTableStatement:
		n, err := mutator.CreateTable(s)
		return &Result{RowsAffected: n}, err
	case *ast.CreateIndexStatement:
		n, err := mutator.CreateIndex(s)
		return &Result{RowsAffected: n}, err
	case *ast.DropTableStatement:
		n, err := mutator.DropTable(s)
		return &Result{RowsAffected: n}, err
	case *ast.DropIndexStatement:
		n, err := mutator.DropIndex(s)
		return &Result{RowsAffected: n}, err
	case *ast.InsertStatement:
		n, last, err := mutator.Insert(s)
		return &Result{RowsAffected: n, LastInsertID: last}, err
	case *ast.UpdateStatement:
		n, err := mutator.Update(s)
		return &Result{RowsAffected: n}, err
	case *ast.DeleteStatement:
		n, err := mutator.Delete(s)
		return &Result{RowsAffected: n}, err
	}
	return nil, fmt.Errorf("backend: unsupported statement %T", stmt.stmt)
}

// rollback discards any changes made by the failed statement.
func (b *Backend) rollback() {
	b.log.Debug("rollback")
	b.pager.Reset()
	b.pager.SetMode(storage.ModeRead)
	b.catalog.Invalidate()
}

// commit persists modifications.
func (b *Backend) commit() error {
	b.log.Debug("commit")
	if err := b.pager.Flush(); err != nil {
		b.log.WithError(err).Error("commit failed")
		b.rollback()
		return err
	}
	b.pager.SetMode(storage.ModeRead)
	return nil
}

// DBInfo summarizes the open database for diagnostic commands.
type DBInfo struct {
	PageSize     int
	TotalPages   int
	SchemaCookie uint32
	Tables       int
	Indexes      int
}

func (b *Backend) DBInfo() (DBInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tables, err := b.catalog.Tables()
	if err != nil {
		return DBInfo{}, err
	}

	indexes := 0
	for _, t := range tables {
		list, err := b.catalog.Indexes(t.Name)
		if err != nil {
			return DBInfo{}, err
		}
		indexes += len(list)
	}

	header := b.pager.Header()
	return DBInfo{
		PageSize:     b.pager.PageSize(),
		TotalPages:   b.pager.TotalPages(),
		SchemaCookie: header.SchemaCookie,
		Tables:       len(tables),
		Indexes:      indexes,
	}, nil
}

// Tables lists the user table names in sorted order.
func (b *Backend) Tables() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tables, err := b.catalog.Tables()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names, nil
}
