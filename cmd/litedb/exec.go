package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joeandaverde/litedb/internal/backend"
)

type ExecCommand struct{}

func (e *ExecCommand) Help() string {
	helpText := `
Usage: litedb exec [options] <statement>

Executes a single statement against a database file and prints the
result. Rows print pipe separated, one per line. The statement may
also be one of the meta commands:

	.dbinfo		print database file information
	.tables		list table names

Options:

	-db=""		Database file path
	-page-size=4096	Page size used when creating a new database
`

	return strings.TrimSpace(helpText)
}

func (e *ExecCommand) Synopsis() string {
	return "Executes a statement against a database file"
}

func (e *ExecCommand) Run(args []string) int {
	var dbPath string
	var pageSize int

	cmdFlags := flag.NewFlagSet("exec", flag.ExitOnError)
	cmdFlags.StringVar(&dbPath, "db", "", "database file")
	cmdFlags.IntVar(&pageSize, "page-size", 4096, "page size for new databases")

	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}

	if dbPath == "" || cmdFlags.NArg() == 0 {
		_, _ = fmt.Fprintln(os.Stderr, e.Help())
		return 1
	}

	statement := strings.Join(cmdFlags.Args(), " ")

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := backend.Open(logger, backend.Config{
		Path:     dbPath,
		PageSize: pageSize,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error opening database: %s\n", err.Error())
		return 1
	}

	if err := execStatement(db, statement, os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return 1
	}

	return 0
}

func execStatement(db *backend.Backend, statement string, w io.Writer) error {
	switch strings.TrimSpace(statement) {
	case ".dbinfo":
		info, err := db.DBInfo()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "database page size:  %d\n", info.PageSize)
		fmt.Fprintf(w, "database page count: %d\n", info.TotalPages)
		fmt.Fprintf(w, "schema cookie:       %d\n", info.SchemaCookie)
		fmt.Fprintf(w, "number of tables:    %d\n", info.Tables)
		fmt.Fprintf(w, "number of indexes:   %d\n", info.Indexes)
		return nil
	case ".tables":
		names, err := db.Tables()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
		return nil
	}

	stmt, err := db.Prepare(statement)
	if err != nil {
		return err
	}

	result, err := db.Exec(context.Background(), stmt)
	if err != nil {
		return err
	}

	if !stmt.ReturnsRows() {
		_, err := fmt.Fprintf(w, "%d rows affected\n", result.RowsAffected)
		return err
	}

	for {
		fields, err := result.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = backend.FormatField(f)
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, "|")); err != nil {
			return err
		}
	}
}
