package tsql

import (
	"strings"

	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/parser"
)

// Parse parses a single SQL statement and produces an AST. A trailing
// statement terminator is accepted and ignored.
func Parse(sql string) (ast.Statement, error) {
	return parser.ParseStatement(strings.TrimRight(sql, " \t\r\n;"))
}
