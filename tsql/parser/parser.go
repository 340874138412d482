package parser

import (
	"fmt"

	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/lexer"
	"github.com/joeandaverde/litedb/tsql/scan"
)

// SyntaxError reports where a statement stopped parsing and the clause
// being parsed at that point.
type SyntaxError struct {
	// Position is the byte offset in the input where parsing stalled.
	Position int
	// Clause is the last committed grammar landmark, e.g. "WHERE".
	Clause string
}

func (e *SyntaxError) Error() string {
	if e.Clause != "" {
		return fmt.Sprintf("syntax error near character %d while parsing %s", e.Position, e.Clause)
	}
	return fmt.Sprintf("syntax error near character %d", e.Position)
}

var topLevelStatements = []struct {
	Name  string
	Parse func(scanner scan.Scanner) (ast.Statement, bool, error)
}{
	{
		Name: "CREATE TABLE",
		Parse: func(scanner scan.Scanner) (ast.Statement, bool, error) {
			s, err := parseCreateTable(scanner)
			return s, s != nil, err
		},
	},
	{
		Name: "CREATE INDEX",
		Parse: func(scanner scan.Scanner) (ast.Statement, bool, error) {
			s, err := parseCreateIndex(scanner)
			return s, s != nil, err
		},
	},
	{
		Name: "DROP TABLE",
		Parse: func(scanner scan.Scanner) (ast.Statement, bool, error) {
			s, err := parseDropTable(scanner)
			return s, s != nil, err
		},
	},
	{
		Name: "DROP INDEX",
		Parse: func(scanner scan.Scanner) (ast.Statement, bool, error) {
			s, err := parseDropIndex(scanner)
			return s, s != nil, err
		},
	},
	{
		Name: "INSERT",
		Parse: func(scanner scan.Scanner) (ast.Statement, bool, error) {
			s, err := parseInsert(scanner)
			return s, s != nil, err
		},
	},
	{
		Name: "UPDATE",
		Parse: func(scanner scan.Scanner) (ast.Statement, bool, error) {
			s, err := parseUpdate(scanner)
			return s, s != nil, err
		},
	},
	{
		Name: "DELETE",
		Parse: func(scanner scan.Scanner) (ast.Statement, bool, error) {
			s, err := parseDelete(scanner)
			return s, s != nil, err
		},
	},
	{
		Name: "SELECT",
		Parse: func(scanner scan.Scanner) (ast.Statement, bool, error) {
			s, err := parseSelect(scanner)
			return s, s != nil, err
		},
	},
}

// ParseStatement parses a string of sql and produces a statement or a
// *SyntaxError.
func ParseStatement(sql string) (ast.Statement, error) {
	scanner := scan.NewScanner(sql)

	for _, p := range topLevelStatements {
		stmt, ok, err := p.Parse(scanner)
		if err != nil {
			return nil, err
		}
		if ok {
			// The whole input must belong to the statement.
			if done, _ := allX(optWS, token(lexer.TokenEOF))(scanner); !done {
				return nil, &SyntaxError{
					Position: scanner.Offset(),
					Clause:   scanner.Committed(),
				}
			}
			return stmt, nil
		}
		scanner.Reset()
	}

	return nil, &SyntaxError{
		Position: scanner.Offset(),
		Clause:   scanner.Committed(),
	}
}
