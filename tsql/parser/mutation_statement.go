package parser

import (
	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/lexer"
	"github.com/joeandaverde/litedb/tsql/scan"
)

func parseInsert(scanner scan.Scanner) (*ast.InsertStatement, error) {
	insertStatement := ast.InsertStatement{}

	columnName := allX(
		optWS,
		ident(func(name string) {
			insertStatement.Columns = append(insertStatement.Columns, name)
		}),
		optWS,
	)

	// Each parenthesized group in the VALUES list is one row.
	var row []ast.Expression
	valueExpr := func(scanner scan.Scanner) (bool, interface{}) {
		ok, expr := parseExpression()(scanner)
		if !ok {
			return false, nil
		}
		row = append(row, expr)
		return true, expr
	}
	valueRow := func(scanner scan.Scanner) (bool, interface{}) {
		row = nil
		ok, result := parensCommaSep(valueExpr)(scanner)
		if !ok {
			return false, nil
		}
		insertStatement.Rows = append(insertStatement.Rows, row)
		return true, result
	}

	ok, _ := allX(
		committed("INSERT", keyword(lexer.TokenInsert)),
		keyword(lexer.TokenInto),
		committed("INSERT TABLE", ident(func(tableName string) {
			insertStatement.Table = tableName
		})),
		committed("INSERT COLUMNS", parensCommaSep(columnName)),
		committed("VALUES", keyword(lexer.TokenValues)),
		committed("INSERT VALUES", separatedBy1(commaSeparator, valueRow)),
	)(scanner)

	if ok {
		return &insertStatement, nil
	}

	return nil, nil
}

func parseUpdate(scanner scan.Scanner) (*ast.UpdateStatement, error) {
	updateStatement := ast.UpdateStatement{}

	assignment := func(scanner scan.Scanner) (bool, interface{}) {
		a := ast.Assignment{}

		ok, _ := allX(
			optWS,
			ident(func(column string) {
				a.Column = column
			}),
			optWS,
			token(lexer.TokenEquals),
			optWS,
			makeExpressionParser(func(value ast.Expression) {
				a.Value = value
			}),
		)(scanner)

		if !ok {
			return false, nil
		}

		updateStatement.Assignments = append(updateStatement.Assignments, a)
		return true, a
	}

	ok, _ := allX(
		committed("UPDATE", keyword(lexer.TokenUpdate)),
		committed("UPDATE TABLE", ident(func(tableName string) {
			updateStatement.Table = tableName
		})),
		keyword(lexer.TokenSet),
		committed("SET", separatedBy1(commaSeparator, assignment)),
		optionalX(allX(
			keyword(lexer.TokenWhere),
			committed("WHERE", makeExpressionParser(func(filter ast.Expression) {
				updateStatement.Filter = filter
			})),
		)),
	)(scanner)

	if ok {
		return &updateStatement, nil
	}

	return nil, nil
}

func parseDelete(scanner scan.Scanner) (*ast.DeleteStatement, error) {
	deleteStatement := ast.DeleteStatement{}

	ok, _ := allX(
		committed("DELETE", keyword(lexer.TokenDelete)),
		keyword(lexer.TokenFrom),
		committed("DELETE TABLE", ident(func(tableName string) {
			deleteStatement.Table = tableName
		})),
		optionalX(allX(
			keyword(lexer.TokenWhere),
			committed("WHERE", makeExpressionParser(func(filter ast.Expression) {
				deleteStatement.Filter = filter
			})),
		)),
	)(scanner)

	if ok {
		return &deleteStatement, nil
	}

	return nil, nil
}
