package parser

import (
	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/lexer"
	"github.com/joeandaverde/litedb/tsql/scan"
)

func parseCreateTable(scanner scan.Scanner) (*ast.CreateTableStatement, error) {
	createTableStatement := ast.CreateTableStatement{}

	column := ast.ColumnDefinition{}
	flushColumn := func(tokens [][]lexer.Token) {
		createTableStatement.Columns = append(createTableStatement.Columns, column)
		column = ast.ColumnDefinition{}
	}

	columnDefinition := all([]parserFn{
		optWS,
		ident(func(name string) {
			column.Name = name
		}),
		reqWS,
		ident(func(columnType string) {
			column.Type = columnType
		}),
		optional(allX(
			reqWS,
			token(lexer.TokenPrimary),
			reqWS,
			token(lexer.TokenKey),
		), func(tokens []lexer.Token) {
			column.PrimaryKey = true
		}),
		optional(allX(
			reqWS,
			token(lexer.TokenNot),
			reqWS,
			token(lexer.TokenNull),
		), func(tokens []lexer.Token) {
			column.NotNull = true
		}),
		optWS,
	}, flushColumn)

	ok, _ := allX(
		committed("CREATE", keyword(lexer.TokenCreate)),
		keyword(lexer.TokenTable),
		optional(
			allX(keyword(lexer.TokenIf), keyword(lexer.TokenNot), keyword(lexer.TokenExists)),
			func(tokens []lexer.Token) {
				createTableStatement.IfNotExists = true
			}),
		committed("TABLE NAME", ident(func(tableName string) {
			createTableStatement.TableName = tableName
		})),
		committed("COLUMNS", parensCommaSep(columnDefinition)),
	)(scanner)

	if ok {
		createTableStatement.RawText = scanner.Text()
		return &createTableStatement, nil
	}

	return nil, nil
}

func parseCreateIndex(scanner scan.Scanner) (*ast.CreateIndexStatement, error) {
	createIndexStatement := ast.CreateIndexStatement{}

	indexedColumn := allX(
		optWS,
		ident(func(name string) {
			createIndexStatement.Columns = append(createIndexStatement.Columns, name)
		}),
		optWS,
	)

	ok, _ := allX(
		committed("CREATE", keyword(lexer.TokenCreate)),
		keyword(lexer.TokenIndex),
		optional(
			allX(keyword(lexer.TokenIf), keyword(lexer.TokenNot), keyword(lexer.TokenExists)),
			func(tokens []lexer.Token) {
				createIndexStatement.IfNotExists = true
			}),
		committed("INDEX NAME", ident(func(indexName string) {
			createIndexStatement.IndexName = indexName
		})),
		keyword(lexer.TokenOn),
		committed("INDEX TABLE", ident(func(tableName string) {
			createIndexStatement.TableName = tableName
		})),
		committed("INDEX COLUMNS", parensCommaSep(indexedColumn)),
	)(scanner)

	if ok {
		createIndexStatement.RawText = scanner.Text()
		return &createIndexStatement, nil
	}

	return nil, nil
}
