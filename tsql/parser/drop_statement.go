package parser

import (
	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/lexer"
	"github.com/joeandaverde/litedb/tsql/scan"
)

func parseDropTable(scanner scan.Scanner) (*ast.DropTableStatement, error) {
	dropTableStatement := ast.DropTableStatement{}

	ok, _ := allX(
		committed("DROP", keyword(lexer.TokenDrop)),
		keyword(lexer.TokenTable),
		optional(
			allX(keyword(lexer.TokenIf), keyword(lexer.TokenExists)),
			func(tokens []lexer.Token) {
				dropTableStatement.IfExists = true
			}),
		committed("TABLE NAME", ident(func(tableName string) {
			dropTableStatement.TableName = tableName
		})),
	)(scanner)

	if ok {
		return &dropTableStatement, nil
	}

	return nil, nil
}

func parseDropIndex(scanner scan.Scanner) (*ast.DropIndexStatement, error) {
	dropIndexStatement := ast.DropIndexStatement{}

	ok, _ := allX(
		committed("DROP", keyword(lexer.TokenDrop)),
		keyword(lexer.TokenIndex),
		optional(
			allX(keyword(lexer.TokenIf), keyword(lexer.TokenExists)),
			func(tokens []lexer.Token) {
				dropIndexStatement.IfExists = true
			}),
		committed("INDEX NAME", ident(func(indexName string) {
			dropIndexStatement.IndexName = indexName
		})),
	)(scanner)

	if ok {
		return &dropIndexStatement, nil
	}

	return nil, nil
}
