package parser

import (
	"strconv"

	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/lexer"
	"github.com/joeandaverde/litedb/tsql/scan"
)

func parseSelect(scanner scan.Scanner) (*ast.SelectStatement, error) {
	selectStatement := ast.SelectStatement{}

	whereClause := allX(
		keyword(lexer.TokenWhere),
		committed("WHERE", makeExpressionParser(func(filter ast.Expression) {
			selectStatement.Filter = filter
		})),
	)

	groupByClause := allX(
		keyword(lexer.TokenGroup),
		keyword(lexer.TokenBy),
		committed("GROUP BY", commaSeparated(makeExpressionParser(func(expr ast.Expression) {
			selectStatement.GroupBy = append(selectStatement.GroupBy, expr)
		}))),
		optionalX(allX(
			keyword(lexer.TokenHaving),
			committed("HAVING", makeExpressionParser(func(having ast.Expression) {
				selectStatement.Having = having
			})),
		)),
	)

	orderByClause := allX(
		keyword(lexer.TokenOrder),
		keyword(lexer.TokenBy),
		committed("ORDER BY", commaSeparated(orderingTerm(&selectStatement))),
	)

	limitClause := allX(
		keyword(lexer.TokenLimit),
		committed("LIMIT", requiredToken(lexer.TokenNumber, func(tokens []lexer.Token) {
			if n, err := strconv.Atoi(tokens[0].Text); err == nil {
				selectStatement.Limit = &n
			}
		})),
	)

	unionClause := func(scanner scan.Scanner) (bool, interface{}) {
		ok, _ := keyword(lexer.TokenUnion)(scanner)
		if !ok {
			return false, nil
		}

		if allOk, _ := keyword(lexer.TokenAll)(scanner); allOk {
			selectStatement.UnionAll = true
		}

		scanner.Commit("UNION")
		right, err := parseSelect(scanner)
		if err != nil || right == nil {
			return false, nil
		}
		selectStatement.Union = right
		return true, right
	}

	// Tables after the first in a comma list are cross joins.
	fromClause := allX(
		keyword(lexer.TokenFrom),
		committed("RELATION", commaSeparated(tableRef(func(table ast.TableAlias) {
			if selectStatement.From == nil {
				t := table
				selectStatement.From = &t
			} else {
				selectStatement.Joins = append(selectStatement.Joins, ast.JoinClause{Table: table})
			}
		}))),
	)

	ok, _ := allX(
		committed("SELECT", keyword(lexer.TokenSelect)),
		committed("COLUMNS", commaSeparated(resultColumn(&selectStatement))),
		optionalX(fromClause),
		zeroOrMore(joinClause(&selectStatement)),
		optionalX(whereClause),
		optionalX(groupByClause),
		optionalX(orderByClause),
		optionalX(limitClause),
		optionalX(unionClause),
	)(scanner)

	if ok {
		return &selectStatement, nil
	}

	return nil, nil
}

// resultColumn parses * or an expression with an optional AS alias.
func resultColumn(stmt *ast.SelectStatement) parserFn {
	return func(scanner scan.Scanner) (bool, interface{}) {
		_, reset := scanner.Mark()

		if ok, _ := allX(optWS, token(lexer.TokenAsterisk))(scanner); ok {
			// Reject the * of an expression like count * 2.
			if next := scanner.Peek(); next.Kind != lexer.TokenComma &&
				next.Kind != lexer.TokenWhiteSpace && next.Kind != lexer.TokenEOF {
				reset()
			} else {
				stmt.Columns = append(stmt.Columns, ast.ResultColumn{Star: true})
				return true, nil
			}
		}

		column := ast.ResultColumn{}
		ok, _ := makeExpressionParser(func(expr ast.Expression) {
			column.Expr = expr
		})(scanner)
		if !ok {
			reset()
			return false, nil
		}

		optionalX(allX(
			reqWS,
			token(lexer.TokenAs),
			reqWS,
			ident(func(alias string) {
				column.Alias = alias
			}),
		))(scanner)

		stmt.Columns = append(stmt.Columns, column)
		return true, column
	}
}

// tableRef parses a table name with an optional alias, in either the
// bare or the AS form.
func tableRef(n func(ast.TableAlias)) parserFn {
	return func(scanner scan.Scanner) (bool, interface{}) {
		table := ast.TableAlias{}

		ok, _ := allX(
			optWS,
			ident(func(name string) {
				table.Name = name
			}),
			optionalX(allX(
				reqWS,
				optionalX(allX(token(lexer.TokenAs), reqWS)),
				ident(func(alias string) {
					table.Alias = alias
				}),
			)),
		)(scanner)

		if !ok {
			return false, nil
		}

		n(table)
		return true, table
	}
}

// joinClause parses [LEFT [OUTER] | INNER] JOIN table [alias] ON expr.
func joinClause(stmt *ast.SelectStatement) parserFn {
	return func(scanner scan.Scanner) (bool, interface{}) {
		_, reset := scanner.Mark()

		join := ast.JoinClause{}

		if ok, _ := keyword(lexer.TokenLeft)(scanner); ok {
			join.Left = true
			optionalX(keyword(lexer.TokenOuter))(scanner)
		} else {
			optionalX(keyword(lexer.TokenInner))(scanner)
		}

		ok, _ := allX(
			keyword(lexer.TokenJoin),
			committed("JOIN", tableRef(func(table ast.TableAlias) {
				join.Table = table
			})),
			keyword(lexer.TokenOn),
			committed("JOIN ON", makeExpressionParser(func(on ast.Expression) {
				join.On = on
			})),
		)(scanner)

		if !ok {
			reset()
			return false, nil
		}

		stmt.Joins = append(stmt.Joins, join)
		return true, join
	}
}

// orderingTerm parses an ORDER BY expression with an optional direction.
func orderingTerm(stmt *ast.SelectStatement) parserFn {
	return func(scanner scan.Scanner) (bool, interface{}) {
		term := ast.OrderingTerm{}

		ok, _ := makeExpressionParser(func(expr ast.Expression) {
			term.Expr = expr
		})(scanner)
		if !ok {
			return false, nil
		}

		oneOf([]parserFn{
			allX(optWS, token(lexer.TokenDesc), func(scanner scan.Scanner) (bool, interface{}) {
				term.Desc = true
				return true, nil
			}),
			allX(optWS, token(lexer.TokenAsc)),
		}, nil)(scanner)

		stmt.OrderBy = append(stmt.OrderBy, term)
		return true, term
	}
}
