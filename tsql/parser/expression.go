package parser

import (
	"strings"

	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/lexer"
	"github.com/joeandaverde/litedb/tsql/scan"
)

type expressionParserFn func(scan.Scanner) (bool, ast.Expression)

type opParserFn func(scan.Scanner) (bool, string)

type nodifyExpression func(expr ast.Expression)

var optWS = optionalToken(lexer.TokenWhiteSpace)

var reqWS = requiredToken(lexer.TokenWhiteSpace, nil)

var eofParser = requiredToken(lexer.TokenEOF, nil)

// operatorKind matches one of the given token kinds surrounded by
// optional whitespace and yields the operator text.
func operatorKind(kinds ...lexer.Kind) opParserFn {
	return func(scanner scan.Scanner) (bool, string) {
		_, reset := scanner.Mark()

		if scanner.Peek().Kind == lexer.TokenWhiteSpace {
			scanner.Next()
		}

		next := scanner.Peek()
		for _, k := range kinds {
			if next.Kind == k {
				scanner.Next()
				if scanner.Peek().Kind == lexer.TokenWhiteSpace {
					scanner.Next()
				}
				return true, strings.ToUpper(next.Text)
			}
		}

		reset()
		return false, ""
	}
}

// isOperator matches IS or IS NOT and yields a synthetic operator name.
func isOperator() opParserFn {
	return func(scanner scan.Scanner) (bool, string) {
		_, reset := scanner.Mark()

		ok, _ := allX(optWS, token(lexer.TokenIs), reqWS)(scanner)
		if !ok {
			reset()
			return false, ""
		}

		if ok, _ := allX(token(lexer.TokenNot), reqWS)(scanner); ok {
			return true, "IS NOT"
		}
		return true, "IS"
	}
}

func makeBinary(op string, left ast.Expression, right ast.Expression) ast.Expression {
	return &ast.BinaryOperation{
		Left:     left,
		Right:    right,
		Operator: op,
	}
}

// chainl parses one expression followed by any number of [op expression]
// pairs, folding them into a left-associative tree. Recursive descent
// cannot express left recursion directly; iterating achieves the same
// associativity.
func chainl(ep expressionParserFn, opParser opParserFn) expressionParserFn {
	return func(scanner scan.Scanner) (bool, ast.Expression) {
		success, expression := ep(scanner)
		if !success {
			return false, nil
		}

		for {
			os, op := opParser(scanner)
			if !os {
				return true, expression
			}

			ps, right := ep(scanner)
			if !ps {
				return false, nil
			}
			expression = makeBinary(op, expression, right)
		}
	}
}

// parseExpression parses a full expression with the precedence order
// unary, multiplicative, additive, comparison, IN, AND, OR.
func parseExpression() expressionParserFn {
	comparisons := chainl(
		chainl(
			chainl(
				parseUnary(),
				operatorKind(lexer.TokenAsterisk, lexer.TokenDivide, lexer.TokenModulo),
			),
			operatorKind(lexer.TokenPlus, lexer.TokenMinus),
		),
		comparisonOp(),
	)

	return chainl(
		chainl(
			parseNot(parseInExpression(comparisons)),
			operatorKind(lexer.TokenAnd),
		),
		operatorKind(lexer.TokenOr),
	)
}

// parseNot parses an optional prefix NOT before a predicate. Binds
// tighter than AND, looser than comparisons and IN.
func parseNot(ep expressionParserFn) expressionParserFn {
	return func(scanner scan.Scanner) (bool, ast.Expression) {
		_, reset := scanner.Mark()

		if ok, _ := allX(optWS, token(lexer.TokenNot), reqWS)(scanner); ok {
			if ok, operand := parseNot(ep)(scanner); ok {
				return true, &ast.UnaryOperation{Operator: "NOT", Operand: operand}
			}
			reset()
			return false, nil
		}

		return ep(scanner)
	}
}

func comparisonOp() opParserFn {
	kinds := operatorKind(
		lexer.TokenEquals,
		lexer.TokenNotEq,
		lexer.TokenGte,
		lexer.TokenLte,
		lexer.TokenGt,
		lexer.TokenLt,
	)
	is := isOperator()

	return func(scanner scan.Scanner) (bool, string) {
		if ok, op := kinds(scanner); ok {
			return true, op
		}
		return is(scanner)
	}
}

// parseInExpression wraps an expression parser with an optional postfix
// [NOT] IN (...) test against a value list or subquery.
func parseInExpression(ep expressionParserFn) expressionParserFn {
	return func(scanner scan.Scanner) (bool, ast.Expression) {
		ok, needle := ep(scanner)
		if !ok {
			return false, nil
		}

		_, reset := scanner.Mark()

		not := false
		if ok, _ := allX(optWS, token(lexer.TokenNot), reqWS)(scanner); ok {
			not = true
		}
		if ok, _ := allX(optWS, token(lexer.TokenIn), optWS)(scanner); !ok {
			reset()
			return true, needle
		}

		in := &ast.InExpression{Needle: needle, Not: not}

		// Subquery form.
		subquery := parens(func(scanner scan.Scanner) (bool, interface{}) {
			stmt, err := parseSelect(scanner)
			if err != nil || stmt == nil {
				return false, nil
			}
			in.Select = stmt
			return true, stmt
		})
		if ok, _ := subquery(scanner); ok {
			return true, in
		}

		// Literal list form.
		list := parensCommaSep(func(scanner scan.Scanner) (bool, interface{}) {
			ok, value := parseExpression()(scanner)
			if !ok {
				return false, nil
			}
			in.Values = append(in.Values, value)
			return true, value
		})
		if ok, _ := list(scanner); ok {
			return true, in
		}

		reset()
		return true, needle
	}
}

// parseUnary parses an optional prefix minus before a term.
func parseUnary() expressionParserFn {
	return func(scanner scan.Scanner) (bool, ast.Expression) {
		_, reset := scanner.Mark()

		if ok, _ := allX(optWS, token(lexer.TokenMinus))(scanner); ok {
			if ok, operand := parseTermExpression()(scanner); ok {
				return true, &ast.UnaryOperation{Operator: "-", Operand: operand}
			}
			reset()
			return false, nil
		}

		return parseTermExpression()(scanner)
	}
}

func parseTermExpression() expressionParserFn {
	return func(scanner scan.Scanner) (bool, ast.Expression) {
		_, reset := scanner.Mark()
		var expr ast.Expression

		ok, _ := oneOf([]parserFn{
			parseFunctionCall(func(expression ast.Expression) {
				expr = expression
			}),
			parseTerm(func(expression ast.Expression) {
				expr = expression
			}),
			parens(lazy(func() parserFn {
				return func(scanner scan.Scanner) (bool, interface{}) {
					s, e := parseExpression()(scanner)

					if s {
						expr = e
						return s, e
					}

					return false, s
				}
			})),
		}, nil)(scanner)

		if !ok {
			reset()
		}

		return ok, expr
	}
}

// parseFunctionCall parses name(*), name() or name(expr, ...).
func parseFunctionCall(nodify nodifyExpression) parserFn {
	return func(scanner scan.Scanner) (bool, interface{}) {
		_, reset := scanner.Mark()

		fn := &ast.FunctionCall{}

		nameOk, _ := allX(
			optWS,
			ident(func(name string) { fn.Name = name }),
			optWS,
			token(lexer.TokenOpenParen),
			optWS,
		)(scanner)
		if !nameOk {
			reset()
			return false, nil
		}

		// COUNT(*) form.
		if ok, _ := allX(token(lexer.TokenAsterisk), optWS, token(lexer.TokenCloseParen))(scanner); ok {
			fn.Star = true
			nodify(fn)
			return true, fn
		}

		// Empty argument list.
		if ok, _ := allX(token(lexer.TokenCloseParen))(scanner); ok {
			nodify(fn)
			return true, fn
		}

		arg := func(scanner scan.Scanner) (bool, interface{}) {
			ok, e := parseExpression()(scanner)
			if !ok {
				return false, nil
			}
			fn.Args = append(fn.Args, e)
			return true, e
		}

		ok, _ := allX(
			commaSeparated(arg),
			optWS,
			token(lexer.TokenCloseParen),
		)(scanner)
		if !ok {
			reset()
			return false, nil
		}

		nodify(fn)
		return true, fn
	}
}

func parseTerm(nodify nodifyExpression) parserFn {
	return oneOf([]parserFn{
		requiredToken(lexer.TokenIdentifier, func(tokens []lexer.Token) {
			if nodify != nil {
				nodify(&ast.Ident{
					Value: tokens[0].Text,
				})
			}
		}),
		requiredToken(lexer.TokenString, func(tokens []lexer.Token) {
			if nodify != nil {
				raw := tokens[0].Text[1 : len(tokens[0].Text)-1]
				nodify(&ast.BasicLiteral{
					Value: strings.ReplaceAll(raw, "''", "'"),
					Kind:  tokens[0].Kind,
				})
			}
		}),
		requiredToken(lexer.TokenNumber, func(tokens []lexer.Token) {
			if nodify != nil {
				nodify(&ast.BasicLiteral{
					Value: tokens[0].Text,
					Kind:  tokens[0].Kind,
				})
			}
		}),
		requiredToken(lexer.TokenBoolean, func(tokens []lexer.Token) {
			if nodify != nil {
				nodify(&ast.BasicLiteral{
					Value: tokens[0].Text,
					Kind:  tokens[0].Kind,
				})
			}
		}),
		requiredToken(lexer.TokenNull, func(tokens []lexer.Token) {
			if nodify != nil {
				nodify(&ast.BasicLiteral{
					Value: "",
					Kind:  tokens[0].Kind,
				})
			}
		}),
	}, nil)
}

func optionalToken(expected lexer.Kind) parserFn {
	return func(scanner scan.Scanner) (bool, interface{}) {
		next := scanner.Peek()
		if next.Kind == expected {
			scanner.Next()
		}

		return true, nil
	}
}

func ident(n func(string)) parserFn {
	return requiredToken(lexer.TokenIdentifier, func(tokens []lexer.Token) {
		n(tokens[0].Text)
	})
}

func token(expected lexer.Kind) parserFn {
	return requiredToken(expected, nil)
}

func requiredToken(expected lexer.Kind, nodify nodify) parserFn {
	return required(func(scanner scan.Scanner) (bool, interface{}) {
		next := scanner.Next()
		if next.Kind == expected {
			return true, nil
		}

		return false, nil
	}, nodify)
}

func parens(inner parserFn) parserFn {
	return allX(
		optWS,
		requiredToken(lexer.TokenOpenParen, nil),
		optWS,
		inner,
		optWS,
		requiredToken(lexer.TokenCloseParen, nil),
		optWS,
	)
}

func parensCommaSep(p parserFn) parserFn {
	return parens(commaSeparated(p))
}

func commaSeparated(p parserFn) parserFn {
	return allX(
		optWS,
		separatedBy1(commaSeparator, p),
		optWS,
	)
}

var commaSeparator = allX(
	optWS,
	token(lexer.TokenComma),
	optWS,
)

func keyword(t lexer.Kind) parserFn {
	return allX(
		optWS,
		token(t),
		oneOf([]parserFn{eofParser, optWS}, nil),
	)
}

func makeExpressionParser(nodify nodifyExpression) parserFn {
	return func(scanner scan.Scanner) (bool, interface{}) {
		success, expr := parseExpression()(scanner)

		if success {
			nodify(expr)
		}

		return success, expr
	}
}
