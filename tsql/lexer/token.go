package lexer

import "fmt"

// Kind the kind of token
type Kind int

const (
	TokenError Kind = iota

	TokenEOF
	TokenWhiteSpace

	TokenComma
	TokenOpenParen
	TokenCloseParen
	TokenAsterisk

	TokenIdentifier

	TokenSelect
	TokenFrom
	TokenWhere
	TokenAs
	TokenIf
	TokenNot
	TokenExists

	TokenCreate
	TokenDrop
	TokenInsert
	TokenInto
	TokenTable
	TokenIndex
	TokenOn
	TokenValues

	TokenUpdate
	TokenSet
	TokenDelete

	TokenJoin
	TokenLeft
	TokenInner
	TokenOuter

	TokenGroup
	TokenOrder
	TokenBy
	TokenHaving
	TokenAsc
	TokenDesc
	TokenLimit

	TokenUnion
	TokenAll
	TokenIn
	TokenIs

	TokenPrimary
	TokenKey

	TokenEquals
	TokenGt
	TokenLt
	TokenGte
	TokenLte
	TokenNotEq

	TokenAnd
	TokenOr

	TokenPlus
	TokenMinus
	TokenDivide
	TokenModulo

	TokenString
	TokenNumber
	TokenBoolean
	TokenNull
)

// keywords maps the upper-cased text of a word to its token kind.
var keywords = map[string]Kind{
	"SELECT":  TokenSelect,
	"FROM":    TokenFrom,
	"WHERE":   TokenWhere,
	"AS":      TokenAs,
	"IF":      TokenIf,
	"NOT":     TokenNot,
	"EXISTS":  TokenExists,
	"CREATE":  TokenCreate,
	"DROP":    TokenDrop,
	"INSERT":  TokenInsert,
	"INTO":    TokenInto,
	"TABLE":   TokenTable,
	"INDEX":   TokenIndex,
	"ON":      TokenOn,
	"VALUES":  TokenValues,
	"UPDATE":  TokenUpdate,
	"SET":     TokenSet,
	"DELETE":  TokenDelete,
	"JOIN":    TokenJoin,
	"LEFT":    TokenLeft,
	"INNER":   TokenInner,
	"OUTER":   TokenOuter,
	"GROUP":   TokenGroup,
	"ORDER":   TokenOrder,
	"BY":      TokenBy,
	"HAVING":  TokenHaving,
	"ASC":     TokenAsc,
	"DESC":    TokenDesc,
	"LIMIT":   TokenLimit,
	"UNION":   TokenUnion,
	"ALL":     TokenAll,
	"IN":      TokenIn,
	"IS":      TokenIs,
	"PRIMARY": TokenPrimary,
	"KEY":     TokenKey,
	"AND":     TokenAnd,
	"OR":      TokenOr,
	"NULL":    TokenNull,
	"TRUE":    TokenBoolean,
	"FALSE":   TokenBoolean,
}

// Token is an output from the lexer
type Token struct {
	Kind     Kind
	Text     string
	Position int
}

func (t Kind) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "Error"
	case TokenIdentifier:
		return "Ident"
	case TokenString:
		return "String"
	case TokenNumber:
		return "Number"
	case TokenComma:
		return "Comma"
	case TokenAsterisk:
		return "Asterisk"
	case TokenOpenParen:
		return "OpenParen"
	case TokenCloseParen:
		return "CloseParen"
	case TokenEquals:
		return "="
	case TokenBoolean:
		return "Boolean"
	}
	for text, kind := range keywords {
		if kind == t {
			return text
		}
	}
	return fmt.Sprintf("Kind(%d)", int(t))
}

func (i Token) String() string {
	switch i.Kind {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "Error"
	}
	return fmt.Sprintf("[%s]", i.Text)
}
