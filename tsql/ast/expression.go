package ast

import (
	"fmt"
	"strings"

	"github.com/joeandaverde/litedb/tsql/lexer"
)

// Expression represents a SQL expression.
type Expression interface {
	iExpression()
}

// BinaryOperation is an expression with two operands
type BinaryOperation struct {
	Left     Expression
	Right    Expression
	Operator string
}

// UnaryOperation is a prefix operator applied to a single operand.
type UnaryOperation struct {
	Operand  Expression
	Operator string
}

// Ident is a reference to a column, optionally qualified by table or alias.
type Ident struct {
	Value string
}

// Qualifier splits a qualified identifier into its table part and column
// part. The table part is empty for bare column references.
func (i *Ident) Qualifier() (table string, column string) {
	if dot := strings.IndexByte(i.Value, '.'); dot >= 0 {
		return i.Value[:dot], i.Value[dot+1:]
	}
	return "", i.Value
}

// BasicLiteral represents a string, number, boolean, or null value
type BasicLiteral struct {
	Value string
	Kind  lexer.Kind
}

// FunctionCall is an aggregate or scalar function application.
// Star marks the COUNT(*) form.
type FunctionCall struct {
	Name string
	Args []Expression
	Star bool
}

// InExpression tests membership of Needle in either a literal list or
// the single-column result of a subquery.
type InExpression struct {
	Needle Expression
	Not    bool

	// Exactly one of Values and Select is set.
	Values []Expression
	Select *SelectStatement
}

func (*BinaryOperation) iExpression() {}
func (*UnaryOperation) iExpression()  {}
func (*Ident) iExpression()           {}
func (*BasicLiteral) iExpression()    {}
func (*FunctionCall) iExpression()    {}
func (*InExpression) iExpression()    {}

// IdentLiteralOperation returns the identifier and literal operands of a
// binary operation regardless of which side each is on, or nils.
func IdentLiteralOperation(op *BinaryOperation) (*Ident, *BasicLiteral) {
	if leftIdent, rightLiteral := asIdent(op.Left), asLiteral(op.Right); leftIdent != nil && rightLiteral != nil {
		return leftIdent, rightLiteral
	}

	if rightIdent, leftLiteral := asIdent(op.Right), asLiteral(op.Left); rightIdent != nil && leftLiteral != nil {
		return rightIdent, leftLiteral
	}

	return nil, nil
}

func asIdent(e Expression) *Ident {
	if op, ok := e.(*Ident); ok {
		return op
	}

	return nil
}

func asLiteral(e Expression) *BasicLiteral {
	if op, ok := e.(*BasicLiteral); ok {
		return op
	}

	return nil
}

func (o *BinaryOperation) String() string {
	return fmt.Sprintf("(%s %s %s)", o.Left, o.Operator, o.Right)
}

func (o *UnaryOperation) String() string {
	if o.Operator == "NOT" {
		return fmt.Sprintf("(NOT %s)", o.Operand)
	}
	return fmt.Sprintf("(%s%s)", o.Operator, o.Operand)
}

func (i *Ident) String() string {
	return i.Value
}

func (l *BasicLiteral) String() string {
	if l.Kind == lexer.TokenString {
		return "'" + l.Value + "'"
	}
	return l.Value
}

func (f *FunctionCall) String() string {
	if f.Star {
		return fmt.Sprintf("%s(*)", f.Name)
	}
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = fmt.Sprintf("%s", a)
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(args, ", "))
}
