package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joeandaverde/litedb/internal/storage"
	"github.com/joeandaverde/litedb/tsql/ast"
	"github.com/joeandaverde/litedb/tsql/lexer"
)

// evalContext supplies everything an expression needs at evaluation
// time: the column layout of the current row, the row itself, and a
// hook for materializing IN (SELECT ...) subqueries. The subquery hook
// is expected to cache results so a filter re-evaluated per row pays
// for the inner query once.
type evalContext struct {
	schema   schema
	row      *row
	subquery func(*ast.SelectStatement) ([]storage.Field, error)
}

// eval computes the value of an expression for the current row.
// Predicates use three-valued logic: a comparison against NULL yields
// NULL, and AND/OR combine unknowns the way SQL requires.
func eval(expr ast.Expression, ctx *evalContext) (storage.Field, error) {
	switch e := expr.(type) {
	case *ast.BasicLiteral:
		return literalField(e)
	case *ast.Ident:
		return evalIdent(e, ctx)
	case *ast.UnaryOperation:
		return evalUnary(e, ctx)
	case *ast.BinaryOperation:
		return evalBinary(e, ctx)
	case *ast.FunctionCall:
		return evalFunction(e, ctx)
	case *ast.InExpression:
		return evalIn(e, ctx)
	}
	return nullField(), fmt.Errorf("query: unsupported expression %T", expr)
}

// literalField converts a parsed literal into a storage value. Numbers
// containing a radix point or exponent become reals, everything else
// an integer.
func literalField(l *ast.BasicLiteral) (storage.Field, error) {
	switch l.Kind {
	case lexer.TokenNull:
		return nullField(), nil
	case lexer.TokenBoolean:
		if strings.EqualFold(l.Value, "true") {
			return storage.Field{Type: storage.Integer, Data: int64(1)}, nil
		}
		return storage.Field{Type: storage.Integer, Data: int64(0)}, nil
	case lexer.TokenString:
		return storage.Field{Type: storage.Text, Data: l.Value}, nil
	case lexer.TokenNumber:
		if strings.ContainsAny(l.Value, ".eE") {
			v, err := strconv.ParseFloat(l.Value, 64)
			if err != nil {
				return nullField(), fmt.Errorf("query: bad numeric literal %q: %w", l.Value, err)
			}
			return storage.Field{Type: storage.Real, Data: v}, nil
		}
		v, err := strconv.ParseInt(l.Value, 10, 64)
		if err != nil {
			return nullField(), fmt.Errorf("query: bad numeric literal %q: %w", l.Value, err)
		}
		return storage.Field{Type: storage.Integer, Data: v}, nil
	}
	return nullField(), fmt.Errorf("query: unsupported literal kind %s", l.Kind)
}

func evalIdent(e *ast.Ident, ctx *evalContext) (storage.Field, error) {
	binding, name := e.Qualifier()
	idx, err := ctx.schema.resolve(binding, name)
	if err != nil {
		if binding == "" && strings.EqualFold(name, "rowid") {
			return storage.Field{Type: storage.Integer, Data: ctx.row.rowid}, nil
		}
		return nullField(), err
	}
	return ctx.row.fields[idx], nil
}

func evalUnary(e *ast.UnaryOperation, ctx *evalContext) (storage.Field, error) {
	operand, err := eval(e.Operand, ctx)
	if err != nil {
		return nullField(), err
	}
	if e.Operator == "NOT" {
		v, unknown := truth(operand)
		if unknown {
			return nullField(), nil
		}
		return boolField(!v), nil
	}
	if e.Operator != "-" {
		return nullField(), fmt.Errorf("query: unsupported unary operator %q", e.Operator)
	}
	switch operand.Type {
	case storage.Null:
		return nullField(), nil
	case storage.Integer:
		return storage.Field{Type: storage.Integer, Data: -operand.Data.(int64)}, nil
	case storage.Real:
		return storage.Field{Type: storage.Real, Data: -operand.Data.(float64)}, nil
	}
	i, r, isInt := coerceNumeric(operand)
	if isInt {
		return storage.Field{Type: storage.Integer, Data: -i}, nil
	}
	return storage.Field{Type: storage.Real, Data: -r}, nil
}

func evalBinary(e *ast.BinaryOperation, ctx *evalContext) (storage.Field, error) {
	op := strings.ToUpper(e.Operator)

	// AND and OR must not evaluate eagerly on both sides before
	// combining; short circuits keep row-at-a-time filters cheap.
	switch op {
	case "AND", "OR":
		return evalLogical(op, e, ctx)
	}

	left, err := eval(e.Left, ctx)
	if err != nil {
		return nullField(), err
	}
	right, err := eval(e.Right, ctx)
	if err != nil {
		return nullField(), err
	}

	switch op {
	case "IS":
		return boolField(nullSafeEqual(left, right)), nil
	case "IS NOT":
		return boolField(!nullSafeEqual(left, right)), nil
	}

	if left.Type == storage.Null || right.Type == storage.Null {
		return nullField(), nil
	}

	switch op {
	case "+", "-", "*", "/", "%":
		return evalArithmetic(op, left, right)
	case "=", "!=", "<>", ">", ">=", "<", "<=":
		c := storage.CompareFields(left, right)
		var result bool
		switch op {
		case "=":
			result = c == 0
		case "!=", "<>":
			result = c != 0
		case ">":
			result = c > 0
		case ">=":
			result = c >= 0
		case "<":
			result = c < 0
		case "<=":
			result = c <= 0
		}
		return boolField(result), nil
	}

	return nullField(), fmt.Errorf("query: unsupported operator %q", e.Operator)
}

func evalLogical(op string, e *ast.BinaryOperation, ctx *evalContext) (storage.Field, error) {
	left, err := eval(e.Left, ctx)
	if err != nil {
		return nullField(), err
	}
	lv, lnull := truth(left)

	if op == "AND" && !lnull && !lv {
		return boolField(false), nil
	}
	if op == "OR" && !lnull && lv {
		return boolField(true), nil
	}

	right, err := eval(e.Right, ctx)
	if err != nil {
		return nullField(), err
	}
	rv, rnull := truth(right)

	if op == "AND" {
		switch {
		case !rnull && !rv:
			return boolField(false), nil
		case lnull || rnull:
			return nullField(), nil
		default:
			return boolField(true), nil
		}
	}

	switch {
	case !rnull && rv:
		return boolField(true), nil
	case lnull || rnull:
		return nullField(), nil
	default:
		return boolField(false), nil
	}
}

func evalArithmetic(op string, left, right storage.Field) (storage.Field, error) {
	li, lr, lInt := coerceNumeric(left)
	ri, rr, rInt := coerceNumeric(right)

	if lInt && rInt {
		switch op {
		case "+":
			return storage.Field{Type: storage.Integer, Data: li + ri}, nil
		case "-":
			return storage.Field{Type: storage.Integer, Data: li - ri}, nil
		case "*":
			return storage.Field{Type: storage.Integer, Data: li * ri}, nil
		case "/":
			if ri == 0 {
				return nullField(), nil
			}
			return storage.Field{Type: storage.Integer, Data: li / ri}, nil
		case "%":
			if ri == 0 {
				return nullField(), nil
			}
			return storage.Field{Type: storage.Integer, Data: li % ri}, nil
		}
	}

	switch op {
	case "+":
		return storage.Field{Type: storage.Real, Data: lr + rr}, nil
	case "-":
		return storage.Field{Type: storage.Real, Data: lr - rr}, nil
	case "*":
		return storage.Field{Type: storage.Real, Data: lr * rr}, nil
	case "/":
		if rr == 0 {
			return nullField(), nil
		}
		return storage.Field{Type: storage.Real, Data: lr / rr}, nil
	case "%":
		li, ri = int64(lr), int64(rr)
		if ri == 0 {
			return nullField(), nil
		}
		return storage.Field{Type: storage.Integer, Data: li % ri}, nil
	}

	return nullField(), fmt.Errorf("query: unsupported operator %q", op)
}

func evalFunction(e *ast.FunctionCall, ctx *evalContext) (storage.Field, error) {
	if ctx.row != nil && ctx.row.aggregates != nil {
		if v, ok := ctx.row.aggregates[exprKey(e)]; ok {
			return v, nil
		}
	}
	return nullField(), fmt.Errorf("%w: %s", ErrNotAggregate, e.Name)
}

// evalIn implements [NOT] IN with SQL null semantics: a null needle is
// unknown, a miss against a list containing null is unknown, and an
// empty list is plain false.
func evalIn(e *ast.InExpression, ctx *evalContext) (storage.Field, error) {
	needle, err := eval(e.Needle, ctx)
	if err != nil {
		return nullField(), err
	}
	if needle.Type == storage.Null {
		return nullField(), nil
	}

	var members []storage.Field
	if e.Select != nil {
		if ctx.subquery == nil {
			return nullField(), fmt.Errorf("query: subquery not supported in this context")
		}
		members, err = ctx.subquery(e.Select)
		if err != nil {
			return nullField(), err
		}
	} else {
		members = make([]storage.Field, 0, len(e.Values))
		for _, v := range e.Values {
			m, err := eval(v, ctx)
			if err != nil {
				return nullField(), err
			}
			members = append(members, m)
		}
	}

	sawNull := false
	for _, m := range members {
		if m.Type == storage.Null {
			sawNull = true
			continue
		}
		if storage.CompareFields(needle, m) == 0 {
			return boolField(!e.Not), nil
		}
	}
	if sawNull {
		return nullField(), nil
	}
	return boolField(e.Not), nil
}

// truth reduces a value to SQL boolean terms, returning the value and
// whether it is unknown (NULL). Text and
// blobs follow numeric coercion, so '0' is false and 'abc' is false.
func truth(f storage.Field) (bool, bool) {
	if f.Type == storage.Null {
		return false, true
	}
	_, r, _ := coerceNumeric(f)
	return r != 0, false
}

func boolField(v bool) storage.Field {
	if v {
		return storage.Field{Type: storage.Integer, Data: int64(1)}
	}
	return storage.Field{Type: storage.Integer, Data: int64(0)}
}

// nullSafeEqual compares for IS / IS NOT, where NULL equals NULL.
func nullSafeEqual(a, b storage.Field) bool {
	if a.Type == storage.Null || b.Type == storage.Null {
		return a.Type == b.Type
	}
	return storage.CompareFields(a, b) == 0
}

// coerceNumeric extracts a numeric view of a field. Text parses as a
// number when it can and degrades to zero when it cannot, matching how
// arithmetic treats non-numeric operands.
func coerceNumeric(f storage.Field) (int64, float64, bool) {
	switch f.Type {
	case storage.Integer:
		v := f.Data.(int64)
		return v, float64(v), true
	case storage.Real:
		v := f.Data.(float64)
		return int64(v), v, false
	case storage.Text:
		s := strings.TrimSpace(f.Data.(string))
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, float64(i), true
		}
		if r, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(r), r, false
		}
	}
	return 0, 0, true
}

// exprKey is the canonical printed form of an expression, used to match
// aggregate references in projections against computed group values.
func exprKey(expr ast.Expression) string {
	return strings.ToUpper(fmt.Sprintf("%s", expr))
}
