package query

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joeandaverde/litedb/internal/metadata"
	"github.com/joeandaverde/litedb/internal/storage"
	"github.com/joeandaverde/litedb/tsql/ast"
)

// Rows streams the result of a SELECT. Next returns io.EOF after the
// final row.
type Rows struct {
	Columns []string
	op      operator
}

// Next returns the field values of the next result row.
func (r *Rows) Next() ([]storage.Field, error) {
	out, err := r.op.next()
	if err != nil {
		return nil, err
	}
	return out.fields, nil
}

type planner struct {
	pager   storage.Pager
	catalog *metadata.Catalog
	log     *logrus.Logger

	// Uncorrelated IN subqueries are materialized once per statement.
	subCache map[*ast.SelectStatement][]storage.Field
}

// Select plans a SELECT statement and returns its result stream. No
// rows are read until the caller starts pulling.
func Select(pager storage.Pager, catalog *metadata.Catalog, log *logrus.Logger, stmt *ast.SelectStatement) (*Rows, error) {
	p := &planner{
		pager:    pager,
		catalog:  catalog,
		log:      log,
		subCache: make(map[*ast.SelectStatement][]storage.Field),
	}
	return p.buildUnion(stmt)
}

// buildUnion builds a select and any UNION chain hanging off it.
// Compound selects nest to the right, so A UNION B UNION C combines B
// and C first.
func (p *planner) buildUnion(stmt *ast.SelectStatement) (*Rows, error) {
	first, err := p.buildSelect(stmt)
	if err != nil {
		return nil, err
	}
	if stmt.Union == nil {
		return first, nil
	}

	second, err := p.buildUnion(stmt.Union)
	if err != nil {
		return nil, err
	}
	if len(second.Columns) != len(first.Columns) {
		return nil, fmt.Errorf("query: UNION selects have %d and %d result columns",
			len(first.Columns), len(second.Columns))
	}
	return &Rows{
		Columns: first.Columns,
		op:      &unionOp{first: first.op, second: second.op, all: stmt.UnionAll},
	}, nil
}

func (p *planner) buildSelect(stmt *ast.SelectStatement) (*Rows, error) {
	var sch schema
	var op operator

	if stmt.From == nil {
		// No FROM clause: evaluate expressions against a single empty row.
		if len(stmt.Joins) > 0 {
			return nil, fmt.Errorf("query: JOIN requires a FROM clause")
		}
		op = &sliceOp{rows: []*row{{}}}
	} else {
		table, err := p.catalog.Table(stmt.From.Name)
		if err != nil {
			return nil, err
		}
		binding := stmt.From.Binding()

		sch = tableSchema(binding, table)
		op, err = p.buildScan(table, binding, stmt.Filter, len(stmt.Joins) == 0)
		if err != nil {
			return nil, err
		}
	}

	for i := range stmt.Joins {
		join := stmt.Joins[i]
		joined, err := p.catalog.Table(join.Table.Name)
		if err != nil {
			return nil, err
		}
		sch = append(sch, tableSchema(join.Table.Binding(), joined)...)

		pager := p.pager
		op = &nestedLoopJoin{
			left: op,
			openRight: func() (operator, error) {
				return newTableScan(pager, joined), nil
			},
			on:         join.On,
			leftJoin:   join.Left,
			rightWidth: len(joined.Columns),
			ctx:        p.newCtx(sch),
		}
	}

	if stmt.Filter != nil {
		op = &filterOp{input: op, expr: stmt.Filter, ctx: p.newCtx(sch)}
	}

	aggs := collectStatementAggregates(stmt)
	if len(aggs) > 0 || len(stmt.GroupBy) > 0 {
		op = &groupOp{input: op, groupBy: stmt.GroupBy, aggs: aggs, ctx: p.newCtx(sch)}
		if stmt.Having != nil {
			op = &filterOp{input: op, expr: stmt.Having, ctx: p.newCtx(sch)}
		}
	}

	if len(stmt.OrderBy) > 0 {
		op = &sortOp{input: op, terms: rewriteOrderBy(stmt), ctx: p.newCtx(sch)}
	}
	if stmt.Limit != nil {
		op = &limitOp{input: op, n: *stmt.Limit}
	}

	exprs, names, err := projection(stmt, sch)
	if err != nil {
		return nil, err
	}
	return &Rows{
		Columns: names,
		op:      &projectOp{input: op, exprs: exprs, ctx: p.newCtx(sch)},
	}, nil
}

// buildScan picks the access path for a table: an index seek when a
// WHERE conjunct pins an index's leading column to a literal, otherwise
// a full scan. Index selection is skipped under joins, where a bare
// column name is not safely attributable to this table.
func (p *planner) buildScan(table *metadata.TableDefinition, binding string, filter ast.Expression, allowIndex bool) (operator, error) {
	if allowIndex && filter != nil {
		scan, err := p.chooseIndex(table, binding, filter)
		if err != nil {
			return nil, err
		}
		if scan != nil {
			return scan, nil
		}
	}
	p.log.WithField("table", table.Name).Debug("full table scan")
	return newTableScan(p.pager, table), nil
}

func (p *planner) chooseIndex(table *metadata.TableDefinition, binding string, filter ast.Expression) (operator, error) {
	indexes, err := p.catalog.Indexes(table.Name)
	if err != nil || len(indexes) == 0 {
		return nil, err
	}

	for _, idx := range indexes {
		var bounds indexBounds
		for _, conjunct := range splitAnd(filter) {
			bin, ok := conjunct.(*ast.BinaryOperation)
			if !ok {
				continue
			}
			op := bin.Operator
			switch op {
			case "=", ">", ">=", "<", "<=":
			default:
				continue
			}
			id, lit := ast.IdentLiteralOperation(bin)
			if id == nil || lit == nil {
				continue
			}
			// A literal on the left flips the comparison: 5 < age
			// is age > 5.
			if _, identLeft := bin.Left.(*ast.Ident); !identLeft {
				op = flipOperator(op)
			}
			qualifier, column := id.Qualifier()
			if qualifier != "" && !strings.EqualFold(qualifier, binding) {
				continue
			}
			if !strings.EqualFold(idx.Columns[0], column) {
				continue
			}
			key, err := literalField(lit)
			if err != nil {
				return nil, err
			}
			if key.Type == storage.Null {
				continue
			}

			switch op {
			case "=":
				bounds.eq = []storage.Field{key}
			case ">":
				if bounds.lower == nil {
					bounds.lower = []storage.Field{key}
					bounds.lowerStrict = true
				}
			case ">=":
				if bounds.lower == nil {
					bounds.lower = []storage.Field{key}
				}
			case "<":
				if bounds.upper == nil {
					bounds.upper = []storage.Field{key}
					bounds.upperStrict = true
				}
			case "<=":
				if bounds.upper == nil {
					bounds.upper = []storage.Field{key}
				}
			}
		}

		if bounds.eq == nil && bounds.lower == nil && bounds.upper == nil {
			continue
		}
		kind := "index seek"
		if bounds.eq == nil {
			kind = "index range scan"
		}
		p.log.WithFields(logrus.Fields{
			"table": table.Name,
			"index": idx.Name,
		}).Debug(kind)
		return newIndexScan(p.pager, table, idx, bounds), nil
	}
	return nil, nil
}

func flipOperator(op string) string {
	switch op {
	case ">":
		return "<"
	case ">=":
		return "<="
	case "<":
		return ">"
	case "<=":
		return ">="
	}
	return op
}

func (p *planner) newCtx(sch schema) *evalContext {
	ctxSchema := append(schema(nil), sch...)
	return &evalContext{schema: ctxSchema, subquery: p.subqueryValues}
}

// subqueryValues runs a single-column subquery to completion and caches
// the result for repeated membership tests.
func (p *planner) subqueryValues(sel *ast.SelectStatement) ([]storage.Field, error) {
	if values, ok := p.subCache[sel]; ok {
		return values, nil
	}

	rows, err := p.buildUnion(sel)
	if err != nil {
		return nil, err
	}
	if len(rows.Columns) != 1 {
		return nil, fmt.Errorf("query: subquery returns %d columns, expected 1", len(rows.Columns))
	}

	var values []storage.Field
	for {
		fields, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		values = append(values, fields[0])
	}
	p.subCache[sel] = values
	return values, nil
}

func tableSchema(binding string, table *metadata.TableDefinition) schema {
	sch := make(schema, len(table.Columns))
	for i, col := range table.Columns {
		sch[i] = columnRef{binding: strings.ToLower(binding), name: col.Name}
	}
	return sch
}

// projection expands * and derives output column names: the alias when
// given, the bare column name for identifiers, the printed expression
// otherwise.
func projection(stmt *ast.SelectStatement, sch schema) ([]ast.Expression, []string, error) {
	var exprs []ast.Expression
	var names []string
	for _, rc := range stmt.Columns {
		if rc.Star {
			for _, c := range sch {
				exprs = append(exprs, &ast.Ident{Value: c.binding + "." + c.name})
				names = append(names, c.name)
			}
			continue
		}

		name := rc.Alias
		if name == "" {
			if id, ok := rc.Expr.(*ast.Ident); ok {
				_, name = id.Qualifier()
			} else {
				name = fmt.Sprintf("%s", rc.Expr)
			}
		}
		exprs = append(exprs, rc.Expr)
		names = append(names, name)
	}
	if len(exprs) == 0 {
		return nil, nil, fmt.Errorf("query: empty select list")
	}
	return exprs, names, nil
}

// rewriteOrderBy resolves ORDER BY references to projection aliases,
// substituting the aliased expression so sorting can happen before
// projection.
func rewriteOrderBy(stmt *ast.SelectStatement) []ast.OrderingTerm {
	aliases := make(map[string]ast.Expression)
	for _, rc := range stmt.Columns {
		if !rc.Star && rc.Alias != "" {
			aliases[strings.ToLower(rc.Alias)] = rc.Expr
		}
	}

	terms := make([]ast.OrderingTerm, len(stmt.OrderBy))
	copy(terms, stmt.OrderBy)
	for i, t := range terms {
		id, ok := t.Expr.(*ast.Ident)
		if !ok {
			continue
		}
		if expr, found := aliases[strings.ToLower(id.Value)]; found {
			terms[i].Expr = expr
		}
	}
	return terms
}

// splitAnd flattens a conjunction into its top-level terms.
func splitAnd(expr ast.Expression) []ast.Expression {
	if bin, ok := expr.(*ast.BinaryOperation); ok && strings.EqualFold(bin.Operator, "AND") {
		return append(splitAnd(bin.Left), splitAnd(bin.Right)...)
	}
	return []ast.Expression{expr}
}

// collectStatementAggregates gathers the distinct aggregate calls in
// the select list, HAVING, and ORDER BY.
func collectStatementAggregates(stmt *ast.SelectStatement) []*ast.FunctionCall {
	var aggs []*ast.FunctionCall
	seen := make(map[string]struct{})

	var walk func(ast.Expression)
	walk = func(expr ast.Expression) {
		switch e := expr.(type) {
		case *ast.FunctionCall:
			if !isAggregate(e) {
				return
			}
			key := exprKey(e)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				aggs = append(aggs, e)
			}
		case *ast.BinaryOperation:
			walk(e.Left)
			walk(e.Right)
		case *ast.UnaryOperation:
			walk(e.Operand)
		case *ast.InExpression:
			walk(e.Needle)
			for _, v := range e.Values {
				walk(v)
			}
		}
	}

	for _, rc := range stmt.Columns {
		if !rc.Star {
			walk(rc.Expr)
		}
	}
	if stmt.Having != nil {
		walk(stmt.Having)
	}
	for _, t := range stmt.OrderBy {
		walk(t.Expr)
	}
	return aggs
}
