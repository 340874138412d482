package query

import (
	"fmt"
	"io"
	"strings"

	"github.com/joeandaverde/litedb/internal/storage"
	"github.com/joeandaverde/litedb/tsql/ast"
)

// groupOp partitions its input by the GROUP BY expressions and computes
// one output row per group. Each output row carries the group's first
// input row (so grouped columns remain addressable) plus the computed
// aggregate values. Without GROUP BY all input collapses into a single
// group, which is emitted even when the input is empty.
type groupOp struct {
	input   operator
	groupBy []ast.Expression
	aggs    []*ast.FunctionCall
	ctx     *evalContext

	groups []*row
	pos    int
	ready  bool
}

func (g *groupOp) next() (*row, error) {
	if !g.ready {
		if err := g.materialize(); err != nil {
			return nil, err
		}
		g.ready = true
	}
	if g.pos >= len(g.groups) {
		return nil, io.EOF
	}
	r := g.groups[g.pos]
	g.pos++
	return r, nil
}

type groupState struct {
	rep  *row
	accs []accumulator
}

func (g *groupOp) materialize() error {
	states := make(map[string]*groupState)
	var order []string

	for {
		r, err := g.input.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		g.ctx.row = r

		var key strings.Builder
		for _, e := range g.groupBy {
			v, err := eval(e, g.ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(&key, "%d:%v|", v.Type, v.Data)
		}

		state, ok := states[key.String()]
		if !ok {
			state = &groupState{rep: r, accs: newAccumulators(g.aggs)}
			states[key.String()] = state
			order = append(order, key.String())
		}
		for i, agg := range g.aggs {
			if err := state.accs[i].add(agg, g.ctx); err != nil {
				return err
			}
		}
	}

	if len(order) == 0 && len(g.groupBy) == 0 {
		// Aggregates over no rows still produce a row: COUNT(*) is 0.
		state := &groupState{
			rep:  &row{fields: make([]storage.Field, len(g.ctx.schema))},
			accs: newAccumulators(g.aggs),
		}
		for i := range state.rep.fields {
			state.rep.fields[i] = nullField()
		}
		states[""] = state
		order = append(order, "")
	}

	g.groups = make([]*row, 0, len(order))
	for _, key := range order {
		state := states[key]
		out := &row{
			rowid:      state.rep.rowid,
			fields:     state.rep.fields,
			aggregates: make(map[string]storage.Field, len(g.aggs)),
		}
		for i, agg := range g.aggs {
			out.aggregates[exprKey(agg)] = state.accs[i].result()
		}
		g.groups = append(g.groups, out)
	}
	return nil
}

func newAccumulators(aggs []*ast.FunctionCall) []accumulator {
	accs := make([]accumulator, len(aggs))
	for i, agg := range aggs {
		switch strings.ToUpper(agg.Name) {
		case "COUNT":
			accs[i] = &countAcc{}
		case "SUM":
			accs[i] = &sumAcc{}
		case "AVG":
			accs[i] = &sumAcc{avg: true}
		case "MIN":
			accs[i] = &extremeAcc{min: true}
		case "MAX":
			accs[i] = &extremeAcc{}
		}
	}
	return accs
}

// isAggregate reports whether a function call names a supported
// aggregate.
func isAggregate(f *ast.FunctionCall) bool {
	switch strings.ToUpper(f.Name) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	}
	return false
}

type accumulator interface {
	add(agg *ast.FunctionCall, ctx *evalContext) error
	result() storage.Field
}

// argValue evaluates the aggregate's single argument for the current
// row. COUNT(*) has no argument and is handled by the caller.
func argValue(agg *ast.FunctionCall, ctx *evalContext) (storage.Field, error) {
	if len(agg.Args) != 1 {
		return nullField(), fmt.Errorf("query: %s expects one argument", strings.ToUpper(agg.Name))
	}
	return eval(agg.Args[0], ctx)
}

// countAcc counts rows for COUNT(*) and non-null values for COUNT(x).
type countAcc struct {
	n int64
}

func (a *countAcc) add(agg *ast.FunctionCall, ctx *evalContext) error {
	if agg.Star {
		a.n++
		return nil
	}
	v, err := argValue(agg, ctx)
	if err != nil {
		return err
	}
	if v.Type != storage.Null {
		a.n++
	}
	return nil
}

func (a *countAcc) result() storage.Field {
	return storage.Field{Type: storage.Integer, Data: a.n}
}

// sumAcc sums numeric values, staying integral while every input is an
// integer. With avg set it divides by the non-null count instead.
type sumAcc struct {
	avg     bool
	n       int64
	intSum  int64
	realSum float64
	isInt   bool
	seen    bool
}

func (a *sumAcc) add(agg *ast.FunctionCall, ctx *evalContext) error {
	v, err := argValue(agg, ctx)
	if err != nil {
		return err
	}
	if v.Type == storage.Null {
		return nil
	}
	i, r, isInt := coerceNumeric(v)
	if !a.seen {
		a.seen = true
		a.isInt = true
	}
	if !isInt {
		a.isInt = false
	}
	a.n++
	a.intSum += i
	a.realSum += r
	return nil
}

func (a *sumAcc) result() storage.Field {
	if !a.seen {
		return nullField()
	}
	if a.avg {
		return storage.Field{Type: storage.Real, Data: a.realSum / float64(a.n)}
	}
	if a.isInt {
		return storage.Field{Type: storage.Integer, Data: a.intSum}
	}
	return storage.Field{Type: storage.Real, Data: a.realSum}
}

// extremeAcc tracks MIN or MAX, ignoring nulls.
type extremeAcc struct {
	min  bool
	best storage.Field
	seen bool
}

func (a *extremeAcc) add(agg *ast.FunctionCall, ctx *evalContext) error {
	v, err := argValue(agg, ctx)
	if err != nil {
		return err
	}
	if v.Type == storage.Null {
		return nil
	}
	if !a.seen {
		a.seen = true
		a.best = v
		return nil
	}
	c := storage.CompareFields(v, a.best)
	if (a.min && c < 0) || (!a.min && c > 0) {
		a.best = v
	}
	return nil
}

func (a *extremeAcc) result() storage.Field {
	if !a.seen {
		return nullField()
	}
	return a.best
}
