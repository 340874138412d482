package ast

// TableAlias represents a local name and the table it refers to
type TableAlias struct {
	Name  string
	Alias string
}

// Binding is the name a table is referenced by within a statement.
func (t TableAlias) Binding() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// ResultColumn is one item of a select list: either * or an expression
// with an optional alias.
type ResultColumn struct {
	Star  bool
	Expr  Expression
	Alias string
}

// JoinClause joins an additional table into the from clause.
type JoinClause struct {
	Table TableAlias
	On    Expression
	Left  bool
}

// OrderingTerm is one expression of an ORDER BY clause.
type OrderingTerm struct {
	Expr Expression
	Desc bool
}

// SelectStatement represents an instruction to select/filter rows from
// one or more tables.
type SelectStatement struct {
	From    *TableAlias
	Joins   []JoinClause
	Columns []ResultColumn
	Filter  Expression
	GroupBy []Expression
	Having  Expression
	OrderBy []OrderingTerm
	Limit   *int

	// Compound select. UnionAll keeps duplicates.
	Union    *SelectStatement
	UnionAll bool
}

func (*SelectStatement) iStatement() {}

func (*SelectStatement) Mutates() bool { return false }

func (*SelectStatement) ReturnsRows() bool { return true }
