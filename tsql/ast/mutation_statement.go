package ast

// InsertStatement represents an instruction to insert one or more rows
// into a table. Each row in Rows carries expressions in column order.
type InsertStatement struct {
	Table   string
	Columns []string
	Rows    [][]Expression
}

func (*InsertStatement) iStatement() {}

func (*InsertStatement) Mutates() bool { return true }

func (*InsertStatement) ReturnsRows() bool { return false }

// Assignment is a single column = expression pair of an UPDATE.
type Assignment struct {
	Column string
	Value  Expression
}

// UpdateStatement represents an instruction to modify rows in a table.
type UpdateStatement struct {
	Table       string
	Assignments []Assignment
	Filter      Expression
}

func (*UpdateStatement) iStatement() {}

func (*UpdateStatement) Mutates() bool { return true }

func (*UpdateStatement) ReturnsRows() bool { return false }

// DeleteStatement represents an instruction to remove rows from a table.
type DeleteStatement struct {
	Table  string
	Filter Expression
}

func (*DeleteStatement) iStatement() {}

func (*DeleteStatement) Mutates() bool { return true }

func (*DeleteStatement) ReturnsRows() bool { return false }
