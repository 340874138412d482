package ast

// ColumnDefinition represents a specification for a column in a table
type ColumnDefinition struct {
	Name       string
	Type       string
	PrimaryKey bool
	NotNull    bool
}

// CreateTableStatement represents an instruction to create a table
type CreateTableStatement struct {
	TableName   string
	IfNotExists bool
	Columns     []ColumnDefinition
	RawText     string
}

func (*CreateTableStatement) iStatement() {}

func (*CreateTableStatement) Mutates() bool { return true }

func (*CreateTableStatement) ReturnsRows() bool { return false }

// CreateIndexStatement represents an instruction to create an index over
// one or more columns of a table.
type CreateIndexStatement struct {
	IndexName   string
	TableName   string
	IfNotExists bool
	Columns     []string
	RawText     string
}

func (*CreateIndexStatement) iStatement() {}

func (*CreateIndexStatement) Mutates() bool { return true }

func (*CreateIndexStatement) ReturnsRows() bool { return false }

// DropTableStatement removes a table, its indexes, and their btrees.
type DropTableStatement struct {
	TableName string
	IfExists  bool
}

func (*DropTableStatement) iStatement() {}

func (*DropTableStatement) Mutates() bool { return true }

func (*DropTableStatement) ReturnsRows() bool { return false }

// DropIndexStatement removes an index and its btree.
type DropIndexStatement struct {
	IndexName string
	IfExists  bool
}

func (*DropIndexStatement) iStatement() {}

func (*DropIndexStatement) Mutates() bool { return true }

func (*DropIndexStatement) ReturnsRows() bool { return false }
