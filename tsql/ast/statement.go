package ast

// Statement represents a single parsed SQL statement.
type Statement interface {
	Mutates() bool
	ReturnsRows() bool
	iStatement()
}
