package query

import (
	"errors"
	"fmt"
)

var (
	// ErrAmbiguousColumn indicates a bare column name that resolves to
	// more than one table in scope.
	ErrAmbiguousColumn = errors.New("query: ambiguous column reference")

	// ErrNotAggregate indicates a function that is not a known aggregate.
	ErrNotAggregate = errors.New("query: unknown function")
)

// ConstraintError reports a rejected write: a duplicate primary key, a
// null in a NOT NULL column, or a datatype the column cannot hold.
type ConstraintError struct {
	Table  string
	Column string
	Reason string
}

func (e *ConstraintError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("constraint failed: %s.%s: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("constraint failed: %s: %s", e.Table, e.Reason)
}
