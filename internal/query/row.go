package query

import (
	"fmt"
	"strings"

	"github.com/joeandaverde/litedb/internal/storage"
)

// columnRef names one column in an operator's output. The binding is
// the table name or alias it came from, lower-cased. Columns produced
// by projection have an empty binding.
type columnRef struct {
	binding string
	name    string
}

// schema describes the column layout of rows flowing between operators.
type schema []columnRef

// resolve finds the field offset for an identifier. A qualified name
// must match both binding and column. A bare name must match exactly
// one column across all bindings.
func (s schema) resolve(binding string, name string) (int, error) {
	found := -1
	for i, c := range s {
		if !strings.EqualFold(c.name, name) {
			continue
		}
		if binding != "" && !strings.EqualFold(c.binding, binding) {
			continue
		}
		if found >= 0 {
			return 0, fmt.Errorf("%w: %s", ErrAmbiguousColumn, name)
		}
		found = i
	}
	if found < 0 {
		if binding != "" {
			return 0, fmt.Errorf("query: no such column: %s.%s", binding, name)
		}
		return 0, fmt.Errorf("query: no such column: %s", name)
	}
	return found, nil
}

// row is a single tuple in flight. Aggregate results, when present,
// are keyed by the printed form of the originating expression.
type row struct {
	rowid      int64
	fields     []storage.Field
	aggregates map[string]storage.Field
}

func nullField() storage.Field {
	return storage.Field{Type: storage.Null}
}
