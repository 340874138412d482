package backend

import (
	"fmt"
	"strconv"

	"github.com/joeandaverde/litedb/internal/storage"
)

// FormatField renders a field value for text output. Nulls render as
// an empty string, matching the sqlite3 shell's default.
func FormatField(f storage.Field) string {
	switch f.Type {
	case storage.Null:
		return ""
	case storage.Integer:
		return strconv.FormatInt(f.Data.(int64), 10)
	case storage.Real:
		return strconv.FormatFloat(f.Data.(float64), 'g', -1, 64)
	case storage.Text:
		return f.Data.(string)
	default:
		return fmt.Sprintf("%x", f.Data.([]byte))
	}
}
