package sqlite

import (
	"database/sql/driver"
	"strings"

	"github.com/zmooth/zmooth/internal/platform/filter"
	moderncsqlite "modernc.org/sqlite"
)

// SQLite's LOWER only folds ASCII; search needs the same folding Go applies
// to the query text.
func init() {
	moderncsqlite.MustRegisterDeterministicScalarFunction(filter.CaseFoldFunc, 1, caseFold)
}

func caseFold(_ *moderncsqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}
