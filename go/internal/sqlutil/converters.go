package sqlutil

import (
	"database/sql"
)

// NullString maps an empty string to SQL NULL.
func NullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: val, Valid: true}
}
