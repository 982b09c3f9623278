// Package sqlutil provides SQL dialect helpers shared by the planner and the store.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteDoubleIdentifier quotes an identifier the ANSI way, as Postgres expects.
func QuoteDoubleIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}
