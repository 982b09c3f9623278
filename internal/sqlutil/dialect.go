package sqlutil

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"resourcegraph/internal/sqltype"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string
	// Quote quotes a single identifier.
	Quote func(string) string
	// Placeholders is the bind variable style handed to squirrel.
	Placeholders sq.PlaceholderFormat
	// NativeILike is set when the database has a case-insensitive LIKE operator.
	NativeILike bool
	// Returning is set when INSERT ... RETURNING is used to read generated keys.
	Returning bool
}

var (
	MySQL = Dialect{
		Name:         "mysql",
		Quote:        QuoteIdentifier,
		Placeholders: sq.Question,
	}
	Postgres = Dialect{
		Name:         "pgx",
		Quote:        QuoteDoubleIdentifier,
		Placeholders: sq.Dollar,
		NativeILike:  true,
		Returning:    true,
	}
	SQLite = Dialect{
		Name:         "sqlite",
		Quote:        QuoteIdentifier,
		Placeholders: sq.Question,
	}
)

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver %q (expected mysql, postgres or sqlite)", driver)
}

// Column returns alias.column with both parts quoted.
func (d Dialect) Column(alias, column string) string {
	if alias == "" {
		return d.Quote(column)
	}
	return d.Quote(alias) + "." + d.Quote(column)
}

// Table returns "table AS alias", or just the quoted table when the alias
// matches the table name.
func (d Dialect) Table(table, alias string) string {
	if alias == "" || alias == table {
		return d.Quote(table)
	}
	return d.Quote(table) + " AS " + d.Quote(alias)
}

// Now returns the SQL expression for a now marker.
func (d Dialect) Now(marker sqltype.NowMarker) string {
	switch marker {
	case sqltype.CurrentDate:
		return "CURRENT_DATE"
	case sqltype.LocalTimestamp:
		if d.Name == SQLite.Name {
			return "DATETIME('now', 'localtime')"
		}
		return "LOCALTIMESTAMP"
	default:
		return "CURRENT_TIMESTAMP"
	}
}

// ILike builds a case-insensitive LIKE predicate for a quoted column.
func (d Dialect) ILike(column string, pattern any, negate bool) sq.Sqlizer {
	not := ""
	if negate {
		not = "NOT "
	}
	if d.NativeILike {
		return sq.Expr(column+" "+not+"ILIKE ?", pattern)
	}
	return sq.Expr("LOWER("+column+") "+not+"LIKE LOWER(?)", pattern)
}
