package filter

import (
	"sort"

	sq "github.com/Masterminds/squirrel"

	"resourcegraph/internal/sqlutil"
)

// Operand counts beyond the field itself.
const (
	arityNone          = 0
	arityOne           = 1
	aritySubExpression = 2
)

type operator struct {
	name  string
	arity int
	// comparison operators may compare against another field, and a missing
	// argument is a comparison to NULL.
	comparison bool
	// symbol is the SQL operator used for field-to-field comparisons.
	symbol string
	// list operators take an array argument.
	list bool
	// pattern operators take a string argument that is not coerced.
	pattern bool
	build   func(d sqlutil.Dialect, col string, arg any) sq.Sqlizer
}

var operators = map[string]*operator{
	"is_null": {name: "is_null", arity: arityNone,
		build: func(_ sqlutil.Dialect, col string, _ any) sq.Sqlizer { return sq.Eq{col: nil} }},
	"is_not_null": {name: "is_not_null", arity: arityNone,
		build: func(_ sqlutil.Dialect, col string, _ any) sq.Sqlizer { return sq.NotEq{col: nil} }},

	"eq": {name: "eq", arity: arityOne, comparison: true, symbol: "=",
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.Eq{col: arg} }},
	"neq": {name: "neq", arity: arityOne, comparison: true, symbol: "<>",
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.NotEq{col: arg} }},
	"gt": {name: "gt", arity: arityOne, comparison: true, symbol: ">",
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.Gt{col: arg} }},
	"gte": {name: "gte", arity: arityOne, comparison: true, symbol: ">=",
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.GtOrEq{col: arg} }},
	"lt": {name: "lt", arity: arityOne, comparison: true, symbol: "<",
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.Lt{col: arg} }},
	"lte": {name: "lte", arity: arityOne, comparison: true, symbol: "<=",
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.LtOrEq{col: arg} }},

	"like": {name: "like", arity: arityOne, pattern: true,
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.Like{col: arg} }},
	"not_like": {name: "not_like", arity: arityOne, pattern: true,
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.NotLike{col: arg} }},
	"ilike": {name: "ilike", arity: arityOne, pattern: true,
		build: func(d sqlutil.Dialect, col string, arg any) sq.Sqlizer { return d.ILike(col, arg, false) }},

	"in": {name: "in", arity: arityOne, list: true,
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.Eq{col: arg} }},
	"not_in": {name: "not_in", arity: arityOne, list: true,
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer { return sq.NotEq{col: arg} }},

	"bitwise_and": {name: "bitwise_and", arity: arityOne,
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer {
			return sq.Expr("("+col+" & ?) <> 0", arg)
		}},
	"bitwise_all": {name: "bitwise_all", arity: arityOne,
		build: func(_ sqlutil.Dialect, col string, arg any) sq.Sqlizer {
			return sq.Expr("("+col+" & ?) = ?", arg, arg)
		}},

	"has": {name: "has", arity: aritySubExpression},
	"any": {name: "any", arity: aritySubExpression},
}

var operatorAliases = map[string]string{
	"==":           "eq",
	"=":            "eq",
	"equals":       "eq",
	"equal_to":     "eq",
	"!=":           "neq",
	"<>":           "neq",
	"ne":           "neq",
	"not_equal_to": "neq",
	">":            "gt",
	"greater_than": "gt",
	">=":           "gte",
	"ge":           "gte",
	"<":            "lt",
	"less_than":    "lt",
	"<=":           "lte",
	"le":           "lte",
	"notin":        "not_in",
	"isnull":       "is_null",
	"isnotnull":    "is_not_null",
}

func lookupOperator(name string) (*operator, bool) {
	if canonical, ok := operatorAliases[name]; ok {
		name = canonical
	}
	op, ok := operators[name]
	return op, ok
}

// Operators returns the canonical operator names.
func Operators() []string {
	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsOperator reports whether name is a known operator or alias.
func IsOperator(name string) bool {
	_, ok := lookupOperator(name)
	return ok
}
