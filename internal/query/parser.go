// Package query implements the condition language and its two-stage
// executor: a coarse lookup against the inverted index followed by a
// typed re-validation of every surviving row.
package query

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidQuery is returned when a query produces no valid
	// conditions.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnknownField is returned when a condition references a field
	// absent from the index. Distinct from a query matching zero rows.
	ErrUnknownField = errors.New("unknown field")
)

// Op enumerates the supported condition operators.
type Op uint8

const (
	OpEquals Op = iota
	OpLess
	OpGreater
	OpRange
)

func (op Op) String() string {
	switch op {
	case OpEquals:
		return "="
	case OpLess:
		return "<"
	case OpGreater:
		return ">"
	default:
		return ".."
	}
}

// Condition is one parsed clause: a field, an operator, and either a
// single comparison value or a low/high pair for ranges.
type Condition struct {
	Field string
	Op    Op
	Value string
	Low   string
	High  string
}

// Parse turns a query string into an ordered condition list.
//
// Clauses are joined by the literal token "and", split case-insensitively
// by naive substring match - a field or value containing "and" will
// mis-split. This is a known limitation of the language, kept rather
// than silently fixed.
//
// Each clause is classified by the first delimiter it contains, in fixed
// priority: "<", then ">", then "=", then "..". A range clause must
// split into exactly three non-empty parts (field..low..high); anything
// else drops the clause. A query yielding zero conditions is an error.
func Parse(q string) ([]Condition, error) {
	var conds []Condition
	for _, clause := range splitOnAnd(q) {
		if cond, ok := parseClause(clause); ok {
			conds = append(conds, cond)
		}
	}
	if len(conds) == 0 {
		return nil, ErrInvalidQuery
	}
	return conds, nil
}

// splitOnAnd splits q on every occurrence of "and", case-insensitively.
func splitOnAnd(q string) []string {
	lower := strings.ToLower(q)
	var parts []string
	start := 0
	for {
		i := strings.Index(lower[start:], "and")
		if i < 0 {
			break
		}
		parts = append(parts, q[start:start+i])
		start += i + len("and")
	}
	return append(parts, q[start:])
}

func parseClause(clause string) (Condition, bool) {
	switch {
	case strings.Contains(clause, "<"):
		field, value, _ := strings.Cut(clause, "<")
		return makeSimple(field, OpLess, value)
	case strings.Contains(clause, ">"):
		field, value, _ := strings.Cut(clause, ">")
		return makeSimple(field, OpGreater, value)
	case strings.Contains(clause, "="):
		field, value, _ := strings.Cut(clause, "=")
		return makeSimple(field, OpEquals, value)
	case strings.Contains(clause, ".."):
		parts := strings.Split(clause, "..")
		if len(parts) != 3 {
			return Condition{}, false
		}
		field := strings.TrimSpace(parts[0])
		low := strings.TrimSpace(parts[1])
		high := strings.TrimSpace(parts[2])
		if field == "" || low == "" || high == "" {
			return Condition{}, false
		}
		return Condition{Field: field, Op: OpRange, Low: low, High: high}, true
	default:
		return Condition{}, false
	}
}

func makeSimple(field string, op Op, value string) (Condition, bool) {
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		return Condition{}, false
	}
	return Condition{Field: field, Op: op, Value: value}, true
}
