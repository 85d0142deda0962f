// Package common holds the shared data model for the search engine:
// typed field values, decoded rows, and row identifiers.
package common

import (
	"strconv"
	"strings"
	"time"
)

// RowID identifies a data record by its position in the source file.
// IDs are 1-based spreadsheet row numbers: the header occupies row 1,
// so the first data record gets ID 2.
type RowID uint32

// FirstRowID is the ID assigned to the first data record after the header.
const FirstRowID RowID = 2

// NullValue is the index key under which empty field values are bucketed.
const NullValue = "null"

// TypeKind is the closed set of detected field value types.
type TypeKind uint8

const (
	KindEmpty TypeKind = iota
	KindInteger
	KindFloat
	KindDate
	KindText
)

func (k TypeKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	default:
		return "text"
	}
}

// dateLayouts are tried in order; first match wins.
var dateLayouts = []string{
	"2006-01-02", // yyyy-MM-dd
	"01/02/2006", // MM/dd/yyyy
	"2006/01/02", // yyyy/MM/dd
}

// Value is a tagged variant for one field of a row.
// Raw always holds the lowercase textual form as it was indexed; the
// typed slots are only meaningful for the matching Kind.
type Value struct {
	Kind  TypeKind
	Raw   string
	Int   int64
	Float float64
	Date  time.Time
}

// Detect classifies a lowercase field string into a typed Value.
//
// Detection order is a contract: empty, then integer, then float, then
// the date layouts in declared order, then text. A token that parses as
// an integer never reaches date detection.
func Detect(s string) Value {
	if s == "" {
		return Value{Kind: KindEmpty}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Value{Kind: KindInteger, Raw: s, Int: n}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Value{Kind: KindFloat, Raw: s, Float: f}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Value{Kind: KindDate, Raw: s, Date: t}
		}
	}
	return Value{Kind: KindText, Raw: s}
}

// IndexKey returns the string under which this value is bucketed in the
// inverted index: the raw lowercase form, or "null" when empty.
func (v Value) IndexKey() string {
	if v.Kind == KindEmpty || v.Raw == "" {
		return NullValue
	}
	return v.Raw
}

func (v Value) isNumeric() bool {
	return v.Kind == KindInteger || v.Kind == KindFloat
}

// AsFloat returns the numeric form of an Integer or Float value.
func (v Value) AsFloat() float64 {
	if v.Kind == KindInteger {
		return float64(v.Int)
	}
	return v.Float
}

// Compare orders v against o the type-aware way: numerically when both
// sides are numbers, by calendar when both are dates, and by exact
// string comparison otherwise. Returns -1, 0 or 1.
func (v Value) Compare(o Value) int {
	switch {
	case v.Kind == KindInteger && o.Kind == KindInteger:
		switch {
		case v.Int < o.Int:
			return -1
		case v.Int > o.Int:
			return 1
		}
		return 0
	case v.isNumeric() && o.isNumeric():
		a, b := v.AsFloat(), o.AsFloat()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case v.Kind == KindDate && o.Kind == KindDate:
		return v.Date.Compare(o.Date)
	default:
		return strings.Compare(v.Raw, o.Raw)
	}
}

// Row is one decoded record: field name -> typed value, in the shape of
// the header. Duplicate is set by downstream analysis, never by the core.
type Row struct {
	ID        RowID
	Fields    map[string]Value
	Duplicate bool
}

// Strings flattens the row back to its textual field values in header
// order. Casing is not recoverable; values come back lowercase.
func (r *Row) Strings(header []string) []string {
	out := make([]string, len(header))
	for i, field := range header {
		out[i] = r.Fields[field].Raw
	}
	return out
}
