// Package filter compiles structured filter descriptions (spec §3, §4.3)
// to SQL WHERE fragments. The compiler is pure: it never touches the
// engine, never validates that a column exists, and never executes SQL.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// specialLabel names one of the sentinel numeric values the compiler
// knows how to exclude.
type specialLabel struct {
	name string
	show func(NumericValue) bool
	// stringLiteral is non-empty for specials compared via
	// CAST(col AS VARCHAR) NOT IN (...); literalExpr is non-empty for
	// specials compared via col != CAST('literalExpr' AS DOUBLE).
	stringLiteral string
	literalExpr   string
}

var specials = []specialLabel{
	{name: "+INF", show: NumericValue.showPosInf, literalExpr: "Infinity"},
	{name: "-INF", show: NumericValue.showNegInf, literalExpr: "-Infinity"},
	{name: "EPS", show: NumericValue.showEPSVal, stringLiteral: "EPS"},
	{name: "NA", show: NumericValue.showNAVal, stringLiteral: "NA"},
	{name: "UNDF", show: NumericValue.showUNDFVal, stringLiteral: "UNDF"},
}

func (n NumericValue) showPosInf() bool  { return n.ShowPosInf }
func (n NumericValue) showNegInf() bool  { return n.ShowNegInf }
func (n NumericValue) showEPSVal() bool  { return n.ShowEPS }
func (n NumericValue) showNAVal() bool   { return n.ShowNA }
func (n NumericValue) showUNDFVal() bool { return n.ShowUNDF }

// QuoteIdent double-quote-quotes a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral single-quote-quotes a SQL string literal, escaping `'`
// as `''`.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// Compile compiles an ordered list of filters into a single WHERE
// fragment (without the "WHERE" keyword) or the empty string if no
// filter contributes a clause.
func Compile(filters []Filter) string {
	var clauses []string
	for _, f := range filters {
		if clause := compileOne(f); clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return strings.Join(clauses, " AND ")
}

func compileOne(f Filter) string {
	switch {
	case f.Value.Text != nil:
		return compileText(f.ColumnName, *f.Value.Text)
	case f.Value.Numeric != nil:
		return compileNumeric(f.ColumnName, *f.Value.Numeric)
	default:
		return ""
	}
}

func compileText(column string, v TextValue) string {
	if len(v.SelectedValues) == 0 {
		return ""
	}
	quoted := make([]string, len(v.SelectedValues))
	for i, val := range v.SelectedValues {
		quoted[i] = quoteLiteral(val)
	}
	return fmt.Sprintf("%s IN (%s)", QuoteIdent(column), strings.Join(quoted, ","))
}

func compileNumeric(column string, v NumericValue) string {
	hiddenSpecials := hiddenSpecialSet(v)
	if len(hiddenSpecials) == 0 && v.Min == nil && v.Max == nil {
		return ""
	}

	col := QuoteIdent(column)
	var parts []string

	var stringLiterals []string
	for _, s := range hiddenSpecials {
		if s.stringLiteral != "" {
			stringLiterals = append(stringLiterals, quoteLiteral(s.stringLiteral))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s != CAST(%s AS DOUBLE)", col, quoteLiteral(s.literalExpr)))
	}
	if len(stringLiterals) > 0 {
		parts = append(parts, fmt.Sprintf("CAST(%s AS VARCHAR) NOT IN (%s)", col, strings.Join(stringLiterals, ",")))
	}

	if v.Min != nil {
		parts = append(parts, fmt.Sprintf("%s >= %s", col, formatNumber(*v.Min)))
	}
	if v.Max != nil {
		parts = append(parts, fmt.Sprintf("%s <= %s", col, formatNumber(*v.Max)))
	}

	conjunction := strings.Join(parts, " AND ")
	if v.Exclude {
		conjunction = "NOT (" + conjunction + ")"
	}
	return "(" + conjunction + ")"
}

func hiddenSpecialSet(v NumericValue) []specialLabel {
	var hidden []specialLabel
	for _, s := range specials {
		if !s.show(v) {
			hidden = append(hidden, s)
		}
	}
	return hidden
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
