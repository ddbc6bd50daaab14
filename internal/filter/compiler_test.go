package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(f float64) *float64 { return &f }

func TestCompile_EmptyList(t *testing.T) {
	assert.Equal(t, "", Compile(nil))
	assert.Equal(t, "", Compile([]Filter{}))
}

func TestCompile_TextFilter(t *testing.T) {
	f := Filter{
		ColumnName: "dim_1",
		Value:      Value{Text: &TextValue{SelectedValues: []string{"a", "b"}}},
	}
	assert.Equal(t, `"dim_1" IN ('a','b')`, Compile([]Filter{f}))
}

func TestCompile_TextFilterEscapesQuote(t *testing.T) {
	f := Filter{
		ColumnName: "dim_1",
		Value:      Value{Text: &TextValue{SelectedValues: []string{"o'brien"}}},
	}
	assert.Equal(t, `"dim_1" IN ('o''brien')`, Compile([]Filter{f}))
}

func TestCompile_TextFilterEmptySelection(t *testing.T) {
	f := Filter{ColumnName: "dim_1", Value: Value{Text: &TextValue{}}}
	assert.Equal(t, "", Compile([]Filter{f}))
}

func TestCompile_NumericAllSpecialsShown_NoRange(t *testing.T) {
	f := Filter{
		ColumnName: "value",
		Value: Value{Numeric: &NumericValue{
			ShowEPS: true, ShowNA: true, ShowPosInf: true, ShowNegInf: true, ShowUNDF: true,
		}},
	}
	assert.Equal(t, "", Compile([]Filter{f}))
}

func TestCompile_NumericMinMaxOnly(t *testing.T) {
	f := Filter{
		ColumnName: "value",
		Value: Value{Numeric: &NumericValue{
			Min: ptr(0), Max: ptr(10),
			ShowEPS: true, ShowNA: true, ShowPosInf: true, ShowNegInf: true, ShowUNDF: true,
		}},
	}
	assert.Equal(t, `("value" >= 0 AND "value" <= 10)`, Compile([]Filter{f}))
}

// TestCompile_NumericExcludeWithHiddenEPS mirrors scenario S6: a
// numeric filter with min/max and exclude, hiding EPS only.
func TestCompile_NumericExcludeWithHiddenEPS(t *testing.T) {
	f := Filter{
		ColumnName: "value",
		Value: Value{Numeric: &NumericValue{
			Min: ptr(0), Max: ptr(10), Exclude: true,
			ShowEPS: false, ShowNA: true, ShowPosInf: true, ShowNegInf: true, ShowUNDF: true,
		}},
	}
	want := `(NOT (CAST("value" AS VARCHAR) NOT IN ('EPS') AND "value" >= 0 AND "value" <= 10))`
	assert.Equal(t, want, Compile([]Filter{f}))
}

func TestCompile_NumericHiddenInfinities(t *testing.T) {
	f := Filter{
		ColumnName: "value",
		Value: Value{Numeric: &NumericValue{
			ShowEPS: true, ShowNA: true, ShowUNDF: true,
			ShowPosInf: false, ShowNegInf: false,
		}},
	}
	want := `("value" != CAST('Infinity' AS DOUBLE) AND "value" != CAST('-Infinity' AS DOUBLE))`
	assert.Equal(t, want, Compile([]Filter{f}))
}

func TestCompile_MultipleFiltersConjoined(t *testing.T) {
	text := Filter{ColumnName: "dim_1", Value: Value{Text: &TextValue{SelectedValues: []string{"a"}}}}
	numeric := Filter{
		ColumnName: "value",
		Value:      Value{Numeric: &NumericValue{Min: ptr(1), ShowEPS: true, ShowNA: true, ShowPosInf: true, ShowNegInf: true, ShowUNDF: true}},
	}
	got := Compile([]Filter{text, numeric})
	assert.Equal(t, `"dim_1" IN ('a') AND ("value" >= 1)`, got)
}

func TestQuoteIdent_EscapesDoubleQuote(t *testing.T) {
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}
