package filter

import "encoding/json"

// Value is the tagged union described in spec §9: text or numeric. The
// serialization discriminator is the presence of the "exclude" field —
// only numeric filters carry it — so we parse into a concrete type
// instead of sniffing fields at every call site.
type Value struct {
	Text    *TextValue
	Numeric *NumericValue
}

// TextValue filters a dimension column by an explicit set of values.
// An empty SelectedValues means "no filter on this column".
type TextValue struct {
	SelectedValues []string `json:"selectedValues"`
}

// NumericValue filters an attribute column by range and special-value
// visibility. Per spec §3 a filter that omits a show* field defaults
// that special to visible; since Go's bool zero value is false, the
// struct's own literal zero value does NOT match that default — only
// a NumericValue produced by Filter.UnmarshalJSON does, because it
// pre-seeds the Show* fields before decoding over them.
type NumericValue struct {
	Min            *float64 `json:"min,omitempty"`
	Max            *float64 `json:"max,omitempty"`
	Exclude        bool     `json:"exclude"`
	ShowEPS        bool     `json:"showEPS"`
	ShowNA         bool     `json:"showNA"`
	ShowPosInf     bool     `json:"showPosInf"`
	ShowNegInf     bool     `json:"showNegInf"`
	ShowUNDF       bool     `json:"showUNDF"`
	// ShowAcronyms is carried for wire compatibility with the filter
	// dialog but has no compilation effect; the compiler never reads it.
	ShowAcronyms bool `json:"showAcronyms"`
}

// Filter pairs a column name with its Value.
type Filter struct {
	ColumnName string `json:"columnName"`
	Value      Value  `json:"-"`
}

// UnmarshalJSON implements the tagged-union discriminator: an object
// containing "exclude" is numeric, otherwise text.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var probe struct {
		ColumnName string          `json:"columnName"`
		FilterValue json.RawMessage `json:"filterValue"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	f.ColumnName = probe.ColumnName

	if len(probe.FilterValue) == 0 {
		return nil
	}

	var discriminator struct {
		Exclude *bool `json:"exclude"`
	}
	if err := json.Unmarshal(probe.FilterValue, &discriminator); err != nil {
		return err
	}

	if discriminator.Exclude != nil {
		nv := NumericValue{ShowEPS: true, ShowNA: true, ShowPosInf: true, ShowNegInf: true, ShowUNDF: true}
		if err := json.Unmarshal(probe.FilterValue, &nv); err != nil {
			return err
		}
		f.Value = Value{Numeric: &nv}
		return nil
	}

	var tv TextValue
	if err := json.Unmarshal(probe.FilterValue, &tv); err != nil {
		return err
	}
	f.Value = Value{Text: &tv}
	return nil
}

// MarshalJSON re-emits the tagged value under a "filterValue" key,
// matching the shape UnmarshalJSON expects.
func (f Filter) MarshalJSON() ([]byte, error) {
	out := struct {
		ColumnName  string      `json:"columnName"`
		FilterValue interface{} `json:"filterValue"`
	}{ColumnName: f.ColumnName}

	switch {
	case f.Value.Numeric != nil:
		out.FilterValue = f.Value.Numeric
	case f.Value.Text != nil:
		out.FilterValue = f.Value.Text
	}
	return json.Marshal(out)
}
