// Package model holds the domain types shared across the query server:
// symbols, materialized tables, and document identifiers (spec §3).
package model

// SymbolType enumerates the GDX symbol kinds.
type SymbolType string

const (
	SymbolSet       SymbolType = "set"
	SymbolParameter SymbolType = "parameter"
	SymbolVariable  SymbolType = "variable"
	SymbolEquation  SymbolType = "equation"
	SymbolAlias     SymbolType = "alias"
	SymbolOther     SymbolType = "other"
)

// Symbol describes one named tabular object inside a GDX file, derived
// via gdx_symbols(path).
type Symbol struct {
	Name           string     `json:"name"`
	Type           SymbolType `json:"type"`
	DimensionCount int        `json:"dimensionCount"`
	RecordCount    int        `json:"recordCount"`
	Description    string     `json:"description,omitempty"`
}

// MaterializedSymbol is the result of fully caching one symbol as a
// table inside the embedded engine.
type MaterializedSymbol struct {
	TableName     string   `json:"tableName"`
	Columns       []string `json:"columns"`
	TotalRowCount int      `json:"totalRowCount"`
}

// DocumentId is an opaque client-supplied key. The server never
// interprets it beyond using it as a map key.
type DocumentId string

// Source is a user-visible identifier for a GDX input: a local path,
// a file:// URI, or an http(s):// URL.
type Source string
