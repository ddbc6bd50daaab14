package materialize

import (
	"regexp"

	"github.com/chrispahm/gdx-viewer/internal/filter"
	"github.com/chrispahm/gdx-viewer/internal/model"
)

var invalidTableChar = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Sanitize replaces any character outside [A-Za-z0-9_] with "_".
func Sanitize(s string) string {
	return invalidTableChar.ReplaceAllString(s, "_")
}

// TableName derives the materialized table name for (documentId, symbol):
// sanitized(documentId) + "__" + symbol name.
func TableName(documentId model.DocumentId, symbolName string) string {
	return Sanitize(string(documentId)) + "__" + symbolName
}

// QuotedTableName is TableName, double-quote-escaped for use in SQL.
func QuotedTableName(documentId model.DocumentId, symbolName string) string {
	return filter.QuoteIdent(TableName(documentId, symbolName))
}
