package materialize

import (
	"strings"

	"github.com/chrispahm/gdx-viewer/internal/filter"
)

// quoteLiteral single-quote-quotes a SQL string literal argument to
// read_gdx(path, symbol), escaping `'` as `''`.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func quoteIdentTableName(tableName string) string {
	return filter.QuoteIdent(tableName)
}
