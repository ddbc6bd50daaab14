package dispatch

import (
	"fmt"
	"strings"

	"github.com/chrispahm/gdx-viewer/internal/engine"
	"github.com/chrispahm/gdx-viewer/internal/protocol"
)

// gdxFilePlaceholder is rewritten, along with the document's original
// source string, to the resolved local path before executeQuery runs
// (spec §6 "SQL placeholder"). This is a textual rewrite, not a bound
// parameter.
const gdxFilePlaceholder = "__GDX_FILE__"

// rewriteSQL replaces both the placeholder and the original source
// string with localPath in a single simultaneous pass. A sequential
// replace-then-replace would double-substitute whenever localPath
// itself contains originalSource as a substring (e.g. localPath =
// "/tmp/" + originalSource, the common case for local/file:// sources).
func rewriteSQL(sqlText, localPath, originalSource string) string {
	pairs := []string{gdxFilePlaceholder, localPath}
	if originalSource != "" {
		pairs = append(pairs, originalSource, localPath)
	}
	return strings.NewReplacer(pairs...).Replace(sqlText)
}

func quoteSQLLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func toProtocolRows(rows []engine.Row) []protocol.Row {
	out := make([]protocol.Row, len(rows))
	for i, row := range rows {
		out[i] = protocol.Row(row)
	}
	return out
}

// extractFirstColumn returns the values of a query result's first
// column as strings, used for gdx_domain_values whose single output
// column name is not otherwise known by this package.
func extractFirstColumn(res *engine.Result) []string {
	if len(res.Columns) == 0 {
		return nil
	}
	col := res.Columns[0]
	values := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if v, ok := row[col]; ok {
			values = append(values, fmt.Sprintf("%v", v))
		}
	}
	return values
}
