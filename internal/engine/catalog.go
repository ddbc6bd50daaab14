package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/model"
)

// ReadSymbols derives a document's symbol catalog via the GDX reader
// extension's gdx_symbols(path) table-valued function (spec §3).
// Wired as a registry.SymbolsFunc.
func (a *Adapter) ReadSymbols(ctx context.Context, localPath string) ([]model.Symbol, error) {
	sqlText := fmt.Sprintf("SELECT * FROM gdx_symbols(%s)", quoteLiteral(localPath))
	res, err := a.Query(ctx, sqlText)
	if err != nil {
		return nil, errs.Wrapf(err, "failed to read symbol catalog for %s", localPath)
	}

	symbols := make([]model.Symbol, 0, len(res.Rows))
	for _, row := range res.Rows {
		symbols = append(symbols, model.Symbol{
			Name:           stringField(row, "name"),
			Type:           model.SymbolType(stringField(row, "type")),
			DimensionCount: intField(row, "dimensionCount", "dimension_count", "dim"),
			RecordCount:    intField(row, "recordCount", "record_count", "records"),
			Description:    stringField(row, "description"),
		})
	}
	return symbols, nil
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func stringField(row Row, keys ...string) string {
	for _, key := range keys {
		if v, ok := row[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func intField(row Row, keys ...string) int {
	for _, key := range keys {
		v, ok := row[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int64:
			return int(n)
		case int32:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}
