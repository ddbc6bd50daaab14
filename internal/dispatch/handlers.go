package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/chrispahm/gdx-viewer/internal/engine"
	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/filter"
	"github.com/chrispahm/gdx-viewer/internal/model"
	"github.com/chrispahm/gdx-viewer/internal/protocol"
	"github.com/chrispahm/gdx-viewer/internal/registry"
)

type handlerFunc func(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error)

var methodTable = map[string]handlerFunc{
	protocol.MethodPing:                  handlePing,
	protocol.MethodOpenDocument:          handleOpenDocument,
	protocol.MethodCloseDocument:         handleCloseDocument,
	protocol.MethodMaterializeSymbol:     handleMaterializeSymbol,
	protocol.MethodCancelMaterialization: handleCancelMaterialization,
	protocol.MethodExecuteQuery:          handleExecuteQuery,
	protocol.MethodGetDomainValues:       handleGetDomainValues,
	protocol.MethodGetFilterOptions:      handleGetFilterOptions,
}

func decodeParams[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		var zero T
		return zero, errs.Classify(errs.Wrap(err, "invalid request params"), errs.KindInvalidInput)
	}
	return v, nil
}

func handlePing(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	return protocol.PingResult{Pong: true}, nil
}

func handleOpenDocument(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	p, err := decodeParams[protocol.OpenDocumentParams](params)
	if err != nil {
		return nil, err
	}
	symbols, err := d.registry.Open(ctx, p.DocumentId, p.Source, p.ForceReload)
	if err != nil {
		return nil, err
	}
	return protocol.OpenDocumentResult{Symbols: symbols}, nil
}

func handleCloseDocument(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	p, err := decodeParams[protocol.CloseDocumentParams](params)
	if err != nil {
		return nil, err
	}
	if err := d.registry.Close(ctx, p.DocumentId); err != nil {
		return nil, err
	}
	return protocol.SuccessResult{Success: true}, nil
}

func handleMaterializeSymbol(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	p, err := decodeParams[protocol.MaterializeSymbolParams](params)
	if err != nil {
		return nil, err
	}

	state, ok := d.registry.Get(p.DocumentId)
	if !ok {
		return nil, registry.NotFoundErr(p.DocumentId)
	}

	if ms, ok := state.Materialized[p.SymbolName]; ok {
		tableName := ms.TableName
		return protocol.MaterializeSymbolResult{
			TableName:     &tableName,
			Columns:       ms.Columns,
			TotalRowCount: ms.TotalRowCount,
			Status:        protocol.StatusMaterialized,
		}, nil
	}

	symbol, ok := findSymbol(state.Symbols, p.SymbolName)
	if !ok {
		return nil, errs.Classify(errs.Newf("unknown symbol %q", p.SymbolName), errs.KindNotFound)
	}

	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = d.pageSize
	}

	preview, err := d.manager.Preview(ctx, state.LocalPath, symbol)
	if err != nil {
		return nil, err
	}

	documentId := p.DocumentId
	if err := d.manager.StartFull(ctx, state.LocalPath, documentId, symbol, d.sink, func(ms model.MaterializedSymbol) {
		d.registry.RecordMaterialized(documentId, symbol.Name, ms)
	}); err != nil {
		return nil, err
	}

	return protocol.MaterializeSymbolResult{
		TableName:       nil,
		Columns:         preview.Columns,
		TotalRowCount:   preview.TotalRowCount,
		Status:          protocol.StatusPreview,
		PreviewRows:     toProtocolRows(preview.Rows),
		PreviewRowCount: len(preview.Rows),
	}, nil
}

func handleCancelMaterialization(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	p, err := decodeParams[protocol.CancelMaterializationParams](params)
	if err != nil {
		return nil, err
	}
	d.manager.Cancel(p.DocumentId)
	return protocol.SuccessResult{Success: true}, nil
}

func handleExecuteQuery(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	p, err := decodeParams[protocol.ExecuteQueryParams](params)
	if err != nil {
		return nil, err
	}
	state, ok := d.registry.Get(p.DocumentId)
	if !ok {
		return nil, registry.NotFoundErr(p.DocumentId)
	}

	sqlText := rewriteSQL(p.SQL, state.LocalPath, string(state.Source))
	res, err := d.adapter.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	return protocol.ExecuteQueryResult{
		Columns:  res.Columns,
		Rows:     toProtocolRows(res.Rows),
		RowCount: len(res.Rows),
	}, nil
}

func handleGetDomainValues(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	p, err := decodeParams[protocol.GetDomainValuesParams](params)
	if err != nil {
		return nil, err
	}
	state, ok := d.registry.Get(p.DocumentId)
	if !ok {
		return nil, registry.NotFoundErr(p.DocumentId)
	}

	dimColumn := fmt.Sprintf("dim_%d", p.DimIndex+1)

	if ms, ok := state.Materialized[p.Symbol]; ok {
		whereClause := filter.Compile(p.DimensionFilters)
		sqlText := fmt.Sprintf(`SELECT DISTINCT %s AS v FROM %s`, filter.QuoteIdent(dimColumn), filter.QuoteIdent(ms.TableName))
		if whereClause != "" {
			sqlText += " WHERE " + whereClause
		}
		sqlText += fmt.Sprintf(" ORDER BY %s", filter.QuoteIdent(dimColumn))
		res, err := d.adapter.Query(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		return protocol.GetDomainValuesResult{Values: extractStringColumn(res.Rows, "v")}, nil
	}

	dimensionFiltersArg := ""
	if len(p.DimensionFilters) > 0 {
		filterJSON, err := json.Marshal(p.DimensionFilters)
		if err != nil {
			return nil, errs.Wrap(err, "failed to encode dimension filters")
		}
		dimensionFiltersArg = fmt.Sprintf(", dimension_filters => %s", quoteSQLLiteral(string(filterJSON)))
	}
	sqlText := fmt.Sprintf("SELECT * FROM gdx_domain_values(%s, %s, %d%s)",
		quoteSQLLiteral(state.LocalPath), quoteSQLLiteral(p.Symbol), p.DimIndex, dimensionFiltersArg)
	res, err := d.adapter.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	return protocol.GetDomainValuesResult{Values: extractFirstColumn(res)}, nil
}

func handleGetFilterOptions(ctx context.Context, d *Dispatcher, params json.RawMessage) (any, error) {
	p, err := decodeParams[protocol.GetFilterOptionsParams](params)
	if err != nil {
		return nil, err
	}
	state, ok := d.registry.Get(p.DocumentId)
	if !ok {
		return nil, registry.NotFoundErr(p.DocumentId)
	}
	ms, ok := state.Materialized[p.SymbolName]
	if !ok {
		return nil, errs.Classify(errs.Newf("symbol %q is not materialized", p.SymbolName), errs.KindNotMaterialized)
	}

	dimColumns := dimensionColumns(ms.Columns)
	options := make(map[string][]string, len(dimColumns))
	for _, col := range dimColumns {
		otherFilters := excludingColumn(p.Filters, col)
		whereClause := filter.Compile(otherFilters)
		sqlText := fmt.Sprintf(`SELECT DISTINCT %s AS v FROM %s`, filter.QuoteIdent(col), filter.QuoteIdent(ms.TableName))
		if whereClause != "" {
			sqlText += " WHERE " + whereClause
		}
		sqlText += fmt.Sprintf(" ORDER BY %s", filter.QuoteIdent(col))

		res, err := d.adapter.Query(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		options[col] = extractStringColumn(res.Rows, "v")
	}
	return protocol.GetFilterOptionsResult{FilterOptions: options}, nil
}

func findSymbol(symbols []model.Symbol, name string) (model.Symbol, bool) {
	for _, s := range symbols {
		if s.Name == name {
			return s, true
		}
	}
	return model.Symbol{}, false
}

func dimensionColumns(columns []string) []string {
	var dims []string
	for _, c := range columns {
		if strings.HasPrefix(c, "dim_") {
			dims = append(dims, c)
		}
	}
	sort.Strings(dims)
	return dims
}

func excludingColumn(filters []filter.Filter, column string) []filter.Filter {
	out := make([]filter.Filter, 0, len(filters))
	for _, f := range filters {
		if f.ColumnName != column {
			out = append(out, f)
		}
	}
	return out
}

func extractStringColumn(rows []engine.Row, key string) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if v, ok := row[key]; ok {
			values = append(values, fmt.Sprintf("%v", v))
		}
	}
	return values
}
