package hostclient

import (
	"context"

	"github.com/chrispahm/gdx-viewer/internal/filter"
	"github.com/chrispahm/gdx-viewer/internal/model"
	"github.com/chrispahm/gdx-viewer/internal/protocol"
)

// Ping round-trips the connection liveness check.
func (c *Client) Ping(ctx context.Context) error {
	var result protocol.PingResult
	return c.Call(ctx, protocol.MethodPing, struct{}{}, &result)
}

// OpenDocument resolves source and catalogs its symbols.
func (c *Client) OpenDocument(ctx context.Context, documentId model.DocumentId, source model.Source, forceReload bool) ([]model.Symbol, error) {
	var result protocol.OpenDocumentResult
	err := c.Call(ctx, protocol.MethodOpenDocument, protocol.OpenDocumentParams{
		DocumentId:  documentId,
		Source:      source,
		ForceReload: forceReload,
	}, &result)
	return result.Symbols, err
}

// CloseDocument releases a previously opened document.
func (c *Client) CloseDocument(ctx context.Context, documentId model.DocumentId) error {
	var result protocol.SuccessResult
	return c.Call(ctx, protocol.MethodCloseDocument, protocol.CloseDocumentParams{DocumentId: documentId}, &result)
}

// MaterializeSymbol previews or returns the already-materialized table
// for symbolName, starting background materialization if needed.
func (c *Client) MaterializeSymbol(ctx context.Context, documentId model.DocumentId, symbolName string, pageSize int) (*protocol.MaterializeSymbolResult, error) {
	var result protocol.MaterializeSymbolResult
	err := c.Call(ctx, protocol.MethodMaterializeSymbol, protocol.MaterializeSymbolParams{
		DocumentId: documentId,
		SymbolName: symbolName,
		PageSize:   pageSize,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelMaterialization cancels an in-flight background materialization.
func (c *Client) CancelMaterialization(ctx context.Context, documentId model.DocumentId) error {
	var result protocol.SuccessResult
	return c.Call(ctx, protocol.MethodCancelMaterialization, protocol.CancelMaterializationParams{DocumentId: documentId}, &result)
}

// ExecuteQuery runs sql on the server's main connection for documentId,
// after the server rewrites the file placeholder and the document's
// source string to its local path. The statement is not restricted to
// reads or to materialized tables.
func (c *Client) ExecuteQuery(ctx context.Context, documentId model.DocumentId, sql string) (*protocol.ExecuteQueryResult, error) {
	var result protocol.ExecuteQueryResult
	err := c.Call(ctx, protocol.MethodExecuteQuery, protocol.ExecuteQueryParams{DocumentId: documentId, SQL: sql}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetDomainValues returns the distinct values of one dimension column,
// optionally narrowed by already-chosen filters on other dimensions.
func (c *Client) GetDomainValues(ctx context.Context, documentId model.DocumentId, symbol string, dimIndex int, dimensionFilters []filter.Filter) ([]string, error) {
	var result protocol.GetDomainValuesResult
	err := c.Call(ctx, protocol.MethodGetDomainValues, protocol.GetDomainValuesParams{
		DocumentId:       documentId,
		Symbol:           symbol,
		DimIndex:         dimIndex,
		DimensionFilters: dimensionFilters,
	}, &result)
	return result.Values, err
}

// GetFilterOptions returns, for every dimension column of the
// materialized symbol, the values still reachable under the filters on
// the other columns; a column's own filter is not applied to it.
func (c *Client) GetFilterOptions(ctx context.Context, documentId model.DocumentId, symbolName string, filters []filter.Filter) (map[string][]string, error) {
	var result protocol.GetFilterOptionsResult
	err := c.Call(ctx, protocol.MethodGetFilterOptions, protocol.GetFilterOptionsParams{
		DocumentId: documentId,
		SymbolName: symbolName,
		Filters:    filters,
	}, &result)
	return result.FilterOptions, err
}
