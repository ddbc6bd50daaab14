// Package protocol defines the WebSocket wire shapes (spec §4.7, §6):
// request/response/event frames and the params/result payloads for
// each RPC method. It depends only on internal/model and
// internal/filter so the Client Library (C9) can share these types
// without linking the embedded engine driver.
package protocol

import (
	"encoding/json"

	"github.com/chrispahm/gdx-viewer/internal/filter"
	"github.com/chrispahm/gdx-viewer/internal/model"
)

// FrameType discriminates the three frame shapes on the wire.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
)

// Frame is the single JSON object carried by every WebSocket text message.
type Frame struct {
	Type      FrameType       `json:"type"`
	RequestId string          `json:"requestId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the sanitized error shape returned in a response frame.
type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// Row is one result row keyed by column name.
type Row map[string]any

// Method names understood by the Request Dispatcher.
const (
	MethodPing                  = "ping"
	MethodOpenDocument          = "openDocument"
	MethodCloseDocument         = "closeDocument"
	MethodMaterializeSymbol     = "materializeSymbol"
	MethodCancelMaterialization = "cancelMaterialization"
	MethodExecuteQuery          = "executeQuery"
	MethodGetDomainValues       = "getDomainValues"
	MethodGetFilterOptions      = "getFilterOptions"
)

type PingResult struct {
	Pong bool `json:"pong"`
}

type OpenDocumentParams struct {
	DocumentId  model.DocumentId `json:"documentId"`
	Source      model.Source     `json:"source"`
	ForceReload bool             `json:"forceReload,omitempty"`
}

type OpenDocumentResult struct {
	Symbols []model.Symbol `json:"symbols"`
}

type CloseDocumentParams struct {
	DocumentId model.DocumentId `json:"documentId"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

type MaterializeSymbolParams struct {
	DocumentId model.DocumentId `json:"documentId"`
	SymbolName string           `json:"symbolName"`
	PageSize   int              `json:"pageSize,omitempty"`
}

// MaterializationStatus distinguishes a synchronous preview response
// from one backed by an already-materialized table.
type MaterializationStatus string

const (
	StatusPreview      MaterializationStatus = "preview"
	StatusMaterialized MaterializationStatus = "materialized"
)

type MaterializeSymbolResult struct {
	TableName       *string               `json:"tableName"`
	Columns         []string              `json:"columns"`
	TotalRowCount   int                   `json:"totalRowCount"`
	Status          MaterializationStatus `json:"status"`
	PreviewRows     []Row                 `json:"previewRows,omitempty"`
	PreviewRowCount int                   `json:"previewRowCount,omitempty"`
}

type CancelMaterializationParams struct {
	DocumentId model.DocumentId `json:"documentId"`
}

type ExecuteQueryParams struct {
	DocumentId model.DocumentId `json:"documentId"`
	SQL        string           `json:"sql"`
}

type ExecuteQueryResult struct {
	Columns  []string `json:"columns"`
	Rows     []Row    `json:"rows"`
	RowCount int      `json:"rowCount"`
}

type GetDomainValuesParams struct {
	DocumentId       model.DocumentId `json:"documentId"`
	Symbol           string           `json:"symbol"`
	DimIndex         int              `json:"dimIndex"`
	DimensionFilters []filter.Filter  `json:"dimensionFilters,omitempty"`
}

type GetDomainValuesResult struct {
	Values []string `json:"values"`
}

type GetFilterOptionsParams struct {
	DocumentId model.DocumentId `json:"documentId"`
	SymbolName string           `json:"symbolName"`
	Filters    []filter.Filter  `json:"filters"`
}

type GetFilterOptionsResult struct {
	FilterOptions map[string][]string `json:"filterOptions"`
}

// Event names emitted by the Materialization Manager (spec §4.4).
const (
	EventMaterializationProgress = "materializationProgress"
	EventMaterializationComplete = "materializationComplete"
	EventMaterializationError    = "materializationError"
)
