package materialize

import "github.com/chrispahm/gdx-viewer/internal/model"

// ProgressEvent mirrors the materializationProgress event payload.
type ProgressEvent struct {
	DocumentId    model.DocumentId `json:"documentId"`
	SymbolName    string           `json:"symbolName"`
	Percentage    float64          `json:"percentage"`
	RowsProcessed int64            `json:"rowsProcessed"`
	TotalRows     int              `json:"totalRows"`
}

// CompleteEvent mirrors the materializationComplete event payload.
type CompleteEvent struct {
	DocumentId    model.DocumentId `json:"documentId"`
	SymbolName    string           `json:"symbolName"`
	TableName     string           `json:"tableName"`
	Columns       []string         `json:"columns"`
	TotalRowCount int              `json:"totalRowCount"`
}

// ErrorEvent mirrors the materializationError event payload.
type ErrorEvent struct {
	DocumentId model.DocumentId `json:"documentId"`
	SymbolName string           `json:"symbolName"`
	Cancelled  bool             `json:"cancelled"`
	Error      string           `json:"error,omitempty"`
}

// EventSink delivers materialization events to whichever WebSocket is
// currently associated with a document. The Request Dispatcher and RPC
// layer supply the concrete implementation; this package only needs
// the ability to emit.
type EventSink interface {
	EmitProgress(ProgressEvent)
	EmitComplete(CompleteEvent)
	EmitError(ErrorEvent)
}
