// Package materialize implements the two-phase materialization
// protocol (spec §4.4): a synchronous preview on the main connection,
// followed by a background full-table build with progress events and
// cancellation, modeled on the teacher's pulse/async.WorkerPool
// graceful-lifecycle pattern but scoped to one job per document
// instead of a persistent queue.
package materialize

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrispahm/gdx-viewer/internal/engine"
	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/logging"
	"github.com/chrispahm/gdx-viewer/internal/model"
)

var log = logging.Named("materialize")

const progressPollInterval = 500 * time.Millisecond

// Conn is the subset of engine.Connection the manager needs. Defined
// here so tests can substitute a fake without a real embedded engine.
type Conn interface {
	Run(ctx context.Context, sqlText string) error
	Query(ctx context.Context, sqlText string) (*engine.Result, error)
	Interrupt()
	Progress() engine.Progress
	Close() error
}

// QueryFunc runs a query on the main connection (used for Preview).
type QueryFunc func(ctx context.Context, sqlText string) (*engine.Result, error)

// OpenBackgroundFunc opens an independent, interruptible connection
// (used for the full materialization phase).
type OpenBackgroundFunc func(ctx context.Context) (Conn, error)

// PreviewResult is the synchronous response for phase 1.
type PreviewResult struct {
	Columns       []string
	Rows          []engine.Row
	TotalRowCount int
}

// ActiveMaterialization tracks one in-flight full materialization so
// it can be cancelled or superseded.
type ActiveMaterialization struct {
	DocumentId model.DocumentId
	SymbolName string

	conn      Conn
	cancelled int32
	done      chan struct{}
}

// Cancel marks the materialization cancelled and interrupts its
// in-flight statement. Safe to call more than once.
func (a *ActiveMaterialization) Cancel() {
	atomic.StoreInt32(&a.cancelled, 1)
	a.conn.Interrupt()
}

func (a *ActiveMaterialization) isCancelled() bool {
	return atomic.LoadInt32(&a.cancelled) == 1
}

// Manager runs the materialization protocol for one engine instance.
// One Manager is shared across all documents; active materializations
// are keyed by documentId since spec §4.4 cancels any materialization
// already active for the same document before starting a new one.
type Manager struct {
	query          QueryFunc
	openBackground OpenBackgroundFunc
	pageSize       int

	mu     sync.Mutex
	active map[model.DocumentId]*ActiveMaterialization
}

// NewManager creates a Manager. pageSize bounds the preview row count.
func NewManager(query QueryFunc, openBackground OpenBackgroundFunc, pageSize int) *Manager {
	return &Manager{
		query:          query,
		openBackground: openBackground,
		pageSize:       pageSize,
		active:         make(map[model.DocumentId]*ActiveMaterialization),
	}
}

// Preview runs phase 1: a synchronous, bounded SELECT on the main
// connection. No table is created.
func (m *Manager) Preview(ctx context.Context, path string, symbol model.Symbol) (*PreviewResult, error) {
	sqlText := fmt.Sprintf("SELECT * FROM read_gdx(%s, %s) LIMIT %d",
		quoteLiteral(path), quoteLiteral(symbol.Name), m.pageSize)
	res, err := m.query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		Columns:       res.Columns,
		Rows:          res.Rows,
		TotalRowCount: symbol.RecordCount,
	}, nil
}

// StartFull launches phase 2 in the background. If a materialization
// is already active for documentId it is cancelled first. sink
// receives the progress/complete/error events; onComplete is invoked
// with the resulting MaterializedSymbol so the caller (the Document
// Registry) can record it — it is never called on cancellation or
// failure.
func (m *Manager) StartFull(
	ctx context.Context,
	path string,
	documentId model.DocumentId,
	symbol model.Symbol,
	sink EventSink,
	onComplete func(model.MaterializedSymbol),
) error {
	m.cancelExisting(documentId)

	conn, err := m.openBackground(ctx)
	if err != nil {
		return err
	}

	active := &ActiveMaterialization{
		DocumentId: documentId,
		SymbolName: symbol.Name,
		conn:       conn,
		done:       make(chan struct{}),
	}
	m.mu.Lock()
	m.active[documentId] = active
	m.mu.Unlock()

	go m.run(ctx, path, documentId, symbol, active, sink, onComplete)
	return nil
}

// Cancel cancels the active materialization for documentId, if any.
func (m *Manager) Cancel(documentId model.DocumentId) {
	m.cancelExisting(documentId)
}

func (m *Manager) cancelExisting(documentId model.DocumentId) {
	m.mu.Lock()
	existing := m.active[documentId]
	m.mu.Unlock()
	if existing != nil {
		existing.Cancel()
	}
}

func (m *Manager) run(
	ctx context.Context,
	path string,
	documentId model.DocumentId,
	symbol model.Symbol,
	active *ActiveMaterialization,
	sink EventSink,
	onComplete func(model.MaterializedSymbol),
) {
	defer func() {
		m.mu.Lock()
		if m.active[documentId] == active {
			delete(m.active, documentId)
		}
		m.mu.Unlock()
		active.conn.Close()
		close(active.done)
	}()

	stopProgress := m.startProgressPoller(documentId, symbol, active, sink)
	defer stopProgress()

	tableName := TableName(documentId, symbol.Name)
	createSQL := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_gdx(%s, %s)`,
		QuotedTableName(documentId, symbol.Name), quoteLiteral(path), quoteLiteral(symbol.Name),
	)

	if err := active.conn.Run(ctx, createSQL); err != nil {
		stopProgress()
		if active.isCancelled() {
			sink.EmitError(ErrorEvent{DocumentId: documentId, SymbolName: symbol.Name, Cancelled: true})
			return
		}
		sink.EmitError(ErrorEvent{
			DocumentId: documentId,
			SymbolName: symbol.Name,
			Cancelled:  false,
			Error:      errs.Sanitize(err.Error()),
		})
		return
	}
	stopProgress()

	if active.isCancelled() {
		sink.EmitError(ErrorEvent{DocumentId: documentId, SymbolName: symbol.Name, Cancelled: true})
		return
	}

	columns, totalRowCount, err := m.describeTable(ctx, active.conn, tableName)
	if err != nil {
		sink.EmitError(ErrorEvent{
			DocumentId: documentId,
			SymbolName: symbol.Name,
			Cancelled:  false,
			Error:      errs.Sanitize(err.Error()),
		})
		return
	}

	result := model.MaterializedSymbol{
		TableName:     tableName,
		Columns:       columns,
		TotalRowCount: totalRowCount,
	}
	onComplete(result)
	sink.EmitComplete(CompleteEvent{
		DocumentId:    documentId,
		SymbolName:    symbol.Name,
		TableName:     tableName,
		Columns:       columns,
		TotalRowCount: totalRowCount,
	})
}

// startProgressPoller emits a materializationProgress event every
// 500ms until the returned stop function is called. The stop function
// is idempotent.
func (m *Manager) startProgressPoller(documentId model.DocumentId, symbol model.Symbol, active *ActiveMaterialization, sink EventSink) func() {
	ticker := time.NewTicker(progressPollInterval)
	stopCh := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				if active.isCancelled() {
					return
				}
				progress := active.conn.Progress()
				percentage := 0.0
				if symbol.RecordCount > 0 {
					percentage = float64(progress.RowsProcessed) / float64(symbol.RecordCount) * 100
					if percentage > 100 {
						percentage = 100
					}
				}
				sink.EmitProgress(ProgressEvent{
					DocumentId:    documentId,
					SymbolName:    symbol.Name,
					Percentage:    percentage,
					RowsProcessed: progress.RowsProcessed,
					TotalRows:     symbol.RecordCount,
				})
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(stopCh) })
	}
}

func (m *Manager) describeTable(ctx context.Context, conn Conn, tableName string) ([]string, int, error) {
	columnsRes, err := conn.Query(ctx, fmt.Sprintf(
		`SELECT column_name FROM information_schema.columns WHERE table_name = %s ORDER BY ordinal_position`,
		quoteLiteral(tableName),
	))
	if err != nil {
		return nil, 0, err
	}
	columns := make([]string, 0, len(columnsRes.Rows))
	for _, row := range columnsRes.Rows {
		if name, ok := row["column_name"].(string); ok {
			columns = append(columns, name)
		}
	}

	countRes, err := conn.Query(ctx, fmt.Sprintf(`SELECT COUNT(*) AS total FROM %s`, quoteIdentTableName(tableName)))
	if err != nil {
		return nil, 0, err
	}
	total := 0
	if len(countRes.Rows) == 1 {
		total = toInt(countRes.Rows[0]["total"])
	}
	return columns, total, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
