package engine

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/chrispahm/gdx-viewer/internal/errs"
)

// Connection is an independent engine connection returned by
// Adapter.BackgroundConnection. Its statements may be interrupted
// mid-flight and polled for progress, unlike the serialized main
// connection the dispatcher uses.
type Connection struct {
	conn *sql.Conn

	mu           sync.Mutex
	cancelRun    context.CancelFunc
	rowsScanned  int64
	interrupted  int32
}

// Run executes a statement on this connection. The statement can be
// interrupted by a concurrent call to Interrupt.
func (c *Connection) Run(ctx context.Context, sqlText string) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelRun = cancel
	c.mu.Unlock()
	defer cancel()

	_, err := c.conn.ExecContext(runCtx, sqlText)
	if err != nil {
		if atomic.LoadInt32(&c.interrupted) == 1 {
			return errs.Classify(errs.New("materialization cancelled"), errs.KindCancelled)
		}
		return classify(err)
	}
	return nil
}

// Query executes sqlText on this connection and returns all rows.
func (c *Connection) Query(ctx context.Context, sqlText string) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelRun = cancel
	c.mu.Unlock()
	defer cancel()

	rows, err := c.conn.QueryContext(runCtx, sqlText)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	res, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	atomic.StoreInt64(&c.rowsScanned, int64(len(res.Rows)))
	return res, nil
}

// Interrupt cancels the statement currently running on this
// connection, if any. Safe to call with no statement in flight.
func (c *Connection) Interrupt() {
	atomic.StoreInt32(&c.interrupted, 1)
	c.mu.Lock()
	cancel := c.cancelRun
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Progress reports how many rows have been scanned by the most recent
// Query on this connection. Percentage is not reported: DuckDB's
// public surface gives no total-row estimate ahead of completion.
type Progress struct {
	RowsProcessed int64
}

func (c *Connection) Progress() Progress {
	return Progress{RowsProcessed: atomic.LoadInt64(&c.rowsScanned)}
}

// Close releases the underlying *sql.Conn back to the pool.
func (c *Connection) Close() error {
	return c.conn.Close()
}
