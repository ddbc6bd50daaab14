// Package engine wraps the embedded DuckDB analytics engine behind a
// thin contract: open/close, run, query, a background connection that
// can be interrupted and polled for progress, and blob registration
// for sources that arrive as bytes rather than a path (spec §4.1).
package engine

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/logging"
)

var log = logging.Named("engine")

// extensions are loaded, in order, on every Adapter.Initialize. gdxReaderExtension
// names the GDX reader, an external collaborator this package never
// implements; the name is fixed here, and Initialize fails if it cannot
// be installed or loaded.
const (
	excelExtension     = "excel"
	gdxReaderExtension = "gdx_reader"
)

// maxEngineConns bounds the pool, not correctness: every connection
// pulled from the one *sql.DB below shares the same underlying
// embedded instance regardless of pool size (true for the default
// in-memory database too), so the cap only limits how many
// connections — one dispatcher connection plus one per concurrently
// materializing document — may run at once. It must stay above 1: a
// cap of 1 would serialize BackgroundConnection behind the main
// connection for the full duration of every materialization.
const maxEngineConns = 8

// Row is one result row keyed by column name, matching the ordered-map
// shape spec §4.1 requires of query results.
type Row map[string]any

// Result is the shape returned by Query: ordered column names plus rows.
type Result struct {
	Columns []string
	Rows    []Row
}

// Adapter owns the main engine connection used by the Request
// Dispatcher (C6). Background work (materialization) opens its own
// Connection via BackgroundConnection so it is never serialized behind
// the dispatcher's FIFO queue.
type Adapter struct {
	dbPath  string
	tempDir string
	db      *sql.DB
}

// Open creates an Adapter and runs Initialize. dbPath is empty for an
// in-memory database.
func Open(dbPath string) (*Adapter, error) {
	tempDir, err := os.MkdirTemp("", "gdx-viewer-blob-*")
	if err != nil {
		return nil, errs.Wrap(err, "failed to create temp directory for blob staging")
	}
	a := &Adapter{dbPath: dbPath, tempDir: tempDir}
	if err := a.Initialize(); err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	return a, nil
}

// NewAdapterWithDB wraps an already-open *sql.DB as an Adapter without
// running the extension-loading steps in Initialize. This is the seam
// go-sqlmock-based tests use to simulate a fatal driver error without
// a real embedded engine (see internal/dispatch's crash-recovery tests).
func NewAdapterWithDB(db *sql.DB, tempDir string) *Adapter {
	return &Adapter{db: db, tempDir: tempDir}
}

// Initialize opens the database file (or in-memory database), installs
// and loads the required extensions, and runs a warmup statement. It
// is called once by Open and again by the dispatcher's crash-recovery
// path after Dispose.
func (a *Adapter) Initialize() error {
	if a.tempDir != "" {
		if _, err := os.Stat(a.tempDir); os.IsNotExist(err) {
			if err := os.MkdirAll(a.tempDir, 0o700); err != nil {
				return errs.Wrap(err, "failed to recreate blob staging directory")
			}
		}
	}

	dsn := a.dbPath
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return errs.Wrap(err, "failed to open embedded engine")
	}
	db.SetMaxOpenConns(maxEngineConns)

	for _, stmt := range []string{
		"INSTALL " + excelExtension,
		"LOAD " + excelExtension,
		"INSTALL " + gdxReaderExtension,
		"LOAD " + gdxReaderExtension,
		"SELECT 1",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return errs.Wrapf(err, "engine initialization step failed: %s", stmt)
		}
	}

	a.db = db
	log.Debugw("engine initialized", "dbPath", a.dbPath)
	return nil
}

// Run executes a statement without materializing rows.
func (a *Adapter) Run(ctx context.Context, sqlText string) error {
	if _, err := a.db.ExecContext(ctx, sqlText); err != nil {
		return classify(err)
	}
	return nil
}

// Query executes sqlText and returns all rows as ordered maps.
func (a *Adapter) Query(ctx context.Context, sqlText string) (*Result, error) {
	rows, err := a.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// BackgroundConnection returns an independent connection for long
// running materialization work so it is never queued behind the main
// dispatcher.
func (a *Adapter) BackgroundConnection(ctx context.Context) (*Connection, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &Connection{conn: conn}, nil
}

// RegisterBlob stages bytes as a file under the adapter's private temp
// directory and returns the path, since DuckDB's database/sql surface
// has no true in-process blob registration. name is only used to
// derive a readable-but-unique filename.
func (a *Adapter) RegisterBlob(name string, data []byte) (string, error) {
	fileName := uuid.NewString() + "-" + filepath.Base(name)
	path := filepath.Join(a.tempDir, fileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", errs.Wrapf(err, "failed to stage blob %s", name)
	}
	return path, nil
}

// Dispose closes the main connection and removes any persistent
// database files (including write-ahead logs) and the blob temp dir.
func (a *Adapter) Dispose() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = errs.Wrap(err, "failed to close embedded engine")
		}
	}
	if a.tempDir != "" {
		os.RemoveAll(a.tempDir)
	}
	if a.dbPath != "" {
		for _, suffix := range []string{"", ".wal"} {
			os.Remove(a.dbPath + suffix)
		}
	}
	return firstErr
}

func scanRows(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(err, "failed to read result columns")
	}

	res := &Result{Columns: columns}
	values := make([]any, len(columns))
	scanDest := make([]any, len(columns))
	for i := range values {
		scanDest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return nil, errs.Wrap(err, "failed to scan result row")
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = coerceValue(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// coerceValue narrows 64-bit integers that exceed the safely
// representable range for an IEEE 754 double (2^53) to float64, per
// spec §4.1; smaller integers and all other types pass through.
func coerceValue(v any) any {
	const maxSafeInteger = 1 << 53
	switch n := v.(type) {
	case int64:
		if n > maxSafeInteger || n < -maxSafeInteger {
			return float64(n)
		}
		return n
	default:
		return v
	}
}
