// Package registry implements the Document Registry (spec §4.5): the
// per-documentId state map, plus the force-reload path that tears down
// the whole embedded engine because the engine caches GDX file state
// internally with no reliable per-file invalidation.
package registry

import (
	"context"
	"sync"

	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/logging"
	"github.com/chrispahm/gdx-viewer/internal/model"
)

var log = logging.Named("registry")

// DocumentState is the registry's record for one open document.
type DocumentState struct {
	Source       model.Source
	LocalPath    string
	Symbols      []model.Symbol
	Materialized map[string]model.MaterializedSymbol
}

// ResolveFunc maps a Source to a local path (backed by internal/source.Resolver).
type ResolveFunc func(ctx context.Context, source model.Source) (string, error)

// SymbolsFunc reads the symbol catalog of a resolved path (gdx_symbols(path)).
type SymbolsFunc func(ctx context.Context, localPath string) ([]model.Symbol, error)

// DropTableFunc drops one materialized table.
type DropTableFunc func(ctx context.Context, tableName string) error

// CheckpointFunc runs a best-effort CHECKPOINT to reclaim disk.
type CheckpointFunc func(ctx context.Context) error

// CancelMaterializationFunc cancels any active materialization for a document.
type CancelMaterializationFunc func(documentId model.DocumentId)

// ResetEngineFunc disposes and re-initializes the whole embedded engine.
type ResetEngineFunc func(ctx context.Context) error

// Registry owns DocumentStates keyed by documentId.
type Registry struct {
	resolve               ResolveFunc
	readSymbols           SymbolsFunc
	dropTable             DropTableFunc
	checkpoint            CheckpointFunc
	cancelMaterialization CancelMaterializationFunc
	resetEngine           ResetEngineFunc

	mu   sync.RWMutex
	docs map[model.DocumentId]*DocumentState
}

// New creates a Registry wired to the collaborators it needs from the
// Engine Adapter, Source Resolver, and Materialization Manager.
func New(
	resolve ResolveFunc,
	readSymbols SymbolsFunc,
	dropTable DropTableFunc,
	checkpoint CheckpointFunc,
	cancelMaterialization CancelMaterializationFunc,
	resetEngine ResetEngineFunc,
) *Registry {
	return &Registry{
		resolve:               resolve,
		readSymbols:           readSymbols,
		dropTable:             dropTable,
		checkpoint:            checkpoint,
		cancelMaterialization: cancelMaterialization,
		resetEngine:           resetEngine,
		docs:                  make(map[model.DocumentId]*DocumentState),
	}
}

// Open opens documentId, returning its symbol catalog. An existing,
// non-force-reload open returns the cached catalog. forceReload
// cancels this document's materialization, drops its tables, then
// resets the whole engine and re-resolves every open document.
func (r *Registry) Open(ctx context.Context, documentId model.DocumentId, source model.Source, forceReload bool) ([]model.Symbol, error) {
	r.mu.Lock()
	existing, ok := r.docs[documentId]
	r.mu.Unlock()

	if ok && !forceReload {
		return existing.Symbols, nil
	}

	if ok && forceReload {
		return r.forceReload(ctx, documentId)
	}

	localPath, err := r.resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	symbols, err := r.readSymbols(ctx, localPath)
	if err != nil {
		return nil, err
	}

	state := &DocumentState{
		Source:       source,
		LocalPath:    localPath,
		Symbols:      symbols,
		Materialized: make(map[string]model.MaterializedSymbol),
	}
	r.mu.Lock()
	r.docs[documentId] = state
	r.mu.Unlock()
	return symbols, nil
}

func (r *Registry) forceReload(ctx context.Context, documentId model.DocumentId) ([]model.Symbol, error) {
	r.cancelMaterialization(documentId)
	r.dropDocumentTables(ctx, documentId)

	log.Infow("force-reload triggers global engine reset", "documentId", documentId)
	if err := r.resetEngine(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	documentIds := make([]model.DocumentId, 0, len(r.docs))
	sources := make(map[model.DocumentId]model.Source, len(r.docs))
	for id, state := range r.docs {
		documentIds = append(documentIds, id)
		sources[id] = state.Source
	}
	r.mu.RUnlock()

	var result []model.Symbol
	for _, id := range documentIds {
		localPath, err := r.resolve(ctx, sources[id])
		if err != nil {
			return nil, err
		}
		symbols, err := r.readSymbols(ctx, localPath)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.docs[id] = &DocumentState{
			Source:       sources[id],
			LocalPath:    localPath,
			Symbols:      symbols,
			Materialized: make(map[string]model.MaterializedSymbol),
		}
		r.mu.Unlock()
		if id == documentId {
			result = symbols
		}
	}
	return result, nil
}

// Close cancels the document's materialization, drops its tables,
// runs a best-effort CHECKPOINT, and removes it from the registry.
func (r *Registry) Close(ctx context.Context, documentId model.DocumentId) error {
	r.cancelMaterialization(documentId)
	r.dropDocumentTables(ctx, documentId)

	if err := r.checkpoint(ctx); err != nil {
		log.Warnw("checkpoint after close failed", "documentId", documentId, "error", err)
	}

	r.mu.Lock()
	delete(r.docs, documentId)
	r.mu.Unlock()
	return nil
}

func (r *Registry) dropDocumentTables(ctx context.Context, documentId model.DocumentId) {
	r.mu.RLock()
	state, ok := r.docs[documentId]
	r.mu.RUnlock()
	if !ok {
		return
	}
	for _, ms := range state.Materialized {
		if err := r.dropTable(ctx, ms.TableName); err != nil {
			log.Warnw("failed to drop materialized table", "table", ms.TableName, "error", err)
		}
	}
	r.mu.Lock()
	state.Materialized = make(map[string]model.MaterializedSymbol)
	r.mu.Unlock()
}

// Get returns the DocumentState for documentId.
func (r *Registry) Get(documentId model.DocumentId) (*DocumentState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.docs[documentId]
	return state, ok
}

// IsMaterialized reports whether symbolName has a materialized table
// for documentId.
func (r *Registry) IsMaterialized(documentId model.DocumentId, symbolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.docs[documentId]
	if !ok {
		return false
	}
	_, ok = state.Materialized[symbolName]
	return ok
}

// ColumnsOf returns the materialized column list for (documentId, symbolName).
func (r *Registry) ColumnsOf(documentId model.DocumentId, symbolName string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.docs[documentId]
	if !ok {
		return nil, false
	}
	ms, ok := state.Materialized[symbolName]
	if !ok {
		return nil, false
	}
	return ms.Columns, true
}

// TableNameOf returns the materialized table name for (documentId, symbolName).
func (r *Registry) TableNameOf(documentId model.DocumentId, symbolName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.docs[documentId]
	if !ok {
		return "", false
	}
	ms, ok := state.Materialized[symbolName]
	if !ok {
		return "", false
	}
	return ms.TableName, true
}

// RecordMaterialized stores the MaterializedSymbol produced by the
// Materialization Manager's completion callback.
func (r *Registry) RecordMaterialized(documentId model.DocumentId, symbolName string, ms model.MaterializedSymbol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.docs[documentId]
	if !ok {
		return
	}
	state.Materialized[symbolName] = ms
}

// ClearAllMaterialized drops the materialized-table bookkeeping for
// every open document without issuing DROP TABLE statements, since the
// tables are already gone after a crash-recovery engine reset (spec §4.6).
func (r *Registry) ClearAllMaterialized() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, state := range r.docs {
		state.Materialized = make(map[string]model.MaterializedSymbol)
	}
}

// NotFoundErr builds the NotFound error for an unknown documentId.
func NotFoundErr(documentId model.DocumentId) error {
	return errs.Classify(errs.Newf("no open document with id %q", documentId), errs.KindNotFound)
}
