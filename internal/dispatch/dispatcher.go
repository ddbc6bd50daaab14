// Package dispatch implements the Request Dispatcher (spec §4.6): a
// FIFO operation queue that is the sole gateway to the embedded
// engine's main connection, modeled on the teacher's
// server.QNTXServer.Run() hub loop. Background materialization is
// deliberately outside this queue — it runs on its own connection.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/chrispahm/gdx-viewer/internal/engine"
	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/logging"
	"github.com/chrispahm/gdx-viewer/internal/materialize"
	"github.com/chrispahm/gdx-viewer/internal/registry"
	"github.com/chrispahm/gdx-viewer/internal/source"
)

var log = logging.Named("dispatch")

type job struct {
	ctx      context.Context
	method   string
	params   json.RawMessage
	respond  chan jobResult
}

type jobResult struct {
	result any
	err    error
}

// Dispatcher serializes every method call onto a single goroutine so
// at most one handler is in flight on the main engine connection.
type Dispatcher struct {
	adapter  *engine.Adapter
	registry *registry.Registry
	manager  *materialize.Manager
	resolver *source.Resolver
	sink     materialize.EventSink

	pageSize int
	queue    chan job

	disposeEngine    func() error
	initializeEngine func() error
}

// Deps bundles the Dispatcher's collaborators, already wired to a
// shared Adapter instance (the dispatcher needs this concrete type,
// unlike the interfaces other packages hide behind, because crash
// recovery calls Adapter.Dispose/Initialize directly).
type Deps struct {
	Adapter        *engine.Adapter
	Registry       *registry.Registry
	Manager        *materialize.Manager
	Resolver       *source.Resolver
	Sink           materialize.EventSink
	DefaultPageSize int

	// DisposeEngine/InitializeEngine default to Adapter.Dispose/
	// Adapter.Initialize; tests override them to exercise the
	// crash-recovery path without a real embedded engine.
	DisposeEngine    func() error
	InitializeEngine func() error
}

// New creates a Dispatcher. Call Run in its own goroutine before
// sending any requests through Dispatch.
func New(deps Deps) *Dispatcher {
	pageSize := deps.DefaultPageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	disposeEngine := deps.DisposeEngine
	if disposeEngine == nil {
		disposeEngine = deps.Adapter.Dispose
	}
	initializeEngine := deps.InitializeEngine
	if initializeEngine == nil {
		initializeEngine = deps.Adapter.Initialize
	}
	return &Dispatcher{
		adapter:          deps.Adapter,
		registry:         deps.Registry,
		manager:          deps.Manager,
		resolver:         deps.Resolver,
		sink:             deps.Sink,
		pageSize:         pageSize,
		queue:            make(chan job, 64),
		disposeEngine:    disposeEngine,
		initializeEngine: initializeEngine,
	}
}

// Run processes the FIFO queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-d.queue:
			if !ok {
				return
			}
			result, err := d.executeWithRecovery(j.ctx, j.method, j.params)
			j.respond <- jobResult{result: result, err: err}
		}
	}
}

// Dispatch enqueues method/params and blocks until the handler (and
// any crash-recovery retry) completes.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	respond := make(chan jobResult, 1)
	select {
	case d.queue <- job{ctx: ctx, method: method, params: params, respond: respond}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-respond:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// executeWithRecovery runs the handler for method once, and if it
// fails with a Fatal-classified error, performs the recovery sequence
// from spec §4.6 and retries exactly once.
func (d *Dispatcher) executeWithRecovery(ctx context.Context, method string, params json.RawMessage) (any, error) {
	handler, ok := methodTable[method]
	if !ok {
		return nil, errs.Classify(errs.Newf("unknown method: %s", method), errs.KindInvalidInput)
	}

	result, err := handler(ctx, d, params)
	if err == nil || errs.GetKind(err) != errs.KindFatalEngine {
		return result, err
	}

	log.Warnw("fatal engine error, attempting recovery", "method", method, "error", err)
	d.registry.ClearAllMaterialized()
	if disposeErr := d.disposeEngine(); disposeErr != nil {
		log.Warnw("dispose during recovery failed", "error", disposeErr)
	}
	if initErr := d.initializeEngine(); initErr != nil {
		return nil, sanitizedFatal(initErr)
	}

	result, err = handler(ctx, d, params)
	if err != nil {
		return nil, sanitizedFatal(err)
	}
	return result, nil
}

func sanitizedFatal(err error) error {
	return errs.Classify(errs.New(errs.Sanitize(err.Error())), errs.GetKind(err))
}
