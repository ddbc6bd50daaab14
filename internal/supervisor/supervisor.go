// Package supervisor implements the Process Supervisor (spec §6.1,
// C8): parses startup options from argv, opens the embedded engine,
// binds a loopback WebSocket listener, emits the single readiness
// line, and tears everything down on SIGTERM/SIGINT. Modeled on the
// teacher's cmd/qntx/commands/server.go signal-handling shape: a first
// interrupt starts a graceful shutdown, a second forces immediate exit.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/chrispahm/gdx-viewer/internal/config"
	"github.com/chrispahm/gdx-viewer/internal/dispatch"
	"github.com/chrispahm/gdx-viewer/internal/engine"
	"github.com/chrispahm/gdx-viewer/internal/filter"
	"github.com/chrispahm/gdx-viewer/internal/logging"
	"github.com/chrispahm/gdx-viewer/internal/materialize"
	"github.com/chrispahm/gdx-viewer/internal/model"
	"github.com/chrispahm/gdx-viewer/internal/registry"
	"github.com/chrispahm/gdx-viewer/internal/rpc"
	"github.com/chrispahm/gdx-viewer/internal/source"
)

var log = logging.Named("supervisor")

// ReadyMessage is the single JSON line written to stdout once the
// engine is initialized and the listener bound (spec §6.1).
type ReadyMessage struct {
	Type string `json:"type"`
	Port int    `json:"port"`
	Pid  int    `json:"pid"`
}

// OptionsJSONFromArgs resolves the two-argument legacy shape into the
// options JSON string this supervisor reads: args[0] (legacy extension
// path) is accepted and ignored whenever a second argument is present;
// the options JSON is args[1], or args[0] if only one positional
// argument was given (spec §6.1).
func OptionsJSONFromArgs(args []string) string {
	switch len(args) {
	case 0:
		return ""
	case 1:
		return args[0]
	default:
		return args[1]
	}
}

// Supervisor owns the embedded engine, the request dispatcher, and the
// loopback RPC server for one server process lifetime.
type Supervisor struct {
	adapter  *engine.Adapter
	resolver *source.Resolver
	server   *rpc.Server
	dbPath   string

	dispatcherCtx    context.Context
	cancelDispatcher context.CancelFunc
}

// Start parses optionsJSON, opens the engine, wires the Document
// Registry / Materialization Manager / Request Dispatcher / RPC
// Server together, and binds the loopback listener. It does not write
// the readiness line; call WriteReady once the caller is satisfied
// startup fully succeeded.
func Start(optionsJSON string) (*Supervisor, error) {
	opts, err := config.ParseOptions(optionsJSON)
	if err != nil {
		return nil, err
	}

	dbPath := ""
	if opts.GlobalStoragePath != "" {
		dbPath = opts.GlobalStoragePath + string(os.PathSeparator) + "gdx-viewer-" + uuid.NewString() + ".duckdb"
	}

	adapter, err := engine.Open(dbPath)
	if err != nil {
		return nil, err
	}

	resolver := source.NewResolver(opts.AllowRemoteSourceLoading, os.TempDir())

	manager := materialize.NewManager(
		adapter.Query,
		func(ctx context.Context) (materialize.Conn, error) { return adapter.BackgroundConnection(ctx) },
		1000,
	)

	reg := registry.New(
		func(ctx context.Context, src model.Source) (string, error) { return resolver.Resolve(ctx, string(src)) },
		adapter.ReadSymbols,
		func(ctx context.Context, tableName string) error {
			return adapter.Run(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, filter.QuoteIdent(tableName)))
		},
		func(ctx context.Context) error { return adapter.Run(ctx, "CHECKPOINT") },
		manager.Cancel,
		func(ctx context.Context) error {
			if err := adapter.Dispose(); err != nil {
				return err
			}
			return adapter.Initialize()
		},
	)

	rpcServer := rpc.NewServer(nil)
	sink := rpc.NewEventSink(rpcServer)

	d := dispatch.New(dispatch.Deps{
		Adapter:         adapter,
		Registry:        reg,
		Manager:         manager,
		Resolver:        resolver,
		Sink:            sink,
		DefaultPageSize: 1000,
	})
	rpcServer.SetDispatcher(d)

	if err := rpcServer.Start(); err != nil {
		adapter.Dispose()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	return &Supervisor{
		adapter:          adapter,
		resolver:         resolver,
		server:           rpcServer,
		dbPath:           dbPath,
		dispatcherCtx:    ctx,
		cancelDispatcher: cancel,
	}, nil
}

// Port returns the bound loopback port.
func (s *Supervisor) Port() int {
	return s.server.Port()
}

// WriteReady writes the single readiness JSON line (spec §6.1). It
// must be the last thing written to stdout before any diagnostic
// output, and it is written exactly once.
func (s *Supervisor) WriteReady(w io.Writer) error {
	msg := ReadyMessage{Type: "ready", Port: s.Port(), Pid: os.Getpid()}
	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(encoded))
	return err
}

// Shutdown tears everything down: stops accepting connections,
// cancels the dispatcher loop, disposes the embedded engine (removing
// its persistent database file and WAL), and cleans up any temp files
// the Source Resolver staged for remote sources.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		log.Warnw("rpc server shutdown reported an error", "error", err)
	}
	s.cancelDispatcher()
	s.resolver.Dispose()
	return s.adapter.Dispose()
}

// Wait blocks until ctx is cancelled or a shutdown signal arrives,
// then shuts the supervisor down. A first SIGTERM/SIGINT begins a
// graceful shutdown; a second forces immediate exit, mirroring the
// teacher's double-Ctrl+C pattern.
func (s *Supervisor) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
	case <-sigCh:
		log.Infow("shutdown signal received, shutting down gracefully")
	}

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownDone <- s.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-shutdownDone:
		return err
	case <-sigCh:
		log.Warnw("second shutdown signal received, forcing exit")
		os.Exit(1)
		return nil
	}
}
