// Package logging provides the process-wide structured logger for the
// GDX viewer query server, built on go.uber.org/zap.
package logging

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// root holds the current global logger behind an atomic pointer so
// that ComponentLogger, obtained via Named before Initialize ever
// runs, always forwards to the live logger rather than whichever one
// existed at the moment Named was called. Starts as a safe no-op so
// packages that bind their component logger at package-init time
// never log against a nil pointer before main calls Initialize.
var root atomic.Pointer[zap.SugaredLogger]

func init() {
	root.Store(zap.NewNop().Sugar())
}

// Initialize sets up the global logger. jsonOutput selects structured
// JSON (suited to a process whose stdout/stderr is captured by a host
// process) over a human-readable console encoder.
func Initialize(verbosity int, jsonOutput bool) error {
	level := LevelFor(verbosity)

	var core zapcore.Core
	if jsonOutput {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stderr), level)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), level)
	}

	root.Store(zap.New(core).Sugar())
	return nil
}

// ComponentLogger is a named logger handle that always forwards to
// whichever logger is currently installed, so a *ComponentLogger bound
// to a package-level var before Initialize runs still logs through the
// real sink once Initialize replaces the global logger.
type ComponentLogger struct {
	name string
}

// Named returns a component logger scoped to name. Safe to call (and
// assign to a package-level var) before Initialize.
func Named(name string) *ComponentLogger {
	return &ComponentLogger{name: name}
}

func (c *ComponentLogger) logger() *zap.SugaredLogger {
	return root.Load().Named(c.name)
}

func (c *ComponentLogger) Debugw(msg string, keysAndValues ...any) {
	c.logger().Debugw(msg, keysAndValues...)
}

func (c *ComponentLogger) Infow(msg string, keysAndValues ...any) {
	c.logger().Infow(msg, keysAndValues...)
}

func (c *ComponentLogger) Warnw(msg string, keysAndValues ...any) {
	c.logger().Warnw(msg, keysAndValues...)
}

func (c *ComponentLogger) Errorw(msg string, keysAndValues ...any) {
	c.logger().Errorw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries. Errors from Sync on stderr are
// routinely EINVAL on some platforms and are safe to ignore.
func Sync() error {
	return root.Load().Sync()
}
