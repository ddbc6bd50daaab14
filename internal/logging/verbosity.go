package logging

import "go.uber.org/zap/zapcore"

// Verbosity level constants for the server's -v flag count.
const (
	VerbosityUser  = 0 // no flags: warnings and errors only
	VerbosityInfo  = 1 // -v: informational messages
	VerbosityDebug = 2 // -vv: debug messages
)

// LevelFor maps a verbosity count to a zap level.
func LevelFor(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
