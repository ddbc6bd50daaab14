// Package errs provides error handling for the GDX viewer query server.
//
// It re-exports github.com/cockroachdb/errors, giving every package in
// this module stack traces, wrapping with context, and safe-detail
// formatting without each of them importing cockroachdb/errors directly.
//
// Usage:
//
//	err := errs.New("symbol not found")
//	if err := doSomething(); err != nil {
//	    return errs.Wrapf(err, "materializing %s", symbolName)
//	}
package errs

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithDetailf     = crdb.WithDetailf
	WithSafeDetails = crdb.WithSafeDetails
)

// Error inspection
var (
	Is     = crdb.Is
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Kind classifies an error the way §7 of the spec requires: the
// dispatcher and RPC layer switch on this instead of matching strings.
type Kind int

const (
	// KindTransientEngine is any engine error that isn't classified fatal.
	KindTransientEngine Kind = iota
	// KindFatalEngine means the embedded engine is unrecoverable and
	// needs the single-retry recovery path.
	KindFatalEngine
	// KindInvalidInput means the request was malformed.
	KindInvalidInput
	// KindNotFound means a referenced documentId isn't open.
	KindNotFound
	// KindNotMaterialized means getFilterOptions was called before
	// materializationComplete.
	KindNotMaterialized
	// KindCancelled means a background task was cancelled.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindFatalEngine:
		return "FatalEngine"
	case KindInvalidInput:
		return "InvalidInput"
	case KindNotFound:
		return "NotFound"
	case KindNotMaterialized:
		return "NotMaterialized"
	case KindCancelled:
		return "Cancelled"
	default:
		return "TransientEngine"
	}
}

// classified wraps an error together with its Kind so GetKind can
// retrieve it without relying on string matching.
type classified struct {
	error
	kind Kind
}

func (c *classified) Unwrap() error { return c.error }

// Classify annotates err with kind, replacing any previous classification.
func Classify(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &classified{error: err, kind: kind}
}

// GetKind returns the Kind attached via Classify, defaulting to
// KindTransientEngine if err was never classified.
func GetKind(err error) Kind {
	var c *classified
	if crdb.As(err, &c) {
		return c.kind
	}
	return KindTransientEngine
}
