package engine

import "github.com/chrispahm/gdx-viewer/internal/errs"

// classify wraps a driver error with its Kind: Fatal if the message
// matches the "database has been invalidated" pattern (the embedded
// engine is unrecoverable), Transient otherwise.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errs.IsFatal(err.Error()) {
		return errs.Classify(err, errs.KindFatalEngine)
	}
	return errs.Classify(err, errs.KindTransientEngine)
}
