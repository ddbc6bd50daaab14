package errs

import (
	"regexp"
	"strings"
)

// FatalPattern matches the embedded engine's unrecoverable-state message.
// Matching is case-insensitive per spec §4.1/§7.
var FatalPattern = regexp.MustCompile(`(?i)database has been invalidated`)

const fatalFriendlyMessage = "The GDX file could not be read. It may have been modified or deleted externally. The viewer will attempt to recover automatically."

var stackTraceMarker = regexp.MustCompile(`Stack Trace:`)
var nativeFrameLine = regexp.MustCompile(`(?m)^\d+\s+(native::|0x).*$\n?`)

const sanitizedMessageMaxLen = 500

// IsFatal reports whether msg matches the engine's unrecoverable-state pattern.
func IsFatal(msg string) bool {
	return FatalPattern.MatchString(msg)
}

// Sanitize applies the §7 message-sanitization pipeline to a raw error
// string before it is ever surfaced to a client: replace the fatal
// pattern with a friendly sentence, strip anything from "Stack Trace:"
// onward, drop native-frame lines, then truncate to 500 characters.
func Sanitize(msg string) string {
	if IsFatal(msg) {
		msg = fatalFriendlyMessage
	}

	if loc := stackTraceMarker.FindStringIndex(msg); loc != nil {
		msg = msg[:loc[0]]
	}

	msg = nativeFrameLine.ReplaceAllString(msg, "")
	msg = strings.TrimRight(msg, "\n")

	if len(msg) > sanitizedMessageMaxLen {
		msg = msg[:sanitizedMessageMaxLen] + "…"
	}

	return msg
}
