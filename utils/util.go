package utils

import (
	"fmt"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"
)

// ParseTime parses RFC3339 time string
func ParseTime(t string) (time.Time, error) {
	return time.Parse(time.RFC3339, t)
}

// MakeTimeToString formats time in RFC3339
func MakeTimeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// StackTraceFromPanic logs a panic with the stack trace and re-panics.
// Use it in a defer statement.
func StackTraceFromPanic(logger *log.Entry) {
	if r := recover(); r != nil {
		logger.Errorf("stacktrace from panic: %s", string(debug.Stack()))
		logger.Panic(r)
	}
}

// RecoverToError converts a panic into an error. Use it in a defer statement with a named error return.
func RecoverToError(logger *log.Entry, err *error) {
	if r := recover(); r != nil {
		logger.Errorf("stacktrace from panic: %s", string(debug.Stack()))
		*err = fmt.Errorf("recovered from panic: %v", r)
	}
}

// ZeroPad formats non-negative index with at least 4 digits
func ZeroPad(idx int) string {
	return fmt.Sprintf("%04d", idx)
}
