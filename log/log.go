// Package log defines the Logger interface every subsystem is constructed
// with, mirroring the geth/avalanche-style Logger surface the teacher
// vendors from github.com/luxfi/log, backed by go.uber.org/zap in
// production and a no-op implementation in tests.
package log

// Logger is the structured logging surface passed into every subsystem via
// config.CoreContext. Field arguments are variadic key/value pairs, the
// convention the teacher's logging shim follows.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	Fatal(msg string, kv ...interface{})
	// With returns a derived logger with the given key/value pairs
	// attached to every subsequent entry.
	With(kv ...interface{}) Logger
}
