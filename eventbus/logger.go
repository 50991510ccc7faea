package eventbus

import "log"

// BusLogger is the interface for structured logging inside the event bus.
// Kept separate from any application-wide logger so the bus has no
// dependency on how a host wires its logging stack.
type BusLogger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// defaultBusLogger wraps the standard log package.
type defaultBusLogger struct{}

func (l *defaultBusLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *defaultBusLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *defaultBusLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *defaultBusLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

// noopBusLogger discards everything.
type noopBusLogger struct{}

func (l *noopBusLogger) Debug(msg string, keysAndValues ...any) {}
func (l *noopBusLogger) Info(msg string, keysAndValues ...any)  {}
func (l *noopBusLogger) Warn(msg string, keysAndValues ...any)  {}
func (l *noopBusLogger) Error(msg string, keysAndValues ...any) {}

// NoopBusLogger returns a logger that discards all output.
func NoopBusLogger() BusLogger {
	return &noopBusLogger{}
}
