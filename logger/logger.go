// Package logger defines the structured logging surface the gate and
// the facilitator client write to. The default is NoopLogger;
// NewZapLogger provides a production implementation.
package logger

// Logger is implemented by structured loggers. Fields carry request
// context such as resource, network and payer.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
