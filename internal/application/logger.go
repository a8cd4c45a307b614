package application

import (
	"io"
	"log/slog"
	"os"
)

// StructuredLogger writes JSON log entries with contextual fields.
// Output goes to stderr because stdout carries the stdio transport.
type StructuredLogger struct {
	logger *slog.Logger
}

// NewStructuredLogger creates a logger writing to stderr.
func NewStructuredLogger() *StructuredLogger {
	return NewStructuredLoggerWithWriter(os.Stderr)
}

// NewStructuredLoggerWithWriter creates a logger writing to w.
func NewStructuredLoggerWithWriter(w io.Writer) *StructuredLogger {
	return &StructuredLogger{
		logger: slog.New(slog.NewJSONHandler(w, nil)),
	}
}

// LogInfo logs an informational message with context.
func (l *StructuredLogger) LogInfo(message string, context map[string]interface{}) {
	l.logger.Info(message, attrs(nil, context)...)
}

// LogError logs an error message with context.
func (l *StructuredLogger) LogError(message string, err error, context map[string]interface{}) {
	l.logger.Error(message, attrs(err, context)...)
}

func attrs(err error, context map[string]interface{}) []any {
	args := make([]any, 0, 2*len(context)+2)
	if err != nil {
		args = append(args, "error", err.Error())
	}
	for k, v := range context {
		args = append(args, k, v)
	}
	return args
}
