package provider

import (
	"context"
	"log/slog"
)

var _ Provider = (*Log)(nil)

// Log writes every message to a structured logger instead of delivering
// it. Useful for development and dry runs.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging provider.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Name returns "log".
func (l *Log) Name() string { return "log" }

// Send logs the message and reports success.
func (l *Log) Send(_ context.Context, msg Message) error {
	l.logger.Info("notification delivered",
		slog.String("provider", "log"),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("html_bytes", len(msg.HTML)),
		slog.Int("text_bytes", len(msg.Text)),
	)
	return nil
}
