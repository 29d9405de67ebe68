package notifier

import (
	"context"
	"log/slog"

	"github.com/outbid/outbid/internal/model"
)

// Ensure LogMessenger implements model.Messenger.
var _ model.Messenger = (*LogMessenger)(nil)

// LogMessenger writes messages to the log instead of delivering them. Used
// for local runs and the one-shot scan command.
type LogMessenger struct {
	logger *slog.Logger
}

// NewLogMessenger returns a messenger that logs each message.
func NewLogMessenger(logger *slog.Logger) *LogMessenger {
	return &LogMessenger{logger: logger}
}

func (l *LogMessenger) Send(_ context.Context, recipientID int64, text string) error {
	l.logger.Info("message", "recipient", recipientID, "text", text)
	return nil
}
