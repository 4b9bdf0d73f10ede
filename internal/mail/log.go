package mail

import (
	"context"
	"log/slog"

	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

// LogSender writes messages to the log instead of delivering them. It is
// the development backend; the body carries the confirmation link.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Name returns the backend name.
func (s *LogSender) Name() string {
	return BackendLog
}

// Send logs the message.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	masked := make([]string, len(msg.To))
	for i, to := range msg.To {
		masked[i] = logger.MaskEmail(to)
	}

	s.logger.InfoContext(ctx, "mail (log backend)",
		slog.Any("to", masked),
		slog.String("subject", msg.Subject),
		slog.String("content_type", msg.ContentType()),
		slog.String("body", msg.Body),
	)
	return nil
}
