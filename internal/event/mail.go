package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/mail"
	pkgkafka "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/kafka"
)

const mailPublishTimeout = 5 * time.Second

// MailPublisher hands mail to the mail.requested topic instead of sending it
// in process. It satisfies the same Dispatch contract as mail.Dispatcher.
type MailPublisher struct {
	producer *Producer
	timeout  time.Duration
}

// NewMailPublisher creates a publisher for mail.requested events.
func NewMailPublisher(kafka *pkgkafka.Producer, logger *slog.Logger) *MailPublisher {
	return &MailPublisher{producer: newProducer(kafka, logger), timeout: mailPublishTimeout}
}

// Dispatch publishes msg and reports whether the broker accepted it. A
// failure is logged and never returned to the caller.
func (m *MailPublisher) Dispatch(ctx context.Context, msg mail.Message) bool {
	if err := msg.Validate(); err != nil {
		m.producer.logger.WarnContext(ctx, "mail rejected", slog.String("error", err.Error()))
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	// Key by first recipient so mail for one address stays ordered.
	if err := m.producer.publish(ctx, TopicMailRequested, msg.To[0], AggregateTypeMail, mail.RequestedData{Message: msg}); err != nil {
		m.producer.logger.ErrorContext(ctx, "failed to publish mail request",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
