package mail

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/kafka"
)

// EventTypeRequested is the event type carried by mail.requested events.
var EventTypeRequested = pkgkafka.Topic("mail", "requested")

// ConsumerGroupID is the consumer group reading mail.requested.
const ConsumerGroupID = "gamelog-mailer"

// RequestedData is the payload of a mail.requested event.
type RequestedData struct {
	Message
}

// ConsumerHandler sends mail carried by mail.requested events.
type ConsumerHandler struct {
	sender Sender
	logger *slog.Logger
}

// NewConsumerHandler creates a handler that delivers through sender.
func NewConsumerHandler(sender Sender, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{sender: sender, logger: logger}
}

// Handle decodes and sends one message. Send errors are returned so the
// consumer retries and eventually dead-letters the event.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != EventTypeRequested {
		h.logger.WarnContext(ctx, "unexpected event type on mail topic",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var data RequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("decode mail.requested %s: %w", event.EventID, err)
	}

	if err := h.sender.Send(ctx, data.Message); err != nil {
		mailSendTotal.WithLabelValues(resultFailed).Inc()
		return fmt.Errorf("send mail for event %s: %w", event.EventID, err)
	}
	mailSendTotal.WithLabelValues(resultSent).Inc()

	h.logger.DebugContext(ctx, "mail sent from event",
		slog.String("event_id", event.EventID),
		slog.String("sender", h.sender.Name()),
	)
	return nil
}

// ConsumerConfig configures NewConsumer.
type ConsumerConfig struct {
	Brokers []string
	Store   pkgkafka.IdempotencyStore
}

// NewConsumer builds the mail.requested consumer with duplicate suppression
// and dead-lettering.
func NewConsumer(cfg ConsumerConfig, sender Sender, logger *slog.Logger) *pkgkafka.Consumer {
	handler := NewConsumerHandler(sender, logger).Handle
	if cfg.Store != nil {
		handler = pkgkafka.IdempotentHandler(cfg.Store, handler, logger)
	}
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.Brokers,
		GroupID:   ConsumerGroupID,
		Topic:     EventTypeRequested,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, handler, logger)
}
