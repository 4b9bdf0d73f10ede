package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	Async        bool
}

// DefaultProducerConfig returns defaults suited to low-volume account events.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events through a kafka-go writer.
type Producer struct {
	writer  messageWriter
	brokers []string
	logger  *slog.Logger
}

// NewProducer creates a producer. No connection is made until the first publish.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		Async:                  cfg.Async,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer:  w,
		brokers: cfg.Brokers,
		logger:  logger,
	}
}

// Publish sends event to topic keyed by its aggregate ID, so all events of one
// user land on the same partition in order.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	value, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventType, err)
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(event.AggregateID),
		Value:   value,
		Headers: eventHeaders(event),
	}
	InjectTraceContext(ctx, &msg)

	log := p.logger.With(
		slog.String("topic", topic),
		slog.String("event_type", event.EventType),
		slog.String("event_id", event.EventID),
	)

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	producerPublishSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		producerMessages.WithLabelValues(topic, resultError).Inc()
		log.ErrorContext(ctx, "publish failed", slog.String("error", err.Error()))
		return fmt.Errorf("publish event to %s: %w", topic, err)
	}
	producerMessages.WithLabelValues(topic, resultOK).Inc()
	log.DebugContext(ctx, "event published")
	return nil
}

// eventHeaders mirrors the envelope fields consumers route and dedupe on, so
// they can be read without decoding the value.
func eventHeaders(e *Event) []kafka.Header {
	h := []kafka.Header{
		{Key: "event_id", Value: []byte(e.EventID)},
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "source", Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		h = append(h, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	return h
}

// Ping checks that at least one configured broker answers.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers dials each broker in turn and returns nil on the first that
// answers a metadata request.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}

	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", lastErr)
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// TopicPrefix namespaces every topic this service owns.
const TopicPrefix = "gamelog"

// Topic builds "<prefix>.<domain>.<action>".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
