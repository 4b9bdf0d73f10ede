package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxHandlerRetries is the number of handler attempts per message.
const maxHandlerRetries = 3

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

type ConsumerConfig struct {
	Brokers   []string
	GroupID   string
	Topic     string
	MinBytes  int
	MaxBytes  int
	EnableDLQ bool
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages that exhausted their retries.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, lastErr error, consumerGroup string) error
	Close() error
}

// errStopped reports that the consumer context ended between attempts.
var errStopped = errors.New("consumer stopped")

// Consumer reads one topic as part of a group. Every message is committed
// once it was handled, dead-lettered or found undecodable, so a poison
// message never blocks its partition.
type Consumer struct {
	reader       messageReader
	dlq          DeadLetterPublisher
	topic        string
	group        string
	logger       *slog.Logger
	handler      Handler
	retryBackoff time.Duration
	closeOnce    sync.Once
}

func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	var dlq DeadLetterPublisher
	if cfg.EnableDLQ {
		dlq = NewDLQProducer(cfg.Brokers, logger)
	}
	return newConsumer(reader, dlq, cfg.Topic, cfg.GroupID, handler, logger)
}

func newConsumer(r messageReader, dlq DeadLetterPublisher, topic, group string, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:       r,
		dlq:          dlq,
		topic:        topic,
		group:        group,
		handler:      handler,
		retryBackoff: 100 * time.Millisecond,
		logger:       logger.With(slog.String("topic", topic), slog.String("group", group)),
	}
}

// sleep waits d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start blocks until ctx is cancelled and closes the consumer on return.
func (c *Consumer) Start(ctx context.Context) error {
	defer func() { _ = c.Close() }()
	c.logger.Info("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		switch {
		case ctx.Err() != nil:
			c.logger.Info("consumer stopping")
			return nil
		case err != nil:
			c.logger.Error("fetch failed", slog.String("error", err.Error()))
			if !sleep(ctx, c.retryBackoff) {
				return nil
			}
			continue
		}

		countConsumed(c.topic, c.group, outcomeReceived)
		if errors.Is(c.process(ctx, msg), errStopped) {
			return nil
		}
	}
}

// process runs one message to completion and commits it. It returns
// errStopped if ctx ended while waiting to retry; the message then stays
// uncommitted and is redelivered.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	log := c.logger.With(slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		log.Error("undecodable message", slog.String("error", err.Error()))
		c.deadLetter(ctx, msg, fmt.Errorf("unmarshal event: %w", err))
		c.commit(ctx, msg)
		return nil
	}
	log = log.With(slog.String("event_type", event.EventType), slog.String("event_id", event.EventID))

	start := time.Now()
	err = c.handleWithRetry(ExtractTraceContext(ctx, msg), ctx, event, log)
	if errors.Is(err, errStopped) {
		return err
	}
	consumerHandleSeconds.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if err != nil {
		countConsumed(c.topic, c.group, outcomeFailed)
		log.Error("handler gave up", slog.Int("attempts", maxHandlerRetries), slog.String("error", err.Error()))
		c.deadLetter(ctx, msg, err)
	} else {
		countConsumed(c.topic, c.group, outcomeProcessed)
	}
	c.commit(ctx, msg)
	return nil
}

// handleWithRetry calls the handler with hctx and waits on ctx between
// attempts, backing off linearly.
func (c *Consumer) handleWithRetry(hctx, ctx context.Context, event *Event, log *slog.Logger) error {
	var err error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		if err = c.handler(hctx, event); err == nil {
			return nil
		}
		log.Warn("handler failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if attempt == maxHandlerRetries {
			break
		}
		if !sleep(ctx, time.Duration(attempt)*c.retryBackoff) {
			return errStopped
		}
	}
	return err
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err == nil {
		countConsumed(c.topic, c.group, outcomeDeadLettered)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("commit failed", slog.Int64("offset", msg.Offset), slog.String("error", err.Error()))
	}
}

// Close releases the reader and the dead-letter writer. Repeated calls
// return nil.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
		if c.dlq == nil {
			return
		}
		if dErr := c.dlq.Close(); err == nil {
			err = dErr
		}
	})
	return err
}
