package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/domain"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/mail"
	pkgkafka "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/kafka"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

// Kafka topics for account events.
var (
	TopicUserRegistered = pkgkafka.Topic("user", "registered")
	TopicUserConfirmed  = pkgkafka.Topic("user", "confirmed")
	TopicUserUpdated    = pkgkafka.Topic("user", "updated")
	TopicMailRequested  = mail.EventTypeRequested
)

// Aggregate types.
const (
	AggregateTypeUser = "user"
	AggregateTypeMail = "mail"
)

// SourceAccounts identifies events originating from this service.
const SourceAccounts = "gamelog-accounts"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// UserConfirmedData is the payload for a user.confirmed event.
type UserConfirmedData struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// UserUpdatedData is the payload for a user.updated event.
type UserUpdatedData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Bio   string `json:"bio"`
	Role  string `json:"role"`
}

// Publisher emits account domain events.
type Publisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishUserConfirmed(ctx context.Context, user *domain.User) error
	PublishUserUpdated(ctx context.Context, user *domain.User) error
}

type eventWriter interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes account events to Kafka.
type Producer struct {
	kafka  eventWriter
	logger *slog.Logger
}

// NewProducer creates a Kafka-backed publisher.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return newProducer(kafka, logger)
}

func newProducer(w eventWriter, logger *slog.Logger) *Producer {
	return &Producer{kafka: w, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceAccounts, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if actor := logger.UserIDFromContext(ctx); actor != "" {
		event.WithMetadata(MetadataActorID, actor)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("event_id", event.EventID),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserRegistered, user.ID, AggregateTypeUser, UserRegisteredData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	})
}

// PublishUserConfirmed publishes a user.confirmed event.
func (p *Producer) PublishUserConfirmed(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserConfirmed, user.ID, AggregateTypeUser, UserConfirmedData{
		ID:          user.ID,
		Email:       user.Email,
		ConfirmedAt: user.UpdatedAt,
	})
}

// PublishUserUpdated publishes a user.updated event.
func (p *Producer) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserUpdated, user.ID, AggregateTypeUser, UserUpdatedData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Bio:   user.Bio,
		Role:  user.Role,
	})
}

// MetadataActorID names the metadata key holding the authenticated user that
// caused the event, when there is one.
const MetadataActorID = "actor_id"

// NoopPublisher discards events. It is used when Kafka is disabled.
type NoopPublisher struct{}

// PublishUserRegistered does nothing.
func (NoopPublisher) PublishUserRegistered(context.Context, *domain.User) error { return nil }

// PublishUserConfirmed does nothing.
func (NoopPublisher) PublishUserConfirmed(context.Context, *domain.User) error { return nil }

// PublishUserUpdated does nothing.
func (NoopPublisher) PublishUserUpdated(context.Context, *domain.User) error { return nil }
