package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderCarrier adapts message headers to propagation.TextMapCarrier so trace
// context and baggage ride along with each event.
type HeaderCarrier struct {
	headers *[]kafka.Header
}

var _ propagation.TextMapCarrier = (*HeaderCarrier)(nil)

// NewHeaderCarrier wraps the given header slice. Set appends to it in place.
func NewHeaderCarrier(headers *[]kafka.Header) *HeaderCarrier {
	return &HeaderCarrier{headers: headers}
}

func (c *HeaderCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *HeaderCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys lists header keys in message order, duplicates included.
func (c *HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// InjectTraceContext writes the span context of ctx into msg headers.
func InjectTraceContext(ctx context.Context, msg *kafka.Message) {
	otel.GetTextMapPropagator().Inject(ctx, NewHeaderCarrier(&msg.Headers))
}

// ExtractTraceContext returns ctx enriched with the span context carried by msg.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	headers := msg.Headers
	return otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&headers))
}
