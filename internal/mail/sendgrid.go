package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/httpclient"
)

// DefaultSendGridBaseURL is the public SendGrid API endpoint.
const DefaultSendGridBaseURL = "https://api.sendgrid.com"

const sendGridService = "sendgrid"

// SendGridConfig configures SendGridSender.
type SendGridConfig struct {
	APIKey   string
	BaseURL  string
	From     string
	FromName string
}

// SendGridSender delivers mail through the SendGrid v3 HTTP API. Calls go
// through the retrying client and a circuit breaker.
type SendGridSender struct {
	cfg    SendGridConfig
	client *httpclient.CircuitBreakerClient
}

// NewSendGridSender creates a SendGrid sender with the default client settings.
func NewSendGridSender(cfg SendGridConfig, logger *slog.Logger) *SendGridSender {
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig(sendGridService),
		logger,
	)
	return newSendGridSender(cfg, client)
}

func newSendGridSender(cfg SendGridConfig, client *httpclient.CircuitBreakerClient) *SendGridSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSendGridBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SendGridSender{cfg: cfg, client: client}
}

// Name returns the backend name.
func (s *SendGridSender) Name() string {
	return BackendSendGrid
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

func (s *SendGridSender) payload(msg Message) sendGridRequest {
	to := make([]sendGridAddress, len(msg.To))
	for i, addr := range msg.To {
		to[i] = sendGridAddress{Email: addr}
	}
	return sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: to}},
		From:             sendGridAddress{Email: s.cfg.From, Name: s.cfg.FromName},
		Subject:          msg.Subject,
		Content:          []sendGridContent{{Type: msg.ContentType(), Value: msg.Body}},
	}
}

// Send posts msg to /v3/mail/send.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(s.payload(msg))
	if err != nil {
		return fmt.Errorf("marshal sendgrid request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sendgrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return httpclient.ParseResponseError(resp, sendGridService)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}
