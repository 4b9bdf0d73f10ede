// Package mail sends account emails through a pluggable Sender, either
// directly from a bounded worker pool or via the mail.requested Kafka topic.
package mail

import (
	"context"
	"errors"
	"strings"
)

// Message is a single outbound email.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    bool     `json:"html"`
}

// ErrNoRecipients is returned for messages without a usable address.
var ErrNoRecipients = errors.New("mail: message has no recipients")

// Validate checks the message can be handed to a transport.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return ErrNoRecipients
		}
		if strings.ContainsAny(to, "\r\n") {
			return errors.New("mail: recipient contains a line break")
		}
	}
	if strings.ContainsAny(m.Subject, "\r\n") {
		return errors.New("mail: subject contains a line break")
	}
	return nil
}

// ContentType returns the MIME type of the body.
func (m Message) ContentType() string {
	if m.HTML {
		return "text/html"
	}
	return "text/plain"
}

// Sender delivers a message over one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Backend names selectable through MAIL_BACKEND.
const (
	BackendLog      = "log"
	BackendSMTP     = "smtp"
	BackendSendGrid = "sendgrid"
)
