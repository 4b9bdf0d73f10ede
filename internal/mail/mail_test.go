package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/errors"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/httpclient"
	pkgkafka "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/kafka"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []Message
	err   error
	block chan struct{}
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"ok", Message{To: []string{"a@example.com"}, Subject: "hi"}, false},
		{"no recipients", Message{Subject: "hi"}, true},
		{"blank recipient", Message{To: []string{"  "}}, true},
		{"header injection in to", Message{To: []string{"a@example.com\r\nBcc: x@y.z"}}, true},
		{"header injection in subject", Message{To: []string{"a@example.com"}, Subject: "hi\nBcc: x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, 2, 10, testLogger())

	for i := 0; i < 5; i++ {
		ok := d.Dispatch(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s"})
		require.True(t, ok)
	}
	d.Close()

	assert.Len(t, sender.messages(), 5)
	assert.False(t, d.Dispatch(context.Background(), Message{To: []string{"a@example.com"}}))
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	d := NewDispatcher(sender, 1, 1, testLogger())

	msg := Message{To: []string{"a@example.com"}, Subject: "s"}
	accepted := 0
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			if d.Dispatch(context.Background(), msg) {
				accepted++
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}

	// One message is held by the worker, one sits in the queue.
	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, accepted, 1)

	close(sender.block)
	d.Close()
	assert.Len(t, sender.messages(), accepted)
}

func TestDispatcher_SendFailureIsSwallowed(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender, 1, 1, testLogger())

	assert.True(t, d.Dispatch(context.Background(), Message{To: []string{"a@example.com"}}))
	d.Close()
	assert.Empty(t, sender.messages())
}

func TestDispatcher_RejectsInvalidMessage(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, 1, 1, testLogger())
	defer d.Close()

	assert.False(t, d.Dispatch(context.Background(), Message{}))
}

func TestDispatcher_CancelledRequestStillSends(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, 1, 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, d.Dispatch(ctx, Message{To: []string{"a@example.com"}}))
	cancel()
	d.Close()

	assert.Len(t, sender.messages(), 1)
}

func TestConfirmationMessage(t *testing.T) {
	link, err := ConfirmationLink("http://localhost:8000/api/v1/auth/confirm", "abc.def")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api/v1/auth/confirm?token=abc.def", link)

	msg, err := ConfirmationMessage("ana@example.com", "Ana", link)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com"}, msg.To)
	assert.Equal(t, ConfirmationSubject, msg.Subject)
	assert.Contains(t, msg.Body, "Olá Ana,")
	assert.Contains(t, msg.Body, link)
	assert.False(t, msg.HTML)

	msg, err = ConfirmationMessage("ana@example.com", "", link)
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "Olá ana@example.com,")
}

func TestConfirmationLink_KeepsExistingQuery(t *testing.T) {
	link, err := ConfirmationLink("https://app.example.com/confirm?lang=pt", "t")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/confirm?lang=pt&token=t", link)
}

func TestSMTPSender_BuildMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com", FromName: "GameLog"})
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	raw := string(s.buildMessage(Message{To: []string{"ana@example.com"}, Subject: "Confirme seu e-mail", Body: "hello"}))

	assert.Contains(t, raw, "From: \"GameLog\" <noreply@example.com>\r\n")
	assert.Contains(t, raw, "To: ana@example.com\r\n")
	assert.Contains(t, raw, "Subject: Confirme seu e-mail\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nhello"))
}

func TestSMTPSender_DialError(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1})
	s.dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("refused")
	}
	err := s.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial smtp")
}

func newTestSendGrid(t *testing.T, h http.HandlerFunc) *SendGridSender {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxConnsPerHost: 2}),
		httpclient.CircuitBreakerConfig{Name: "sendgrid-test-" + t.Name(), MaxRequests: 1, Timeout: time.Second, FailureRatio: 0.5, MinRequests: 3},
		testLogger(),
	)
	return newSendGridSender(SendGridConfig{APIKey: "sg-key", BaseURL: srv.URL + "/", From: "noreply@example.com", FromName: "GameLog"}, client)
}

func TestSendGridSender_Send(t *testing.T) {
	var got sendGridRequest
	s := newTestSendGrid(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	err := s.Send(context.Background(), Message{To: []string{"ana@example.com"}, Subject: "hi", Body: "body"})
	require.NoError(t, err)

	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "ana@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "noreply@example.com", got.From.Email)
	assert.Equal(t, "hi", got.Subject)
	assert.Equal(t, []sendGridContent{{Type: "text/plain", Value: "body"}}, got.Content)
}

func TestSendGridSender_ClientError(t *testing.T) {
	s := newTestSendGrid(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid email","field":"personalizations.0.to"}]}`))
	})

	err := s.Send(context.Background(), Message{To: []string{"ana@example.com"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "invalid email")
}

func TestSendGridSender_ServerError(t *testing.T) {
	var calls atomic.Int32
	s := newTestSendGrid(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := s.Send(context.Background(), Message{To: []string{"ana@example.com"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLogSender_MasksRecipient(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, s.Send(context.Background(), Message{To: []string{"ana@example.com"}, Subject: "hi", Body: "link"}))
	assert.NotContains(t, buf.String(), "ana@example.com")
	assert.Contains(t, buf.String(), "a**@example.com")
}

func mailEvent(t *testing.T, msg Message) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.NewEvent(EventTypeRequested, "ana@example.com", "mail", "test", RequestedData{Message: msg})
	require.NoError(t, err)
	return ev
}

func TestConsumerHandler_Sends(t *testing.T) {
	sender := &recordingSender{}
	h := NewConsumerHandler(sender, testLogger())

	msg := Message{To: []string{"ana@example.com"}, Subject: "hi", Body: "b"}
	require.NoError(t, h.Handle(context.Background(), mailEvent(t, msg)))
	assert.Equal(t, []Message{msg}, sender.messages())
}

func TestConsumerHandler_SendErrorIsReturned(t *testing.T) {
	h := NewConsumerHandler(&recordingSender{err: errors.New("down")}, testLogger())
	err := h.Handle(context.Background(), mailEvent(t, Message{To: []string{"ana@example.com"}}))
	require.Error(t, err)
}

func TestConsumerHandler_IgnoresOtherEventTypes(t *testing.T) {
	sender := &recordingSender{}
	h := NewConsumerHandler(sender, testLogger())

	ev, err := pkgkafka.NewEvent("gamelog.user.registered", "id", "user", "test", map[string]string{})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), ev))
	assert.Empty(t, sender.messages())
}

func TestConsumerHandler_IdempotentDelivery(t *testing.T) {
	sender := &recordingSender{}
	store := pkgkafka.NewMemoryIdempotencyStore(time.Hour)
	h := pkgkafka.IdempotentHandler(store, NewConsumerHandler(sender, testLogger()).Handle, testLogger())

	ev := mailEvent(t, Message{To: []string{"ana@example.com"}})
	require.NoError(t, h(context.Background(), ev))
	require.NoError(t, h(context.Background(), ev))
	assert.Len(t, sender.messages(), 1)
}
