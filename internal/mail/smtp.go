package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"time"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// SMTPSender delivers mail over SMTP with PLAIN auth, upgrading the
// connection with STARTTLS when UseTLS is set.
type SMTPSender struct {
	cfg  SMTPConfig
	now  func() time.Time
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := &net.Dialer{Timeout: 10 * time.Second}
	return &SMTPSender{cfg: cfg, now: time.Now, dial: d.DialContext}
}

// Name returns the backend name.
func (s *SMTPSender) Name() string {
	return BackendSMTP
}

// Send delivers msg in a single SMTP session.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if s.cfg.UseTLS {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, to := range msg.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("smtp RCPT TO: %w", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(s.buildMessage(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end DATA: %w", err)
	}

	return c.Quit()
}

func (s *SMTPSender) buildMessage(msg Message) []byte {
	from := (&netmail.Address{Name: s.cfg.FromName, Address: s.cfg.From}).String()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	for _, to := range msg.To {
		fmt.Fprintf(&buf, "To: %s\r\n", to)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s; charset=UTF-8\r\n", msg.ContentType())
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	return buf.Bytes()
}
