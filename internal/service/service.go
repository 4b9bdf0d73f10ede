// Package service holds the account, session and confirmation logic of the
// accounts service.
package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/mail"
)

// MailDispatcher queues an email for background delivery and reports whether
// it was accepted. It never blocks on the transport.
type MailDispatcher interface {
	Dispatch(ctx context.Context, msg mail.Message) bool
}

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// Login result label values.
const (
	loginSuccess  = "success"
	loginFailed   = "failed"
	loginInactive = "inactive"
	loginError    = "error"
)

var loginAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gamelog",
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts by result.",
	},
	[]string{"result"},
)
