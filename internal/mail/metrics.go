package mail

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for mailSendTotal.
const (
	resultSent    = "sent"
	resultFailed  = "failed"
	resultDropped = "dropped"
)

var mailSendTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "gamelog",
		Subsystem: "mail",
		Name:      "send_total",
		Help:      "Outbound emails by result: sent, failed or dropped.",
	},
	[]string{"result"},
)
