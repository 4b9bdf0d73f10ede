package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/logger"
)

const defaultSendTimeout = 30 * time.Second

type job struct {
	ctx context.Context
	msg Message
}

// Dispatcher hands messages to a fixed number of workers through a bounded
// queue. Dispatch never blocks; a full queue drops the message.
type Dispatcher struct {
	sender      Sender
	queue       chan job
	logger      *slog.Logger
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines reading from a queue of queueSize.
func NewDispatcher(sender Sender, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		sender:      sender,
		queue:       make(chan job, queueSize),
		logger:      logger,
		sendTimeout: defaultSendTimeout,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Dispatch queues msg for delivery and reports whether it was accepted.
// The request context only contributes values; cancelling it does not
// abort the send.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) bool {
	if err := msg.Validate(); err != nil {
		d.logger.WarnContext(ctx, "mail rejected", slog.String("error", err.Error()))
		mailSendTotal.WithLabelValues(resultDropped).Inc()
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		mailSendTotal.WithLabelValues(resultDropped).Inc()
		return false
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), msg: msg}:
		return true
	default:
		mailSendTotal.WithLabelValues(resultDropped).Inc()
		d.logger.WarnContext(ctx, "mail queue full, message dropped",
			slog.String("subject", msg.Subject),
			slog.Int("queue_size", cap(d.queue)),
		)
		return false
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.send(j)
	}
}

func (d *Dispatcher) send(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, j.msg); err != nil {
		mailSendTotal.WithLabelValues(resultFailed).Inc()
		logger.WithContext(ctx, d.logger).ErrorContext(ctx, "mail send failed",
			slog.String("sender", d.sender.Name()),
			slog.String("subject", j.msg.Subject),
			slog.String("error", err.Error()),
		)
		return
	}
	mailSendTotal.WithLabelValues(resultSent).Inc()
}

// Close stops accepting messages and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
