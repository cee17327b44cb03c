package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier is the outbound mail contract the dispatcher wraps and also
// satisfies.
type Notifier interface {
	SendLicenseCreated(ctx context.Context, to, license, userKey, validUntil string) error
	SendLicenseRenewed(ctx context.Context, to, license, renewedUntil string) error
	SendLicenseWarning(ctx context.Context, to, license string, remainingDays int) error
	SendLicenseExpired(ctx context.Context, to, license string) error
}

// ErrQueueFull is returned when a job cannot be accepted. Callers treat it
// like any other delivery failure: logged, never surfaced to the user.
var ErrQueueFull = errors.New("notify: dispatch queue full")

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 30 * time.Second
)

type job struct {
	id   string
	kind string
	send func(ctx context.Context) error
}

// Dispatcher turns a Notifier into a fire-and-forget one: its Send methods
// enqueue a job and return immediately, and a single worker goroutine
// delivers in order. Delivery failures are logged, never propagated.
//
// Jobs run detached from the enqueuing request's context; the request has
// already succeeded by the time delivery happens.
type Dispatcher struct {
	next    Notifier
	jobs    chan job
	logger  *slog.Logger
	timeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDispatcher starts the delivery worker. queueSize of zero or less
// selects the default.
func NewDispatcher(next Notifier, queueSize int, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	d := &Dispatcher{
		next:    next,
		jobs:    make(chan job, queueSize),
		logger:  logger.With(slog.String("component", "notify_dispatcher")),
		timeout: defaultSendTimeout,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Close stops accepting jobs, drains the queue, and waits for the worker.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := j.send(ctx)
		cancel()
		if err != nil {
			d.logger.Error("notification delivery failed",
				slog.String("job_id", j.id),
				slog.String("kind", j.kind),
				slog.String("error", err.Error()))
			continue
		}
		d.logger.Debug("notification delivered",
			slog.String("job_id", j.id),
			slog.String("kind", j.kind))
	}
}

func (d *Dispatcher) enqueue(kind string, send func(ctx context.Context) error) error {
	j := job{id: uuid.NewString(), kind: kind, send: send}
	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) SendLicenseCreated(_ context.Context, to, license, userKey, validUntil string) error {
	return d.enqueue("license_created", func(ctx context.Context) error {
		return d.next.SendLicenseCreated(ctx, to, license, userKey, validUntil)
	})
}

func (d *Dispatcher) SendLicenseRenewed(_ context.Context, to, license, renewedUntil string) error {
	return d.enqueue("license_renewed", func(ctx context.Context) error {
		return d.next.SendLicenseRenewed(ctx, to, license, renewedUntil)
	})
}

func (d *Dispatcher) SendLicenseWarning(_ context.Context, to, license string, remainingDays int) error {
	return d.enqueue("license_warning", func(ctx context.Context) error {
		return d.next.SendLicenseWarning(ctx, to, license, remainingDays)
	})
}

func (d *Dispatcher) SendLicenseExpired(_ context.Context, to, license string) error {
	return d.enqueue("license_expired", func(ctx context.Context) error {
		return d.next.SendLicenseExpired(ctx, to, license)
	})
}
