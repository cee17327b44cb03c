package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingNotifier records sends and optionally holds each delivery until
// released.
type blockingNotifier struct {
	mu    sync.Mutex
	sent  []string
	gate  chan struct{}
	errOn string
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{gate: make(chan struct{})}
}

func (n *blockingNotifier) record(ctx context.Context, kind string) error {
	if n.gate != nil {
		select {
		case <-n.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, kind)
	if kind == n.errOn {
		return assert.AnError
	}
	return nil
}

func (n *blockingNotifier) delivered() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *blockingNotifier) SendLicenseCreated(ctx context.Context, to, license, userKey, validUntil string) error {
	return n.record(ctx, "created")
}

func (n *blockingNotifier) SendLicenseRenewed(ctx context.Context, to, license, renewedUntil string) error {
	return n.record(ctx, "renewed")
}

func (n *blockingNotifier) SendLicenseWarning(ctx context.Context, to, license string, remainingDays int) error {
	return n.record(ctx, "warning")
}

func (n *blockingNotifier) SendLicenseExpired(ctx context.Context, to, license string) error {
	return n.record(ctx, "expired")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	next := newBlockingNotifier()
	close(next.gate)

	d := NewDispatcher(next, 16, testLogger())
	ctx := context.Background()

	require.NoError(t, d.SendLicenseCreated(ctx, "a@example.com", "lic1", "key", "date"))
	require.NoError(t, d.SendLicenseRenewed(ctx, "a@example.com", "lic1", "date"))
	require.NoError(t, d.SendLicenseExpired(ctx, "a@example.com", "lic1"))

	d.Close()
	assert.Equal(t, []string{"created", "renewed", "expired"}, next.delivered())
}

func TestDispatcherReturnsBeforeDelivery(t *testing.T) {
	next := newBlockingNotifier()
	d := NewDispatcher(next, 16, testLogger())
	defer func() {
		close(next.gate)
		d.Close()
	}()

	done := make(chan struct{})
	go func() {
		d.SendLicenseCreated(context.Background(), "a@example.com", "lic1", "key", "date")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on delivery")
	}
	assert.Empty(t, next.delivered())
}

func TestDispatcherQueueFull(t *testing.T) {
	next := newBlockingNotifier()
	d := NewDispatcher(next, 1, testLogger())
	ctx := context.Background()

	// First job is picked up by the worker and parks on the gate; the
	// second fills the queue.
	require.NoError(t, d.SendLicenseCreated(ctx, "a@example.com", "lic1", "key", "date"))
	require.Eventually(t, func() bool {
		return d.SendLicenseCreated(ctx, "a@example.com", "lic2", "key", "date") == nil
	}, time.Second, 5*time.Millisecond)

	err := d.SendLicenseCreated(ctx, "a@example.com", "lic3", "key", "date")
	assert.ErrorIs(t, err, ErrQueueFull)

	close(next.gate)
	d.Close()
	assert.Len(t, next.delivered(), 2)
}

func TestDispatcherSwallowsDeliveryErrors(t *testing.T) {
	next := newBlockingNotifier()
	next.errOn = "warning"
	close(next.gate)

	d := NewDispatcher(next, 16, testLogger())
	ctx := context.Background()

	// The enqueue itself never reports the downstream failure.
	require.NoError(t, d.SendLicenseWarning(ctx, "a@example.com", "lic1", 3))
	require.NoError(t, d.SendLicenseExpired(ctx, "a@example.com", "lic1"))

	d.Close()
	assert.Equal(t, []string{"warning", "expired"}, next.delivered())
}

func TestDispatcherCloseIdempotent(t *testing.T) {
	next := newBlockingNotifier()
	close(next.gate)

	d := NewDispatcher(next, 4, testLogger())
	d.Close()
	assert.NotPanics(t, d.Close)
}
