package license

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensor/internal/store"
)

// capturingNotifier records every send for assertions. err, when set, is
// returned from each send.
type capturingNotifier struct {
	mu       sync.Mutex
	created  []string
	renewed  []string
	warnings []string
	expired  []string
	err      error
}

func (n *capturingNotifier) SendLicenseCreated(_ context.Context, to, license, userKey, validUntil string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, license)
	return n.err
}

func (n *capturingNotifier) SendLicenseRenewed(_ context.Context, to, license, renewedUntil string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.renewed = append(n.renewed, license)
	return n.err
}

func (n *capturingNotifier) SendLicenseWarning(_ context.Context, to, license string, remainingDays int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, license)
	return n.err
}

func (n *capturingNotifier) SendLicenseExpired(_ context.Context, to, license string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, license)
	return n.err
}

type engineFixture struct {
	engine *Engine
	store  *store.Store
	async  *capturingNotifier
	direct *capturingNotifier
	now    time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := store.Open(filepath.Join(t.TempDir(), "license.db"), 32, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &engineFixture{
		store:  s,
		async:  &capturingNotifier{},
		direct: &capturingNotifier{},
		now:    time.UnixMilli(1_700_000_000_000),
	}
	f.engine = NewEngine(s, f.direct, f.async, logger, Options{
		Clock: func() time.Time { return f.now },
	})
	return f
}

func (f *engineFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *engineFixture) record(t *testing.T, license string) *Record {
	t.Helper()
	data, err := f.store.Get(store.LicensePrefix + license)
	require.NoError(t, err)
	rec, err := unmarshalRecord(data)
	require.NoError(t, err)
	return rec
}

func TestGenerate(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)

	assert.Len(t, issued.License, len(licenseIDPrefix)+64)
	assert.Equal(t, licenseIDPrefix, issued.License[:len(licenseIDPrefix)])
	assert.Len(t, issued.UserKey, userKeyLength)
	assert.Equal(t, f.now.Add(monthDuration), issued.ValidUntil)

	rec := f.record(t, issued.License)
	assert.Equal(t, HashUserKey(issued.UserKey), rec.UserKeyHash)
	assert.NotContains(t, rec.UserKeyHash, issued.UserKey)
	assert.False(t, rec.IsBlocked)
	assert.Equal(t, "user@example.com", rec.UserEmail)
	assert.Equal(t, monthDuration.Milliseconds()/6, rec.RenewalWindow)

	assert.Equal(t, []string{issued.License}, f.async.created)
}

func TestGenerateDefaultMonths(t *testing.T) {
	f := newEngineFixture(t)

	issued, err := f.engine.Generate(context.Background(), "user@example.com", 0)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(monthDuration), issued.ValidUntil)
}

func TestGenerateMailFailureDoesNotSurface(t *testing.T) {
	f := newEngineFixture(t)
	f.async.err = assert.AnError

	_, err := f.engine.Generate(context.Background(), "user@example.com", 1)
	assert.NoError(t, err)
}

func TestVerify(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, f.engine.Verify(ctx, issued.License, issued.UserKey))
	})

	t.Run("unknown license", func(t *testing.T) {
		err := f.engine.Verify(ctx, "nlg0000", issued.UserKey)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("wrong user key", func(t *testing.T) {
		err := f.engine.Verify(ctx, issued.License, "WRONG1")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestVerifyBlockedBeforeKeyCheck(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	require.NoError(t, f.engine.Block(ctx, issued.License))

	// Even with a wrong key, a blocked license reports blocked.
	err = f.engine.Verify(ctx, issued.License, "WRONG1")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestVerifyExpiryFlipsBlocked(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)

	// Expiry is inclusive at validUntil.
	f.now = issued.ValidUntil
	err = f.engine.Verify(ctx, issued.License, issued.UserKey)
	assert.ErrorIs(t, err, ErrExpired)

	rec := f.record(t, issued.License)
	assert.True(t, rec.IsBlocked, "expiry must persist the blocked flag")

	// Subsequent verifies see the blocked record.
	err = f.engine.Verify(ctx, issued.License, issued.UserKey)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestVerifyJustBeforeExpiry(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)

	f.now = issued.ValidUntil.Add(-time.Millisecond)
	assert.NoError(t, f.engine.Verify(ctx, issued.License, issued.UserKey))
}

func TestRenewTooEarly(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	rec := f.record(t, issued.License)
	windowOpens := time.UnixMilli(rec.ValidUntil - rec.RenewalWindow)

	// One millisecond before the window opens.
	f.now = windowOpens.Add(-time.Millisecond)
	err = f.engine.Renew(ctx, issued.License, issued.UserKey, 1)

	var tooEarly *TooEarlyError
	require.ErrorAs(t, err, &tooEarly)
	assert.Equal(t, windowOpens, tooEarly.WindowOpensAt)

	// The refusal must not have touched the record.
	after := f.record(t, issued.License)
	assert.Equal(t, rec.ValidUntil, after.ValidUntil)
	assert.False(t, after.IsBlocked)
}

func TestRenewAtWindowOpen(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	rec := f.record(t, issued.License)
	oldValidUntil := rec.ValidUntil

	// Exactly at the window boundary: renewable.
	f.now = time.UnixMilli(oldValidUntil - rec.RenewalWindow)
	require.NoError(t, f.engine.Renew(ctx, issued.License, issued.UserKey, 1))

	// Extension anchors on the old expiry, not on now.
	after := f.record(t, issued.License)
	assert.Equal(t, oldValidUntil+monthDuration.Milliseconds(), after.ValidUntil)
	assert.Equal(t, []string{issued.License}, f.async.renewed)
}

func TestRenewAfterExpiryAnchorsOnNow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	rec := f.record(t, issued.License)

	// Past expiry but still inside the grace window.
	f.now = time.UnixMilli(rec.ValidUntil + rec.RenewalWindow/2)
	require.NoError(t, f.engine.Renew(ctx, issued.License, issued.UserKey, 1))

	after := f.record(t, issued.License)
	assert.Equal(t, f.now.UnixMilli()+monthDuration.Milliseconds(), after.ValidUntil)
}

func TestRenewAtGraceBoundary(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	rec := f.record(t, issued.License)

	// Exactly one window past expiry: still renewable.
	f.now = time.UnixMilli(rec.ValidUntil + rec.RenewalWindow)
	assert.NoError(t, f.engine.Renew(ctx, issued.License, issued.UserKey, 1))
}

func TestRenewPastGraceBlocksPermanently(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	rec := f.record(t, issued.License)

	// One millisecond beyond the grace boundary.
	f.now = time.UnixMilli(rec.ValidUntil + rec.RenewalWindow + 1)
	err = f.engine.Renew(ctx, issued.License, issued.UserKey, 1)
	assert.ErrorIs(t, err, ErrRenewalExpired)

	after := f.record(t, issued.License)
	assert.True(t, after.IsBlocked)

	// Unblock does not help: the window is still missed.
	require.NoError(t, f.engine.Unblock(ctx, issued.License))
	err = f.engine.Renew(ctx, issued.License, issued.UserKey, 1)
	assert.ErrorIs(t, err, ErrRenewalExpired)
}

func TestRenewExpiryBlockedStillRenewable(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	rec := f.record(t, issued.License)

	// Expire via verify, which flips the blocked flag.
	f.now = time.UnixMilli(rec.ValidUntil)
	require.ErrorIs(t, f.engine.Verify(ctx, issued.License, issued.UserKey), ErrExpired)

	// Blocked by expiry, still inside the grace window: renew succeeds and
	// clears the flag.
	require.NoError(t, f.engine.Renew(ctx, issued.License, issued.UserKey, 1))
	after := f.record(t, issued.License)
	assert.False(t, after.IsBlocked)
	assert.NoError(t, f.engine.Verify(ctx, issued.License, issued.UserKey))
}

func TestRenewAdminBlockedRefused(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	require.NoError(t, f.engine.Block(ctx, issued.License))
	rec := f.record(t, issued.License)

	// Blocked while still time-valid: admin block, never renewable.
	f.now = time.UnixMilli(rec.ValidUntil - rec.RenewalWindow/2)
	err = f.engine.Renew(ctx, issued.License, issued.UserKey, 1)
	assert.ErrorIs(t, err, ErrBlockedByAdmin)
}

func TestRenewWrongKey(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)

	err = f.engine.Renew(ctx, issued.License, "WRONG1", 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRenewExplicitMonthsRecomputesWindow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)
	rec := f.record(t, issued.License)

	f.now = time.UnixMilli(rec.ValidUntil)
	require.NoError(t, f.engine.Renew(ctx, issued.License, issued.UserKey, 2))

	after := f.record(t, issued.License)
	granted := 2 * monthDuration.Milliseconds()
	assert.Equal(t, rec.ValidUntil+granted, after.ValidUntil)
	assert.Equal(t, granted/6, after.RenewalWindow)
}

func TestBlockUnblockIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)

	require.NoError(t, f.engine.Block(ctx, issued.License))
	require.NoError(t, f.engine.Block(ctx, issued.License))
	assert.True(t, f.record(t, issued.License).IsBlocked)

	require.NoError(t, f.engine.Unblock(ctx, issued.License))
	require.NoError(t, f.engine.Unblock(ctx, issued.License))
	assert.False(t, f.record(t, issued.License).IsBlocked)

	assert.ErrorIs(t, f.engine.Block(ctx, "nlg0000"), ErrNotFound)
	assert.ErrorIs(t, f.engine.Unblock(ctx, "nlg0000"), ErrNotFound)
}

func TestDetails(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)

	details, err := f.engine.Details(ctx, issued.License, issued.UserKey)
	require.NoError(t, err)
	assert.NotEmpty(t, details.EndDate)
	assert.NotEmpty(t, details.RemainingTime)
	assert.NotEqual(t, "Expired", details.RemainingTime)
}

func TestDetailsUniformRefusal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	issued, err := f.engine.Generate(ctx, "user@example.com", 1)
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := f.engine.Details(ctx, issued.License, "WRONG1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("blocked", func(t *testing.T) {
		require.NoError(t, f.engine.Block(ctx, issued.License))
		defer f.engine.Unblock(ctx, issued.License)

		_, err := f.engine.Details(ctx, issued.License, issued.UserKey)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("absent", func(t *testing.T) {
		_, err := f.engine.Details(ctx, "nlg0000", issued.UserKey)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStateAt(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	window := int64(5 * 24 * time.Hour / time.Millisecond)

	cases := []struct {
		name string
		rec  Record
		want State
	}{
		{
			name: "active",
			rec:  Record{ValidUntil: now.UnixMilli() + 2*window},
			want: StateActive,
		},
		{
			name: "in renewal window",
			rec:  Record{ValidUntil: now.UnixMilli() + window/2, RenewalWindow: window},
			want: StateInRenewalWindow,
		},
		{
			name: "admin blocked",
			rec:  Record{ValidUntil: now.UnixMilli() + 2*window, IsBlocked: true},
			want: StateAdminBlocked,
		},
		{
			name: "expired blocked",
			rec:  Record{ValidUntil: now.UnixMilli() - 1, IsBlocked: true},
			want: StateExpiredBlocked,
		},
	}
	for _, tc := range cases {
		tc.rec.RenewalWindow = max64(tc.rec.RenewalWindow, window)
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rec.StateAt(now))
		})
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func TestHashUserKeyDeterministic(t *testing.T) {
	assert.Equal(t, HashUserKey("abc123"), HashUserKey("abc123"))
	assert.NotEqual(t, HashUserKey("abc123"), HashUserKey("abc124"))
	assert.Len(t, HashUserKey("abc123"), 64)
}

func TestFormatRemaining(t *testing.T) {
	now := time.UnixMilli(0)
	assert.Equal(t, "Expired", formatRemaining(0, now))
	assert.Equal(t, "45s", formatRemaining(45_000, now))
	assert.Equal(t, "2m 5s", formatRemaining(125_000, now))
}
