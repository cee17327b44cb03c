package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"licensor/internal/store"
)

// Notifier delivers outbound license mail. The engine is wired with two
// implementations of it: a queue-backed one whose methods return as soon as
// the job is accepted (generate/renew path) and a direct one that is awaited
// per call (sweep path).
type Notifier interface {
	SendLicenseCreated(ctx context.Context, to, license, userKey, validUntil string) error
	SendLicenseRenewed(ctx context.Context, to, license, renewedUntil string) error
	SendLicenseWarning(ctx context.Context, to, license string, remainingDays int) error
	SendLicenseExpired(ctx context.Context, to, license string) error
}

// Options tunes the engine's issuance policy.
type Options struct {
	// DefaultMonths is the validity granted when the caller omits months.
	DefaultMonths int
	// WindowFraction is the denominator of the renewal-window computation:
	// renewalWindow = grantedDuration / WindowFraction.
	WindowFraction int
	// Clock supplies the current time; defaults to time.Now.
	Clock func() time.Time
}

const (
	defaultMonths         = 1
	defaultWindowFraction = 6
)

// Engine implements the license lifecycle operations over the store. It
// holds no authoritative state of its own; every decision is a
// read-then-decide over store-backed records. The read-modify-write
// sequences in Verify/Renew/Block/Unblock are not atomic across the store
// gap; conflicting concurrent writes to one license resolve last-write-wins
// at the store.
type Engine struct {
	store  *store.Store
	async  Notifier
	direct Notifier
	logger *slog.Logger

	defaultMonths  int
	windowFraction int64
	now            func() time.Time
}

// NewEngine wires a lifecycle engine to its store handle and notifiers.
// async is used by Generate and Renew and must not block on delivery;
// direct is used by the sweep and is awaited per record.
func NewEngine(s *store.Store, direct, async Notifier, logger *slog.Logger, opts Options) *Engine {
	if opts.DefaultMonths <= 0 {
		opts.DefaultMonths = defaultMonths
	}
	if opts.WindowFraction <= 0 {
		opts.WindowFraction = defaultWindowFraction
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:          s,
		async:          async,
		direct:         direct,
		logger:         logger.With(slog.String("component", "license_engine")),
		defaultMonths:  opts.DefaultMonths,
		windowFraction: int64(opts.WindowFraction),
		now:            opts.Clock,
	}
}

// Issued is what Generate returns to the caller: the only time the
// plaintext user key is ever visible.
type Issued struct {
	License    string
	UserKey    string
	ValidUntil time.Time
}

// Details is the redacted view of a license returned to a caller holding
// the matching user key.
type Details struct {
	EndDate       string `json:"endDate"`
	RemainingTime string `json:"remainingTime"`
}

// Generate allocates a fresh license bound to a fresh user key, persists
// the record, and queues the creation mail. Only the hash of the user key
// is stored; delivery failure is logged, never surfaced.
func (e *Engine) Generate(ctx context.Context, userEmail string, months int) (*Issued, error) {
	if months <= 0 {
		months = e.defaultMonths
	}

	id, err := NewLicenseID()
	if err != nil {
		return nil, err
	}
	userKey, err := NewUserKey()
	if err != nil {
		return nil, err
	}

	granted := durationForMonths(months)
	now := e.now()
	rec := &Record{
		License:       id,
		ValidUntil:    now.UnixMilli() + granted.Milliseconds(),
		UserKeyHash:   HashUserKey(userKey),
		IsBlocked:     false,
		UserEmail:     userEmail,
		RenewalWindow: granted.Milliseconds() / e.windowFraction,
	}
	if err := e.persist(rec); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "license generated",
		slog.String("license", id),
		slog.String("email", userEmail),
		slog.Int("months", months),
		slog.Time("valid_until", time.UnixMilli(rec.ValidUntil)))

	if err := e.async.SendLicenseCreated(ctx, userEmail, id, userKey, formatReadableDate(rec.ValidUntil)); err != nil {
		e.logger.ErrorContext(ctx, "failed to queue license mail",
			slog.String("license", id),
			slog.String("error", err.Error()))
	}

	return &Issued{
		License:    id,
		UserKey:    userKey,
		ValidUntil: time.UnixMilli(rec.ValidUntil),
	}, nil
}

// Verify checks that a (license, userKey) pair identifies a usable license.
// A license found past its validity window is flipped to blocked before the
// expiry refusal is returned; Verify never mutates state otherwise.
func (e *Engine) Verify(ctx context.Context, license, userKey string) error {
	rec, err := e.load(license)
	if err != nil {
		return err
	}

	if rec.IsBlocked {
		return ErrBlocked
	}
	if rec.UserKeyHash != HashUserKey(userKey) {
		return ErrInvalidKey
	}

	if e.now().UnixMilli() >= rec.ValidUntil {
		rec.IsBlocked = true
		if err := e.persist(rec); err != nil {
			return err
		}
		e.logger.InfoContext(ctx, "license expired on verify, now blocked",
			slog.String("license", license))
		return ErrExpired
	}
	return nil
}

// Renew extends a license by the requested months. Eligibility depends on
// where now falls relative to the record's renewal window:
//
//   - more than one window before expiry: refused with TooEarlyError
//   - within the window, or up to one window past expiry (both bounds
//     inclusive): extended from max(now, validUntil), unblocked, and the
//     renewal mail queued
//   - further past expiry: permanently blocked, refused with
//     ErrRenewalExpired
//
// A license blocked while still time-valid was blocked by an admin and is
// never renewable.
func (e *Engine) Renew(ctx context.Context, license, userKey string, months int) error {
	rec, err := e.load(license)
	if err != nil {
		return err
	}
	if rec.UserKeyHash != HashUserKey(userKey) {
		return ErrInvalidKey
	}

	nowMs := e.now().UnixMilli()
	timeUntilExpiration := rec.ValidUntil - nowMs

	if rec.IsBlocked {
		if timeUntilExpiration > 0 {
			return ErrBlockedByAdmin
		}
		e.logger.InfoContext(ctx, "license blocked by expiry, renewal still permitted",
			slog.String("license", license))
	}

	if timeUntilExpiration > rec.RenewalWindow {
		return &TooEarlyError{
			WindowOpensAt: time.UnixMilli(rec.ValidUntil - rec.RenewalWindow),
		}
	}

	if timeUntilExpiration >= -rec.RenewalWindow {
		explicitMonths := months > 0
		if !explicitMonths {
			months = e.defaultMonths
		}
		granted := durationForMonths(months)

		base := rec.ValidUntil
		if nowMs > base {
			base = nowMs
		}
		rec.ValidUntil = base + granted.Milliseconds()
		rec.IsBlocked = false
		if explicitMonths {
			rec.RenewalWindow = granted.Milliseconds() / e.windowFraction
		}
		if err := e.persist(rec); err != nil {
			return err
		}

		e.logger.InfoContext(ctx, "license renewed",
			slog.String("license", license),
			slog.Int("months", months),
			slog.Time("valid_until", time.UnixMilli(rec.ValidUntil)))

		if err := e.async.SendLicenseRenewed(ctx, rec.UserEmail, license, formatReadableDate(rec.ValidUntil)); err != nil {
			e.logger.ErrorContext(ctx, "failed to queue renewal mail",
				slog.String("license", license),
				slog.String("error", err.Error()))
		}
		return nil
	}

	// Too far past expiry: the terminal transition.
	rec.IsBlocked = true
	if err := e.persist(rec); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "license permanently blocked, renewal window missed",
		slog.String("license", license))
	return ErrRenewalExpired
}

// Block marks a license blocked. Idempotent; no precondition on current
// state.
func (e *Engine) Block(ctx context.Context, license string) error {
	return e.setBlocked(ctx, license, true)
}

// Unblock clears a license's blocked flag. Idempotent; no precondition on
// current state.
func (e *Engine) Unblock(ctx context.Context, license string) error {
	return e.setBlocked(ctx, license, false)
}

func (e *Engine) setBlocked(ctx context.Context, license string, blocked bool) error {
	rec, err := e.load(license)
	if err != nil {
		return err
	}
	rec.IsBlocked = blocked
	if err := e.persist(rec); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "license block flag updated",
		slog.String("license", license),
		slog.Bool("blocked", blocked))
	return nil
}

// Details returns the human-readable expiry and remaining time for a
// license. Wrong key, blocked record, and absent record are all reported as
// ErrNotFound: the caller must not be able to distinguish them and probe
// for keys.
func (e *Engine) Details(ctx context.Context, license, userKey string) (*Details, error) {
	rec, err := e.load(license)
	if err != nil {
		return nil, err
	}
	if rec.UserKeyHash != HashUserKey(userKey) || rec.IsBlocked {
		return nil, ErrNotFound
	}
	return &Details{
		EndDate:       formatReadableDate(rec.ValidUntil),
		RemainingTime: formatRemaining(rec.ValidUntil, e.now()),
	}, nil
}

// load fetches and decodes a record, mapping an absent key to ErrNotFound.
func (e *Engine) load(license string) (*Record, error) {
	data, err := e.store.Get(store.LicensePrefix + license)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalRecord(data)
}

// persist writes a record back under its license key.
func (e *Engine) persist(rec *Record) error {
	data, err := rec.marshal()
	if err != nil {
		return err
	}
	if err := e.store.Put(store.LicensePrefix+rec.License, data); err != nil {
		return fmt.Errorf("license: persist %s: %w", rec.License, err)
	}
	return nil
}
