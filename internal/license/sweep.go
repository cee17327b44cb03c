package license

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"licensor/internal/store"
)

// SweepReport summarizes one full pass over the license records.
type SweepReport struct {
	Scanned int
	Warned  int
	Expired int
	Errors  int
}

// Sweep scans every license record once. Records already blocked are
// skipped. A record inside its renewal window gets a warning mail; a record
// past its validity window gets an expiration mail and is blocked.
//
// Warnings are intentionally not deduplicated: a license sitting in the
// window across several sweeps is warned on each one.
//
// Failures are isolated per record. A notification or persistence error is
// counted and logged, and the sweep continues to completion; only a failure
// to scan the store at all aborts it.
func (e *Engine) Sweep(ctx context.Context) (*SweepReport, error) {
	// Collect first: bbolt must not see writes issued from inside an open
	// read transaction on the same goroutine.
	type entry struct {
		key string
		rec *Record
	}
	var entries []entry
	report := &SweepReport{}

	err := e.store.ScanPrefix(store.LicensePrefix, func(key string, value []byte) error {
		rec, err := unmarshalRecord(value)
		if err != nil {
			report.Errors++
			e.logger.ErrorContext(ctx, "skipping undecodable license record",
				slog.String("key", key),
				slog.String("error", err.Error()))
			return nil
		}
		entries = append(entries, entry{key: key, rec: rec})
		return nil
	})
	if err != nil {
		return nil, err
	}

	nowMs := e.now().UnixMilli()
	for _, it := range entries {
		report.Scanned++
		rec := it.rec
		if rec.IsBlocked {
			continue
		}

		licenseID := strings.TrimPrefix(it.key, store.LicensePrefix)
		timeRemaining := rec.ValidUntil - nowMs

		if timeRemaining > 0 && timeRemaining <= rec.RenewalWindow {
			remainingDays := msToDays(timeRemaining)
			if err := e.direct.SendLicenseWarning(ctx, rec.UserEmail, licenseID, remainingDays); err != nil {
				report.Errors++
				e.logger.ErrorContext(ctx, "failed to send warning mail",
					slog.String("license", licenseID),
					slog.String("error", err.Error()))
			} else {
				report.Warned++
				e.logger.InfoContext(ctx, "warning mail sent",
					slog.String("license", licenseID),
					slog.Int("remaining_days", remainingDays))
			}
		}

		if timeRemaining <= 0 {
			if err := e.direct.SendLicenseExpired(ctx, rec.UserEmail, licenseID); err != nil {
				report.Errors++
				e.logger.ErrorContext(ctx, "failed to send expiration mail",
					slog.String("license", licenseID),
					slog.String("error", err.Error()))
			}

			// Block regardless of mail outcome; expiry is a fact.
			rec.IsBlocked = true
			if err := e.persist(rec); err != nil {
				report.Errors++
				e.logger.ErrorContext(ctx, "failed to block expired license",
					slog.String("license", licenseID),
					slog.String("error", err.Error()))
				continue
			}
			report.Expired++
			e.logger.InfoContext(ctx, "expired license blocked",
				slog.String("license", licenseID))
		}
	}

	e.logger.InfoContext(ctx, "sweep completed",
		slog.Int("scanned", report.Scanned),
		slog.Int("warned", report.Warned),
		slog.Int("expired", report.Expired),
		slog.Int("errors", report.Errors),
		slog.Time("at", time.UnixMilli(nowMs)))
	return report, nil
}
