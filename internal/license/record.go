package license

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// licenseIDPrefix tags every issued license identifier.
const licenseIDPrefix = "nlg"

// userKeyLength is the length of the generated user secret.
const userKeyLength = 6

// userKeyAlphabet is the character set user keys are drawn from.
const userKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz1234567890"

// monthDuration approximates one calendar month for validity arithmetic.
const monthDuration = 30 * 24 * time.Hour

// Record is the persisted shape of a license. Instants are epoch
// milliseconds; RenewalWindow is a duration in milliseconds fixed at
// issuance (and optionally recomputed on an explicit-months renewal).
//
// UserKeyHash is immutable after creation. ValidUntil only moves forward,
// on successful renewal. IsBlocked set by expiry is cleared only by a
// successful renewal; IsBlocked set by an admin is cleared only by Unblock.
type Record struct {
	License       string `json:"license"`
	ValidUntil    int64  `json:"validUntil"`
	UserKeyHash   string `json:"user_key_hash"`
	IsBlocked     bool   `json:"isBlocked"`
	UserEmail     string `json:"userEmail"`
	RenewalWindow int64  `json:"renewalWindow"`
}

// State is the derived lifecycle state of a license record.
type State string

const (
	StateActive          State = "active"
	StateInRenewalWindow State = "in_renewal_window"
	StateExpiredBlocked  State = "expired_blocked"
	StateAdminBlocked    State = "admin_blocked"
)

// StateAt derives the record's lifecycle state at the given instant.
func (r *Record) StateAt(now time.Time) State {
	nowMs := now.UnixMilli()
	if r.IsBlocked {
		if r.ValidUntil > nowMs {
			return StateAdminBlocked
		}
		return StateExpiredBlocked
	}
	if r.ValidUntil-nowMs <= r.RenewalWindow {
		return StateInRenewalWindow
	}
	return StateActive
}

func (r *Record) marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("license: marshal record %s: %w", r.License, err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("license: unmarshal record: %w", err)
	}
	return &r, nil
}

// NewLicenseID allocates a fresh license identifier: the id prefix followed
// by the hex digest of 32 random bytes, globally unique with overwhelming
// probability.
func NewLicenseID() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("license: generate id: %w", err)
	}
	digest := sha256.Sum256(buf[:])
	return licenseIDPrefix + hex.EncodeToString(digest[:]), nil
}

// NewUserKey generates the short secret handed to the user exactly once at
// issuance. Only its hash is ever persisted.
func NewUserKey() (string, error) {
	var buf [userKeyLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("license: generate user key: %w", err)
	}
	key := make([]byte, userKeyLength)
	for i, b := range buf {
		key[i] = userKeyAlphabet[int(b)%len(userKeyAlphabet)]
	}
	return string(key), nil
}

// HashUserKey is the one-way hash stored in place of the user key.
func HashUserKey(userKey string) string {
	digest := sha256.Sum256([]byte(userKey))
	return hex.EncodeToString(digest[:])
}

// durationForMonths converts a month count to the granted validity duration.
// Non-positive months select the engine default elsewhere; this helper
// assumes months >= 1.
func durationForMonths(months int) time.Duration {
	return time.Duration(months) * monthDuration
}

// formatReadableDate renders an epoch-millisecond instant the way outbound
// mail and the details endpoint present expiry dates.
func formatReadableDate(ms int64) string {
	t := time.UnixMilli(ms)
	return t.Format("01/02/2006") + " (" + t.Format("3:04:05 PM") + ")"
}

// formatRemaining renders the time left until an epoch-millisecond instant
// in the coarse seconds/minutes form the details endpoint uses.
func formatRemaining(validUntil int64, now time.Time) string {
	remainingMs := validUntil - now.UnixMilli()
	if remainingMs <= 0 {
		return "Expired"
	}
	seconds := remainingMs / 1000
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

// msToDays converts a millisecond duration to whole days, rounding down.
func msToDays(ms int64) int {
	return int(ms / (24 * int64(time.Hour/time.Millisecond)))
}
