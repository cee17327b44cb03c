// Package license implements the license lifecycle state machine: issuing
// licenses bound to a hashed user key, verifying them, enforcing the
// renewal-window and blocking semantics, and sweeping the full record set on
// a fixed cadence.
//
// # States
//
// A license is in exactly one of four states, all derived from the stored
// record rather than tracked separately:
//
//   - Active: not blocked, now < validUntil, outside the renewal window
//   - InRenewalWindow: not blocked, validUntil - now <= renewalWindow
//   - ExpiredBlocked: blocked with validUntil in the past (recoverable by
//     renewal while within one renewal window past expiry)
//   - AdminBlocked: blocked while still time-valid (not recoverable by
//     renewal; only an explicit unblock clears it)
//
// The stored shape of ExpiredBlocked and AdminBlocked is identical: a
// single isBlocked boolean. The renewal path infers which one applies from
// whether validUntil has passed. This conflation is deliberate and matches
// the system this service replaces.
//
// # Renewal window
//
// Each license carries its own renewal window, computed at issuance as a
// fraction of the granted duration. Renewal is permitted while
// timeUntilExpiration lies within [-renewalWindow, renewalWindow], both
// bounds inclusive. Above the window the attempt is refused with the instant
// at which the window opens; below it the license is permanently blocked.
//
// # Notifications
//
// Generate and Renew hand their mail off to a fire-and-forget dispatcher
// and return without awaiting delivery. The sweep awaits each notification
// sequentially per record so that one slow or failing delivery cannot pile
// up unbounded work, and isolates failures per record.
package license
