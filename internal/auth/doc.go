// Package auth implements the signature admission gate. Every mutating
// request carries a detached recoverable ECDSA signature (secp256k1) over an
// arbitrary message. The gate recovers the signer's public key from the
// signature, checks it against the persisted whitelist, and then
// independently re-verifies the signature against the recovered key; both
// steps must agree before a request is admitted.
//
// The whitelist is a store-backed set under the pubkey: prefix. Keys are
// canonicalized to the hex encoding of the 65-byte uncompressed curve point.
// SeedKeys populates the whitelist idempotently at bootstrap; RegisterKey is
// the only runtime write path and is itself reachable only through an
// already-authenticated caller.
package auth
