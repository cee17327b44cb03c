// Package store provides durable ordered key-value persistence for license
// records and whitelisted public keys, backed by bbolt with a bounded
// in-process write-through cache.
//
// # Key Layout
//
// All records live in a single bucket under two disjoint prefixes:
//
//	license:<id>  -> LicenseRecord JSON
//	pubkey:<hex>  -> presence marker
//
// The prefixes cannot collide and can be scanned independently with
// ScanPrefix.
//
// # Consistency
//
// Writes go to bbolt synchronously and only then update the cache, so a
// cache read never races ahead of a confirmed write. A failed durable write
// leaves the cache untouched. The cache is a best-effort accelerator and
// never a source of truth: eviction only causes a fallback read against
// bbolt.
//
// # Concurrency
//
// The Store is safe for concurrent use. bbolt serializes writers; the cache
// carries its own mutex. The store assumes a single writer process per
// database file (bbolt enforces this with a file lock).
package store
