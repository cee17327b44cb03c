package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"licensor/internal/store"
)

var (
	// ErrUnauthenticated means the signature did not recover to a
	// whitelisted key, or the independent verify step disagreed with the
	// recovery step.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrMalformedSignature means the signature payload is structurally
	// invalid and never reached cryptographic verification.
	ErrMalformedSignature = errors.New("auth: malformed signature")
)

// Authenticator verifies detached recoverable signatures against the
// store-backed public key whitelist. It holds no authoritative state of its
// own; every decision is a read over the store.
type Authenticator struct {
	store  *store.Store
	logger *slog.Logger
}

// NewAuthenticator wires an authenticator to its store handle.
func NewAuthenticator(s *store.Store, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		store:  s,
		logger: logger.With(slog.String("component", "authenticator")),
	}
}

// Authenticate checks a (message, signature) pair and returns the hex
// encoding of the admitted signer's public key.
//
// The digest of message is hashed with SHA-256, the candidate public key is
// recovered from the compact signature, canonicalized, and looked up in the
// whitelist. Only after membership is confirmed is the signature verified
// again against the recovered key: both the recovery step and the verify
// step must agree before the caller is admitted.
func (a *Authenticator) Authenticate(message []byte, sig *Signature) (string, error) {
	digest := sha256.Sum256(message)

	compact, err := sig.compact()
	if err != nil {
		return "", err
	}

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: recovery failed: %v", ErrUnauthenticated, err)
	}
	pubKeyHex := hex.EncodeToString(pub.SerializeUncompressed())

	whitelisted, err := a.IsWhitelisted(pubKeyHex)
	if err != nil {
		return "", err
	}
	if !whitelisted {
		a.logger.Warn("unauthorized access attempt",
			slog.String("public_key", pubKeyHex))
		return "", fmt.Errorf("%w: key not whitelisted", ErrUnauthenticated)
	}

	r, s, err := sig.scalars()
	if err != nil {
		return "", err
	}
	if !ecdsa.NewSignature(r, s).Verify(digest[:], pub) {
		a.logger.Warn("signature verification failed after recovery",
			slog.String("public_key", pubKeyHex))
		return "", fmt.Errorf("%w: signature verification failed", ErrUnauthenticated)
	}

	a.logger.Info("request admitted", slog.String("public_key", pubKeyHex))
	return pubKeyHex, nil
}

// IsWhitelisted reports store membership for the canonical hex key.
func (a *Authenticator) IsWhitelisted(pubKeyHex string) (bool, error) {
	_, err := a.store.Get(store.PubKeyPrefix + pubKeyHex)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RegisterKey adds a public key to the whitelist. The key must decode to a
// valid curve point; it is stored in canonical uncompressed hex regardless
// of the encoding supplied. Registering a present key is a no-op.
func (a *Authenticator) RegisterKey(pubKeyHex string) error {
	canonical, err := CanonicalizeKey(pubKeyHex)
	if err != nil {
		return err
	}

	present, err := a.IsWhitelisted(canonical)
	if err != nil {
		return err
	}
	if present {
		a.logger.Info("key already whitelisted", slog.String("public_key", canonical))
		return nil
	}

	if err := a.store.Put(store.PubKeyPrefix+canonical, presenceMarker); err != nil {
		return err
	}
	a.logger.Info("public key registered", slog.String("public_key", canonical))
	return nil
}

// SeedKeys idempotently populates the whitelist with the configured
// bootstrap keys, returning how many were newly added. Invalid keys abort
// the seeding so a typo in configuration is caught at startup.
func (a *Authenticator) SeedKeys(keys []string) (int, error) {
	added := 0
	for _, key := range keys {
		canonical, err := CanonicalizeKey(key)
		if err != nil {
			return added, fmt.Errorf("seed key %q: %w", truncateKey(key), err)
		}
		present, err := a.IsWhitelisted(canonical)
		if err != nil {
			return added, err
		}
		if present {
			continue
		}
		if err := a.store.Put(store.PubKeyPrefix+canonical, presenceMarker); err != nil {
			return added, err
		}
		added++
	}
	a.logger.Info("whitelist seeded",
		slog.Int("seeded", len(keys)),
		slog.Int("added", added))
	return added, nil
}

// presenceMarker is the value stored for whitelist entries; membership
// itself is the only state.
var presenceMarker = []byte("1")

// CanonicalizeKey parses a hex public key in any supported point encoding
// and returns the hex of its 65-byte uncompressed form.
func CanonicalizeKey(pubKeyHex string) (string, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", fmt.Errorf("%w: public key is not hex: %v", ErrMalformedSignature, err)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid public key: %v", ErrMalformedSignature, err)
	}
	return hex.EncodeToString(pub.SerializeUncompressed()), nil
}

func truncateKey(key string) string {
	if len(key) <= 16 {
		return key
	}
	return key[:16] + "..."
}
