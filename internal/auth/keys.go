package auth

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyPair holds a freshly generated secp256k1 key pair in hex form. The
// public key uses the canonical uncompressed encoding the whitelist stores.
type KeyPair struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// GenerateKeyPair creates a new operator key pair. The service only ever
// sees the public half; the private key belongs to the caller.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("auth: generate key pair: %w", err)
	}
	return &KeyPair{
		PrivateKey: hex.EncodeToString(priv.Serialize()),
		PublicKey:  hex.EncodeToString(priv.PubKey().SerializeUncompressed()),
	}, nil
}
