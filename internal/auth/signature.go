package auth

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// compactSigLen is the length of a compact recoverable signature:
// 1 header byte followed by 32-byte R and 32-byte S.
const compactSigLen = 65

// compactSigMagic is the header offset for uncompressed recovery, per the
// Bitcoin compact signature convention secp256k1 libraries share.
const compactSigMagic = 27

// Signature is the wire shape of a detached recoverable signature: R and S
// as big-endian hex scalars plus the recovery parameter that selects which
// of the candidate public keys the signature resolves to.
type Signature struct {
	R             string `json:"r"`
	S             string `json:"s"`
	RecoveryParam int    `json:"recoveryParam"`
}

// ParseSignature decodes the signature payload of a request. Clients send
// either a JSON object or a JSON string containing one (the latter is what
// signing tools that stringify the signature produce). Structural problems
// surface as ErrMalformedSignature.
func ParseSignature(raw []byte) (*Signature, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrMalformedSignature)
	}

	payload := raw
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
		}
		payload = []byte(inner)
	}

	var sig Signature
	if err := json.Unmarshal(payload, &sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if sig.R == "" || sig.S == "" {
		return nil, fmt.Errorf("%w: missing r or s", ErrMalformedSignature)
	}
	if sig.RecoveryParam != 0 && sig.RecoveryParam != 1 {
		return nil, fmt.Errorf("%w: recovery param %d out of range", ErrMalformedSignature, sig.RecoveryParam)
	}
	return &sig, nil
}

// compact converts the signature to the 65-byte compact recoverable form
// expected by the secp256k1 recovery routine.
func (s *Signature) compact() ([]byte, error) {
	r, err := decodeScalar(s.R)
	if err != nil {
		return nil, fmt.Errorf("%w: r: %v", ErrMalformedSignature, err)
	}
	sc, err := decodeScalar(s.S)
	if err != nil {
		return nil, fmt.Errorf("%w: s: %v", ErrMalformedSignature, err)
	}

	out := make([]byte, compactSigLen)
	out[0] = byte(compactSigMagic + s.RecoveryParam)
	copy(out[1:33], r)
	copy(out[33:65], sc)
	return out, nil
}

// scalars returns R and S as mod-N scalars for the independent verify step.
func (s *Signature) scalars() (*secp256k1.ModNScalar, *secp256k1.ModNScalar, error) {
	rb, err := decodeScalar(s.R)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: r: %v", ErrMalformedSignature, err)
	}
	sb, err := decodeScalar(s.S)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: s: %v", ErrMalformedSignature, err)
	}

	var r, sc secp256k1.ModNScalar
	if overflow := r.SetByteSlice(rb); overflow {
		return nil, nil, fmt.Errorf("%w: r overflows group order", ErrMalformedSignature)
	}
	if overflow := sc.SetByteSlice(sb); overflow {
		return nil, nil, fmt.Errorf("%w: s overflows group order", ErrMalformedSignature)
	}
	return &r, &sc, nil
}

// decodeScalar decodes a big-endian hex scalar, tolerating odd-length and
// short encodings (leading zeros stripped by big-number libraries), and
// left-pads the result to 32 bytes.
func decodeScalar(s string) ([]byte, error) {
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("scalar is %d bytes, want at most 32", len(b))
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out, nil
}

// SignCompact signs digest with the hex-encoded private key and returns the
// detached signature in wire form. Used by the key tooling and tests; the
// service itself never signs.
func SignCompact(privKeyHex string, digest []byte) (*Signature, error) {
	raw, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("auth: decode private key: %w", err)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)

	compact := ecdsa.SignCompact(priv, digest, false)
	return &Signature{
		R:             hex.EncodeToString(compact[1:33]),
		S:             hex.EncodeToString(compact[33:65]),
		RecoveryParam: int(compact[0] - compactSigMagic),
	}, nil
}
