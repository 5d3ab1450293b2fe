// Package signature produces and checks the per-step approval signatures.
//
// Trust model: every signing event mints a fresh ECDSA P-256 keypair, signs
// the canonical payload with SHA-256 and discards the private key. Only the
// public half is persisted, inside the envelope. There is no key registry, so
// a valid signature proves that whoever held the key at signing time produced
// exactly this payload. It does not authenticate a long-lived identity: the
// signedBy claim is trusted only because the authorization layer checked the
// caller's identity and role when the transition was accepted. The signature's
// job is tamper evidence for the payload.
package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/garyjia/expense-attest/internal/domain/entity"
)

// coordinateSize is the byte length of a P-256 scalar
const coordinateSize = 32

// Engine signs and verifies canonical payloads
type Engine struct {
	random io.Reader
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithRandom overrides the entropy source
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// WithClock overrides the clock used by Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a signature engine backed by crypto/rand
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		random: rand.Reader,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the signing time at the precision carried by envelopes
func (e *Engine) Now() time.Time {
	return entity.NormalizeTimestamp(e.now())
}

// GenerateAndSign signs payload with a freshly generated key and returns the
// envelope. signedAt must be the same instant encoded into payload.
func (e *Engine) GenerateAndSign(payload []byte, signedBy string, signedAt time.Time) (*entity.Signature, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), e.random)
	if err != nil {
		return nil, fmt.Errorf("%w: generate key: %v", entity.ErrCryptoUnavailable, err)
	}

	digest := sha256.Sum256(payload)
	r, s, err := ecdsa.Sign(e.random, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %v", entity.ErrCryptoUnavailable, err)
	}

	spki, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: export public key: %v", entity.ErrCryptoUnavailable, err)
	}

	return &entity.Signature{
		Data:      base64.StdEncoding.EncodeToString(encodeP1363(r, s)),
		PublicKey: base64.StdEncoding.EncodeToString(spki),
		SignedBy:  signedBy,
		SignedAt:  entity.NormalizeTimestamp(signedAt),
	}, nil
}

// Verify checks sig against payload. A cryptographic mismatch returns
// false with a nil error; structurally malformed envelopes return
// ErrMalformedSignature.
func (e *Engine) Verify(sig *entity.Signature, payload []byte) (bool, error) {
	if sig == nil {
		return false, fmt.Errorf("%w: missing envelope", entity.ErrMalformedSignature)
	}

	pub, err := parsePublicKey(sig.PublicKey)
	if err != nil {
		return false, err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sig.Data))
	if err != nil {
		return false, fmt.Errorf("%w: signature data is not base64", entity.ErrMalformedSignature)
	}
	r, s, err := parseSignature(raw)
	if err != nil {
		return false, err
	}

	digest := sha256.Sum256(payload)
	return ecdsa.Verify(pub, digest[:], r, s), nil
}

func parsePublicKey(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not base64", entity.ErrMalformedSignature)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not SPKI: %v", entity.ErrMalformedSignature, err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is %T, want ECDSA", entity.ErrMalformedSignature, key)
	}
	if pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: public key curve is %s, want P-256", entity.ErrMalformedSignature, pub.Curve.Params().Name)
	}
	return pub, nil
}

// parseSignature accepts the 64-byte IEEE P1363 form produced by WebCrypto
// and by this engine, or ASN.1 DER
func parseSignature(sig []byte) (*big.Int, *big.Int, error) {
	if len(sig) == 2*coordinateSize {
		r := new(big.Int).SetBytes(sig[:coordinateSize])
		s := new(big.Int).SetBytes(sig[coordinateSize:])
		return r, s, nil
	}

	var der struct {
		R *big.Int
		S *big.Int
	}
	rest, err := asn1.Unmarshal(sig, &der)
	if err != nil || len(rest) != 0 || der.R == nil || der.S == nil {
		return nil, nil, fmt.Errorf("%w: signature is neither P1363 nor DER", entity.ErrMalformedSignature)
	}
	return der.R, der.S, nil
}

func encodeP1363(r, s *big.Int) []byte {
	out := make([]byte, 2*coordinateSize)
	r.FillBytes(out[:coordinateSize])
	s.FillBytes(out[coordinateSize:])
	return out
}
