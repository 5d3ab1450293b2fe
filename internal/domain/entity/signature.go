package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the point-in-time representation used in signature
// envelopes and canonical payloads: UTC with exactly three fractional digits
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// NormalizeTimestamp truncates t to millisecond precision in UTC
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatTimestamp renders t in TimestampLayout after normalization
func FormatTimestamp(t time.Time) string {
	return NormalizeTimestamp(t).Format(TimestampLayout)
}

// ParseTimestamp parses an ISO-8601 timestamp and normalizes it
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return NormalizeTimestamp(t), nil
}

// Signature is the persisted envelope of one approval step. It is immutable
// once created; Data and PublicKey are standard base64.
type Signature struct {
	Data      string    `json:"data"`
	PublicKey string    `json:"publicKey"`
	SignedBy  string    `json:"signedBy"`
	SignedAt  time.Time `json:"signedAt"`
}

type signatureJSON struct {
	Data      string `json:"data"`
	PublicKey string `json:"publicKey"`
	SignedBy  string `json:"signedBy"`
	SignedAt  string `json:"signedAt"`
}

// MarshalJSON keeps signedAt in TimestampLayout so the envelope stays stable
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{
		Data:      s.Data,
		PublicKey: s.PublicKey,
		SignedBy:  s.SignedBy,
		SignedAt:  FormatTimestamp(s.SignedAt),
	})
}

// UnmarshalJSON decodes an envelope, normalizing signedAt
func (s *Signature) UnmarshalJSON(data []byte) error {
	var raw signatureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	signedAt, err := ParseTimestamp(raw.SignedAt)
	if err != nil {
		return fmt.Errorf("%w: signedAt: %v", ErrMalformedSignature, err)
	}
	*s = Signature{
		Data:      raw.Data,
		PublicKey: raw.PublicKey,
		SignedBy:  raw.SignedBy,
		SignedAt:  signedAt,
	}
	return nil
}

// Clone returns a copy of the signature, or nil
func (s *Signature) Clone() *Signature {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Confirmation is the director's unsigned attestation
type Confirmation struct {
	ConfirmedBy string    `json:"confirmedBy"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

// Rejection records who stopped a report and why
type Rejection struct {
	RejectedBy string    `json:"rejectedBy"`
	RejectedAt time.Time `json:"rejectedAt"`
	Reason     string    `json:"reason"`
}
