package entity

import "errors"

// Error kinds surfaced to callers of the approval core. They are stable and
// never retried internally; classify with errors.Is.
var (
	// ErrUnauthorized is returned when the caller's role or identity may not perform the action
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState is returned when a transition is not legal from the current status
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadySigned is returned when the signature slot for a step is already populated
	ErrAlreadySigned = errors.New("already signed")

	// ErrSignatureInvalid is returned when a signature does not verify against its canonical payload
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrCryptoUnavailable is returned when keys or signatures cannot be produced
	ErrCryptoUnavailable = errors.New("crypto unavailable")

	// ErrConflict is returned when a conditional update lost against a concurrent writer
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned when a report does not exist
	ErrNotFound = errors.New("not found")

	// ErrMalformedSignature is returned for structurally broken envelopes
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrInvalidReport is returned when report input fails validation
	ErrInvalidReport = errors.New("invalid report")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidState, "invalid_state"},
	{ErrAlreadySigned, "already_signed"},
	{ErrSignatureInvalid, "signature_invalid"},
	{ErrCryptoUnavailable, "crypto_unavailable"},
	{ErrConflict, "conflict"},
	{ErrNotFound, "not_found"},
	{ErrMalformedSignature, "malformed_signature"},
	{ErrInvalidReport, "invalid_report"},
}

// ErrorCode maps an error to its stable code. Unknown errors map to "internal".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
