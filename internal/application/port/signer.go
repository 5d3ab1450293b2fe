package port

import (
	"time"

	"github.com/garyjia/expense-attest/internal/domain/entity"
)

// SignatureEngine produces and checks approval signatures. It is satisfied
// by *signature.Engine.
type SignatureEngine interface {
	// Now returns the signing clock at envelope precision
	Now() time.Time

	GenerateAndSign(payload []byte, signedBy string, signedAt time.Time) (*entity.Signature, error)

	// Verify returns false with a nil error on a cryptographic mismatch
	Verify(sig *entity.Signature, payload []byte) (bool, error)
}
