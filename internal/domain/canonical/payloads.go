package canonical

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-attest/internal/domain/entity"
)

// ErrMissingPriorSignature is returned when a chained payload is requested
// before the signature it chains over exists
var ErrMissingPriorSignature = errors.New("canonical: prior signature missing")

// SignatureSchema describes an embedded signature envelope
var SignatureSchema = &Schema{
	Name: "signature",
	Fields: []FieldSpec{
		{Name: "data", Kind: KindString},
		{Name: "publicKey", Kind: KindString},
		{Name: "signedBy", Kind: KindString},
		{Name: "signedAt", Kind: KindTimestamp},
	},
}

var contentFields = []FieldSpec{
	{Name: "title", Kind: KindString},
	{Name: "description", Kind: KindString},
	{Name: "amount", Kind: KindDecimal},
	{Name: "date", Kind: KindDate},
	{Name: "receipts", Kind: KindStringList},
	{Name: "signedAt", Kind: KindTimestamp},
}

var chainedFields = append(append([]FieldSpec{}, contentFields...),
	FieldSpec{Name: "employeeSignature", Kind: KindObject, Nested: SignatureSchema},
	FieldSpec{Name: "action", Kind: KindString},
)

// SubmitSchema is signed by the employee on submit
var SubmitSchema = &Schema{Name: entity.ActionSubmit, Fields: contentFields}

// ValidateSchema is signed by the manager on validate
var ValidateSchema = &Schema{Name: entity.ActionValidate, Fields: chainedFields}

// SignSchema is signed by the director on sign
var SignSchema = &Schema{Name: entity.ActionSign, Fields: chainedFields}

// SignatureFields converts an envelope into nested canonical fields
func SignatureFields(sig *entity.Signature) Fields {
	return Fields{
		"data":      String(sig.Data),
		"publicKey": String(sig.PublicKey),
		"signedBy":  String(sig.SignedBy),
		"signedAt":  Timestamp(sig.SignedAt),
	}
}

func contentOf(r *entity.ExpenseReport, signedAt time.Time) Fields {
	return Fields{
		"title":       String(r.Title),
		"description": String(r.Description),
		"amount":      Decimal(r.Amount),
		"date":        Date(r.Date),
		"receipts":    StringList(r.Receipts),
		"signedAt":    Timestamp(signedAt),
	}
}

// SubmitPayload returns the bytes the employee signs
func SubmitPayload(r *entity.ExpenseReport, signedAt time.Time) ([]byte, error) {
	return SubmitSchema.Encode(contentOf(r, signedAt))
}

// ValidatePayload returns the bytes the manager signs, chained over the
// employee signature
func ValidatePayload(r *entity.ExpenseReport, signedAt time.Time) ([]byte, error) {
	return chainedPayload(ValidateSchema, r, signedAt)
}

// SignPayload returns the bytes the director signs, chained over the
// employee signature
func SignPayload(r *entity.ExpenseReport, signedAt time.Time) ([]byte, error) {
	return chainedPayload(SignSchema, r, signedAt)
}

func chainedPayload(schema *Schema, r *entity.ExpenseReport, signedAt time.Time) ([]byte, error) {
	if r.EmployeeSignature == nil {
		return nil, fmt.Errorf("%w: %s needs the employee signature", ErrMissingPriorSignature, schema.Name)
	}
	fields := contentOf(r, signedAt)
	fields["employeeSignature"] = Object(SignatureFields(r.EmployeeSignature))
	fields["action"] = String(schema.Name)
	return schema.Encode(fields)
}

// PayloadFor dispatches on the signing step name
func PayloadFor(step string, r *entity.ExpenseReport, signedAt time.Time) ([]byte, error) {
	switch step {
	case entity.ActionSubmit:
		return SubmitPayload(r, signedAt)
	case entity.ActionValidate:
		return ValidatePayload(r, signedAt)
	case entity.ActionSign:
		return SignPayload(r, signedAt)
	default:
		return nil, fmt.Errorf("canonical: %q is not a signing step", step)
	}
}
