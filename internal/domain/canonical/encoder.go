// Package canonical produces the deterministic byte strings that approval
// signatures cover.
//
// Every signing step has an explicit Schema: the exact field list and the
// representation of each field. Encoding never infers a representation from
// the Go value, and keys are ordered by field name at every nesting level, so
// a verifier that rebuilds the same fields from a stored report reproduces
// the signed bytes exactly.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-sql/civil"

	"github.com/garyjia/expense-attest/internal/domain/entity"
)

var (
	// ErrSchemaMismatch is returned when fields do not match the schema exactly
	ErrSchemaMismatch = errors.New("canonical: fields do not match schema")

	// ErrInvalidText is returned for strings that are not valid UTF-8
	ErrInvalidText = errors.New("canonical: invalid UTF-8 text")
)

// Kind tags the representation of a Value
type Kind int

const (
	KindString Kind = iota + 1
	KindDecimal
	KindDate
	KindTimestamp
	KindStringList
	KindObject
)

var kindNames = map[Kind]string{
	KindString:     "string",
	KindDecimal:    "decimal",
	KindDate:       "date",
	KindTimestamp:  "timestamp",
	KindStringList: "list",
	KindObject:     "object",
}

// String returns the name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Value is one tagged field value. Scalars are held in their final text form.
type Value struct {
	kind Kind
	text string
	list []string
	obj  Fields
}

// String wraps free text
func String(s string) Value {
	return Value{kind: KindString, text: s}
}

// Decimal wraps a fixed-point amount
func Decimal(a entity.Amount) Value {
	return Value{kind: KindDecimal, text: a.String()}
}

// Date wraps a calendar date, rendered YYYY-MM-DD
func Date(d civil.Date) Value {
	return Value{kind: KindDate, text: d.String()}
}

// Timestamp wraps a point in time, rendered as millisecond ISO-8601 UTC
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, text: entity.FormatTimestamp(t)}
}

// StringList wraps an ordered list of strings. Order is significant.
func StringList(items []string) Value {
	return Value{kind: KindStringList, list: append([]string{}, items...)}
}

// Object wraps a nested field mapping
func Object(f Fields) Value {
	return Value{kind: KindObject, obj: f}
}

// Kind returns the tag of the value
func (v Value) Kind() Kind {
	return v.kind
}

// Fields is a flat mapping from field name to value. Construction order is
// irrelevant to the encoding.
type Fields map[string]Value

// FieldSpec declares one field of a schema
type FieldSpec struct {
	Name   string
	Kind   Kind
	Nested *Schema
}

// Schema is the explicit field list for one payload shape
type Schema struct {
	Name   string
	Fields []FieldSpec
}

// Encode validates fields against the schema and returns the canonical bytes
func (s *Schema) Encode(fields Fields) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.encodeObject(&buf, fields); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Schema) encodeObject(buf *bytes.Buffer, fields Fields) error {
	if err := s.check(fields); err != nil {
		return err
	}

	specs := make([]FieldSpec, len(s.Fields))
	copy(specs, s.Fields)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	buf.WriteByte('{')
	for i, spec := range specs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, spec.Name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := s.encodeValue(buf, spec, fields[spec.Name]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (s *Schema) encodeValue(buf *bytes.Buffer, spec FieldSpec, v Value) error {
	switch v.kind {
	case KindString, KindDecimal, KindDate, KindTimestamp:
		return writeString(buf, v.text)
	case KindStringList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindObject:
		if spec.Nested == nil {
			return fmt.Errorf("%w: %s.%s has no nested schema", ErrSchemaMismatch, s.Name, spec.Name)
		}
		return spec.Nested.encodeObject(buf, v.obj)
	default:
		return fmt.Errorf("%w: %s.%s has unknown kind", ErrSchemaMismatch, s.Name, spec.Name)
	}
}

// check requires the field set to equal the schema's, kind for kind
func (s *Schema) check(fields Fields) error {
	for _, spec := range s.Fields {
		v, ok := fields[spec.Name]
		if !ok {
			return fmt.Errorf("%w: %s is missing %q", ErrSchemaMismatch, s.Name, spec.Name)
		}
		if v.kind != spec.Kind {
			return fmt.Errorf("%w: %s.%s is %s, want %s", ErrSchemaMismatch, s.Name, spec.Name, v.kind, spec.Kind)
		}
	}
	if len(fields) != len(s.Fields) {
		var extra []string
		for name := range fields {
			if !s.has(name) {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("%w: %s has unexpected fields %s", ErrSchemaMismatch, s.Name, strings.Join(extra, ","))
	}
	return nil
}

func (s *Schema) has(name string) bool {
	for _, spec := range s.Fields {
		if spec.Name == name {
			return true
		}
	}
	return false
}

// writeString emits s as a JSON string without HTML escaping
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidText
	}
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
