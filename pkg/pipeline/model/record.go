package model

import "github.com/pkg/errors"

// ErrTypeMismatch is returned when the wrong view of a record is
// requested, e.g. the text of a structured record.
var ErrTypeMismatch = errors.New("record type mismatch")

// Record is the unit flowing through the pipeline. It is exactly one
// of text or structured; the mutation API keeps the two payloads
// mutually exclusive.
type Record struct {
	text       string
	fields     *Fields
	structured bool
}

// NewText creates a text record.
func NewText(content string) *Record {
	return &Record{text: content}
}

// NewStructured creates a structured record. A nil fields argument
// yields an empty mapping.
func NewStructured(fields *Fields) *Record {
	if fields == nil {
		fields = NewFields()
	}
	return &Record{fields: fields, structured: true}
}

// IsText reports whether the record holds unstructured text.
func (r *Record) IsText() bool { return !r.structured }

// IsStructured reports whether the record holds a field mapping.
func (r *Record) IsStructured() bool { return r.structured }

// Text returns the text content, or ErrTypeMismatch for a structured
// record.
func (r *Record) Text() (string, error) {
	if r.structured {
		return "", errors.Wrap(ErrTypeMismatch, "structured record has no text view")
	}
	return r.text, nil
}

// Structured returns the mutable field mapping, or ErrTypeMismatch for
// a text record.
func (r *Record) Structured() (*Fields, error) {
	if !r.structured {
		return nil, errors.Wrap(ErrTypeMismatch, "text record has no structured view")
	}
	return r.fields, nil
}

// ReplaceText atomically swaps the record to a text payload.
func (r *Record) ReplaceText(content string) {
	r.text = content
	r.fields = nil
	r.structured = false
}

// ReplaceStructured atomically swaps the record to a structured payload.
func (r *Record) ReplaceStructured(fields *Fields) {
	if fields == nil {
		fields = NewFields()
	}
	r.text = ""
	r.fields = fields
	r.structured = true
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r.structured {
		return NewStructured(r.fields.Clone())
	}
	return NewText(r.text)
}
