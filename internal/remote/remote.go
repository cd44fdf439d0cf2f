// Package remote defines the remote document collection that tasks are
// pushed to and pulled from, with a Redis-backed implementation and an
// in-memory one.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Field names of a task document. A document never carries anything else.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldIsCompleted = "isCompleted"
	FieldCreatedAt   = "createdAt"
	FieldUpdatedAt   = "updatedAt"
	FieldUserID      = "userId"
)

// KnownFields lists every document field.
var KnownFields = []string{
	FieldTitle, FieldDescription, FieldIsCompleted,
	FieldCreatedAt, FieldUpdatedAt, FieldUserID,
}

var (
	// ErrNotFound is returned by Update when the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrUnknownField is returned when a payload names a field outside
	// KnownFields.
	ErrUnknownField = errors.New("unknown document field")
)

// Fields is a document payload. Values are string, bool or time.Time
// according to the field.
type Fields map[string]any

// Validate checks field names and value types.
func (f Fields) Validate() error {
	for k, v := range f {
		switch k {
		case FieldTitle, FieldDescription, FieldUserID:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("field %s: want string, got %T", k, v)
			}
		case FieldIsCompleted:
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("field %s: want bool, got %T", k, v)
			}
		case FieldCreatedAt, FieldUpdatedAt:
			if _, ok := v.(time.Time); !ok {
				return fmt.Errorf("field %s: want time.Time, got %T", k, v)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
	}
	return nil
}

// Clone returns a shallow copy; values are immutable types.
func (f Fields) Clone() Fields {
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

// Document is one task document as stored remotely.
type Document struct {
	ID     string
	Fields Fields
}

// String returns a string field and whether it is present.
func (d Document) String(key string) (string, bool) {
	v, ok := d.Fields[key].(string)
	return v, ok
}

// Bool returns a bool field and whether it is present.
func (d Document) Bool(key string) (bool, bool) {
	v, ok := d.Fields[key].(bool)
	return v, ok
}

// Time returns a time field and whether it is present.
func (d Document) Time(key string) (time.Time, bool) {
	v, ok := d.Fields[key].(time.Time)
	return v, ok
}

// SetOptions configures Set.
type SetOptions struct {
	// Merge leaves fields absent from the payload untouched. Without it the
	// document is replaced.
	Merge bool
}

// Store is the remote document collection.
//
// Every operation may fail (network, permission, not found). Callers treat
// failures as non-fatal.
type Store interface {
	// ListByOwner returns every document whose userId equals userID.
	ListByOwner(ctx context.Context, userID string) ([]Document, error)

	// Set writes fields to document id, creating it if needed.
	Set(ctx context.Context, id string, fields Fields, opts SetOptions) error

	// Update writes a partial payload to an existing document.
	// Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, id string, fields Fields) error

	// Delete removes document id. Deleting a missing document succeeds.
	Delete(ctx context.Context, id string) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// encodeValue renders a field value for string-typed backends.
func encodeValue(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// decodeFields parses raw string values by field name. Unknown fields and
// unparsable values are dropped, so a damaged document degrades to a
// partial one instead of failing the whole pull.
func decodeFields(raw map[string]string) Fields {
	out := make(Fields, len(raw))
	for k, s := range raw {
		switch k {
		case FieldTitle, FieldDescription, FieldUserID:
			out[k] = s
		case FieldIsCompleted:
			if b, err := strconv.ParseBool(s); err == nil {
				out[k] = b
			}
		case FieldCreatedAt, FieldUpdatedAt:
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				out[k] = t
			}
		}
	}
	return out
}
