// Package schema provides the Task record shared by the local store and the
// remote document collection.
package schema

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Version is the persisted local schema version. Bump it whenever a
// structural field change is made to the tasks table.
const Version = 2

// MaxTitleLength bounds the title in characters.
const MaxTitleLength = 500

// Task is the only entity. The same ID is used locally and remotely.
//
// Synced is local-only: it is true iff the current field values are known to
// be durably written to the remote store, and false while a push is owed.
type Task struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	IsCompleted bool      `json:"isCompleted" yaml:"isCompleted"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
	Synced      bool      `json:"synced" yaml:"synced"`
	UserID      string    `json:"userId" yaml:"userId"`
}

// NewID returns a fresh task identifier: a BSON ObjectID as 24 hex chars.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether id is a well-formed task identifier.
func ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// TitleEmpty reports whether a title is empty once surrounding whitespace
// is ignored.
func TitleEmpty(title string) bool {
	return strings.TrimSpace(title) == ""
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !ValidID(t.ID) {
		return fmt.Errorf("id %q is not a valid object id", t.ID)
	}
	if TitleEmpty(t.Title) {
		return fmt.Errorf("title is required")
	}
	if n := len([]rune(t.Title)); n > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, n)
	}
	if t.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updatedAt is required")
	}
	if t.UpdatedAt.Before(t.CreatedAt) {
		return fmt.Errorf("updatedAt %s is before createdAt %s",
			t.UpdatedAt.Format(time.RFC3339Nano), t.CreatedAt.Format(time.RFC3339Nano))
	}
	return nil
}

// Touch records a local mutation: the record owes a push and UpdatedAt
// moves to now. UpdatedAt is also the version a push acknowledges, so it
// strictly increases even when the clock stalls or steps backwards.
func (t *Task) Touch(now time.Time) {
	if now.Before(t.CreatedAt) {
		now = t.CreatedAt
	}
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Nanosecond)
	}
	t.UpdatedAt = now
	t.Synced = false
}

// Clone returns a copy that shares nothing with t.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
