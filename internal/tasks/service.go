// Package tasks is the mutation and query surface for the signed-in user's
// tasks. Every mutation commits locally first and then hands the record to
// the sync engine; remote failures never reach the caller.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/tasksync/internal/auth"
	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/schema"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
)

// Service wires the local store, the sync engine and the identity.
type Service struct {
	db       *db.DB
	engine   *tsync.Engine
	identity auth.Identity
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for createdAt/updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(store *db.DB, engine *tsync.Engine, identity auth.Identity, opts ...Option) *Service {
	s := &Service{
		db:       store,
		engine:   engine,
		identity: identity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// User returns the signed-in user id or ErrAuth.
func (s *Service) User() (string, error) {
	userID, ok := s.identity.CurrentUser()
	if !ok || userID == "" {
		return "", ErrAuth
	}
	return userID, nil
}

func validateTitle(title string) error {
	if schema.TitleEmpty(title) {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if n := len([]rune(title)); n > schema.MaxTitleLength {
		return &ValidationError{
			Field:  "title",
			Reason: fmt.Sprintf("must be %d characters or less (got %d)", schema.MaxTitleLength, n),
		}
	}
	return nil
}

// Create inserts a new task owned by the signed-in user and starts its
// push. The title is stored as entered; only its emptiness check ignores
// surrounding whitespace.
func (s *Service) Create(ctx context.Context, title, description string) (string, error) {
	return s.Save(ctx, "", title, description)
}

// Update replaces the title and description of task id and starts its push.
func (s *Service) Update(ctx context.Context, id, title, description string) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	_, err := s.Save(ctx, id, title, description)
	return err
}

// Save is the shared create/edit path: an empty id creates.
func (s *Service) Save(ctx context.Context, id, title, description string) (string, error) {
	if err := validateTitle(title); err != nil {
		return "", err
	}
	userID, err := s.User()
	if err != nil {
		return "", err
	}

	now := s.now()
	err = s.db.Write(ctx, func(tx *db.Tx) error {
		if id == "" {
			id = schema.NewID()
			return tx.Upsert(&schema.Task{
				ID:          id,
				Title:       title,
				Description: description,
				UserID:      userID,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}

		task, err := getOwned(tx, id, userID)
		if err != nil {
			return err
		}
		task.Title = title
		task.Description = description
		task.Touch(now)
		return tx.Upsert(task)
	})
	if err != nil {
		return "", storeError(err)
	}

	s.engine.PushTask(ctx, id)
	return id, nil
}

// ToggleComplete flips isCompleted on task id and starts a partial push.
// The record is unsynced before this returns. If it already owed a push,
// the partial push does not mark it synced.
func (s *Service) ToggleComplete(ctx context.Context, id string) error {
	userID, err := s.User()
	if err != nil {
		return err
	}

	var owed bool
	err = s.db.Write(ctx, func(tx *db.Tx) error {
		task, err := getOwned(tx, id, userID)
		if err != nil {
			return err
		}
		owed = !task.Synced
		task.IsCompleted = !task.IsCompleted
		task.Touch(s.now())
		return tx.Upsert(task)
	})
	if err != nil {
		return storeError(err)
	}

	s.engine.PushToggle(ctx, id, owed)
	return nil
}

// Delete removes task id locally and starts a best-effort remote delete.
// A remote failure leaves an orphaned document; the local record is gone
// either way.
func (s *Service) Delete(ctx context.Context, id string) error {
	userID, err := s.User()
	if err != nil {
		return err
	}

	err = s.db.Write(ctx, func(tx *db.Tx) error {
		if _, err := getOwned(tx, id, userID); err != nil {
			return err
		}
		_, err := tx.Delete(id)
		return err
	})
	if err != nil {
		return storeError(err)
	}

	s.engine.PushDelete(ctx, id)
	return nil
}

// Get returns task id if the signed-in user owns it.
func (s *Service) Get(ctx context.Context, id string) (*schema.Task, error) {
	userID, err := s.User()
	if err != nil {
		return nil, err
	}

	task, err := s.db.Get(ctx, id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && task.UserID != userID) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, storeError(err)
	}
	return task, nil
}

// List returns the signed-in user's tasks, newest first.
func (s *Service) List(ctx context.Context, opts db.ListOptions) ([]*schema.Task, error) {
	userID, err := s.User()
	if err != nil {
		return nil, err
	}

	tasks, err := s.db.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, storeError(err)
	}
	return tasks, nil
}

// Pull merges the remote state for the signed-in user. Signed out or
// offline it does nothing.
func (s *Service) Pull(ctx context.Context) tsync.PullResult {
	userID, _ := s.identity.CurrentUser()
	return s.engine.Pull(ctx, userID)
}

// Status summarizes the signed-in user's store.
type Status struct {
	UserID  string
	Counts  db.Counts
	Pending int
}

// Status returns counts for the signed-in user.
func (s *Service) Status(ctx context.Context) (Status, error) {
	userID, err := s.User()
	if err != nil {
		return Status{}, err
	}

	counts, err := s.db.CountByUser(ctx, userID)
	if err != nil {
		return Status{}, storeError(err)
	}
	return Status{UserID: userID, Counts: counts, Pending: s.engine.Pending()}, nil
}

// getOwned reads id inside tx; another user's task is reported as missing.
func getOwned(tx *db.Tx, id, userID string) (*schema.Task, error) {
	task, err := tx.Get(id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && task.UserID != userID) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return task, err
}

func storeError(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLocalStore, err)
}

// Resolve expands ref, a full id or the trailing characters of one, to a
// task id owned by the signed-in user.
func (s *Service) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return "", &ValidationError{Field: "id", Reason: "required"}
	}
	if schema.ValidID(ref) {
		return ref, nil
	}

	all, err := s.List(ctx, db.ListOptions{})
	if err != nil {
		return "", err
	}

	var match string
	for _, task := range all {
		if strings.HasSuffix(task.ID, ref) {
			if match != "" {
				return "", &ValidationError{Field: "id", Reason: fmt.Sprintf("%q matches more than one task", ref)}
			}
			match = task.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return match, nil
}
