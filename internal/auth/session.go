// Package auth supplies the signed-in user identity. It holds no
// credentials and performs no verification: signing in only records which
// user id owns the tasks created on this device.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoSession is returned when nobody is signed in.
var ErrNoSession = errors.New("not signed in")

// Identity supplies the current user id. ok is false when nobody is
// signed in.
type Identity interface {
	CurrentUser() (userID string, ok bool)
}

// Session is the persisted sign-in record.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	SignedInAt time.Time `json:"signedInAt"`
}

// FileStore keeps the session in a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a session store at path (typically
// $TSK_HOME/session.json).
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the session file location.
func (s *FileStore) Path() string {
	return s.path
}

// Login records userID as the signed-in user, replacing any previous
// session.
func (s *FileStore) Login(userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		SignedInAt: time.Now().UTC(),
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	// Write atomically via temp file
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return sess, nil
}

// Logout clears the session. Logging out when signed out succeeds.
func (s *FileStore) Logout() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// Load reads the current session.
// Returns ErrNoSession if nobody is signed in.
func (s *FileStore) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", s.path, err)
	}
	if sess.UserID == "" {
		return nil, ErrNoSession
	}
	return &sess, nil
}

// CurrentUser implements Identity. A missing or unreadable session counts
// as signed out.
func (s *FileStore) CurrentUser() (string, bool) {
	sess, err := s.Load()
	if err != nil {
		return "", false
	}
	return sess.UserID, true
}

// Static is a fixed identity. The empty value is signed out.
type Static string

// CurrentUser implements Identity.
func (u Static) CurrentUser() (string, bool) {
	return string(u), u != ""
}
