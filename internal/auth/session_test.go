package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_LoginLogout(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	if _, ok := store.CurrentUser(); ok {
		t.Fatal("CurrentUser() ok before login")
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load() error = %v, want ErrNoSession", err)
	}

	sess, err := store.Login("  alice  ")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if sess.UserID != "alice" || sess.ID == "" {
		t.Errorf("Login() = %+v", sess)
	}

	user, ok := store.CurrentUser()
	if !ok || user != "alice" {
		t.Errorf("CurrentUser() = %q, %v", user, ok)
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("session file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}

	if err := store.Logout(); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	if _, ok := store.CurrentUser(); ok {
		t.Error("CurrentUser() ok after logout")
	}
	if err := store.Logout(); err != nil {
		t.Errorf("second Logout() failed: %v", err)
	}
}

func TestFileStore_LoginReplacesSession(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	first, _ := store.Login("alice")
	second, err := store.Login("bob")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if first.ID == second.ID {
		t.Error("sessions share an id")
	}
	if user, _ := store.CurrentUser(); user != "bob" {
		t.Errorf("CurrentUser() = %q, want bob", user)
	}
}

func TestFileStore_RejectsBlankUser(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if _, err := store.Login("   "); err == nil {
		t.Error("Login() accepted a blank user id")
	}
}

func TestFileStore_CorruptSessionIsSignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path)

	if _, err := store.Load(); err == nil || errors.Is(err, ErrNoSession) {
		t.Errorf("Load() error = %v, want parse error", err)
	}
	if _, ok := store.CurrentUser(); ok {
		t.Error("corrupt session treated as signed in")
	}
}

func TestStatic(t *testing.T) {
	if _, ok := Static("").CurrentUser(); ok {
		t.Error("empty Static is signed in")
	}
	if u, ok := Static("carol").CurrentUser(); !ok || u != "carol" {
		t.Errorf("Static(carol) = %q, %v", u, ok)
	}
}
