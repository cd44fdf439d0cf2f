package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReportsStoreWrites(t *testing.T) {
	db := openTestDB(t)

	w, err := NewWatcher(db.Path(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err == nil {
		t.Error("second Start() should fail")
	}

	insert(t, db, newTask("alice", "watched", time.Now()))

	select {
	case ev := <-w.Events():
		if ev.Path == "" {
			t.Error("event has empty path")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no ExternalChange within 3s of a write")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tasks.db")

	w, err := NewWatcher(dbPath, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event for unrelated file: %+v", ev)
	case <-ctx.Done():
	}
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "tasks.db"), 0)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("Events() still open after Stop")
	}
	// Stop is idempotent
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}
