package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

// openTestDB opens a store with the schema initialized.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func newTask(userID, title string, created time.Time) *schema.Task {
	return &schema.Task{
		ID:        schema.NewID(),
		Title:     title,
		UserID:    userID,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func insert(t *testing.T, db *DB, tasks ...*schema.Task) {
	t.Helper()
	err := db.Write(context.Background(), func(tx *Tx) error {
		for _, task := range tasks {
			if err := tx.Upsert(task); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
}

func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	task := newTask("user-1", "Write report", created)
	task.Description = "quarterly"
	insert(t, db, task)

	got, err := db.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Title != "Write report" || got.Description != "quarterly" || got.UserID != "user-1" {
		t.Errorf("Get() = %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v (nanoseconds must survive)", got.CreatedAt, created)
	}
	if got.Synced || got.IsCompleted {
		t.Errorf("flags = synced:%v completed:%v, want both false", got.Synced, got.IsCompleted)
	}

	// Upsert with the same id replaces fields in place.
	task.Title = "Write final report"
	task.IsCompleted = true
	task.UpdatedAt = created.Add(time.Minute)
	insert(t, db, task)

	got, err = db.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Title != "Write final report" || !got.IsCompleted {
		t.Errorf("after update Get() = %+v", got)
	}

	count, err := db.GetTaskCount(ctx)
	if err != nil {
		t.Fatalf("GetTaskCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("GetTaskCount() = %d, want 1", count)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Get(context.Background(), schema.NewID())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestUpsert_RejectsInvalid(t *testing.T) {
	db := openTestDB(t)

	task := newTask("user-1", "", time.Now())
	err := db.Write(context.Background(), func(tx *Tx) error {
		return tx.Upsert(task)
	})
	if err == nil {
		t.Fatal("Upsert() of a task without a title succeeded")
	}
}

func TestWrite_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	good := newTask("user-1", "first", time.Now())
	err := db.Write(ctx, func(tx *Tx) error {
		if err := tx.Upsert(good); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Write() error = %v, want boom", err)
	}

	if _, err := db.Get(ctx, good.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("task from a failed transaction is visible: err = %v", err)
	}
}

func TestListByUser_ScopedAndSorted(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oldest := newTask("alice", "oldest", base)
	middle := newTask("alice", "middle", base.Add(time.Hour))
	newest := newTask("alice", "newest", base.Add(2*time.Hour))
	other := newTask("bob", "bob's", base.Add(3*time.Hour))
	insert(t, db, middle, other, oldest, newest)

	tasks, err := db.ListByUser(ctx, "alice", ListOptions{})
	if err != nil {
		t.Fatalf("ListByUser() failed: %v", err)
	}
	want := []string{"newest", "middle", "oldest"}
	if len(tasks) != len(want) {
		t.Fatalf("ListByUser() returned %d tasks, want %d", len(tasks), len(want))
	}
	for i, title := range want {
		if tasks[i].Title != title {
			t.Errorf("tasks[%d].Title = %q, want %q", i, tasks[i].Title, title)
		}
		if tasks[i].UserID != "alice" {
			t.Errorf("tasks[%d] belongs to %q", i, tasks[i].UserID)
		}
	}

	tasks, err = db.ListByUser(ctx, "alice", ListOptions{Since: base.Add(time.Hour), Limit: 1})
	if err != nil {
		t.Fatalf("ListByUser() failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "newest" {
		t.Errorf("ListByUser(Since, Limit) = %v", tasks)
	}
}

func TestListByUser_Filters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	done := newTask("alice", "done", time.Now())
	done.IsCompleted = true
	done.Synced = true
	open := newTask("alice", "open", time.Now())
	insert(t, db, done, open)

	tasks, err := db.ListByUser(ctx, "alice", ListOptions{HideCompleted: true})
	if err != nil {
		t.Fatalf("ListByUser() failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != open.ID {
		t.Errorf("HideCompleted returned %v", tasks)
	}

	tasks, err = db.ListByUser(ctx, "alice", ListOptions{UnsyncedOnly: true})
	if err != nil {
		t.Fatalf("ListByUser() failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != open.ID {
		t.Errorf("UnsyncedOnly returned %v", tasks)
	}

	counts, err := db.CountByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CountByUser() failed: %v", err)
	}
	if counts != (Counts{Total: 2, Completed: 1, Unsynced: 1}) {
		t.Errorf("CountByUser() = %+v", counts)
	}
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := newTask("alice", "gone soon", time.Now())
	insert(t, db, task)

	var removed bool
	err := db.Write(ctx, func(tx *Tx) error {
		var err error
		removed, err = tx.Delete(task.ID)
		return err
	})
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if !removed {
		t.Error("Delete() reported nothing removed")
	}

	// Idempotent
	err = db.Write(ctx, func(tx *Tx) error {
		var err error
		removed, err = tx.Delete(task.ID)
		return err
	})
	if err != nil || removed {
		t.Errorf("second Delete() = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestMarkSynced_Guards(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := newTask("alice", "ack me", time.Now())
	insert(t, db, task)

	// Stale version: the record was edited after the push was built.
	applied, err := db.MarkSynced(ctx, task.ID, task.UpdatedAt.Add(-time.Second))
	if err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	if applied {
		t.Error("MarkSynced() acknowledged a stale version")
	}

	applied, err = db.MarkSynced(ctx, task.ID, task.UpdatedAt)
	if err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}
	if !applied {
		t.Fatal("MarkSynced() did not apply for the current version")
	}
	got, _ := db.Get(ctx, task.ID)
	if !got.Synced {
		t.Error("Synced = false after MarkSynced")
	}

	// Missing record: no error, nothing created.
	missing := schema.NewID()
	applied, err = db.MarkSynced(ctx, missing, time.Now())
	if err != nil || applied {
		t.Errorf("MarkSynced(missing) = (%v, %v), want (false, nil)", applied, err)
	}
	if _, err := db.Get(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkSynced resurrected a missing task: err = %v", err)
	}
}

func TestSubscribe_DeliversCommittedChanges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []Change
	cancel := db.Subscribe(func(c Change) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})

	task := newTask("alice", "observed", time.Now())
	insert(t, db, task)
	if _, err := db.MarkSynced(ctx, task.ID, task.UpdatedAt); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	// A rolled back transaction produces nothing.
	_ = db.Write(ctx, func(tx *Tx) error {
		_, _ = tx.Delete(task.ID)
		return errors.New("abort")
	})

	cancel()
	insert(t, db, newTask("alice", "unobserved", time.Now()))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("observer saw %d changes, want 2: %+v", len(got), got)
	}
	if got[0].Op != OpUpsert || got[0].TaskID != task.ID {
		t.Errorf("got[0] = %+v, want upsert of %s", got[0], task.ID)
	}
	if got[1].Op != OpSynced || !got[1].Task.Synced {
		t.Errorf("got[1] = %+v, want synced", got[1])
	}
}

func TestWrite_ConcurrentWritersSerialized(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- db.Write(ctx, func(tx *Tx) error {
				return tx.Upsert(newTask("alice", "concurrent", time.Now()))
			})
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Errorf("concurrent Write() failed: %v", err)
		}
	}

	count, err := db.GetTaskCount(ctx)
	if err != nil {
		t.Fatalf("GetTaskCount() failed: %v", err)
	}
	if count != 10 {
		t.Errorf("GetTaskCount() = %d, want 10", count)
	}
}
