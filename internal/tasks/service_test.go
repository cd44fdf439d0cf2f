package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mschirtzinger/tasksync/internal/auth"
	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/netcheck"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
)

type fixture struct {
	db     *db.DB
	remote *remote.Memory
	net    *netcheck.Static
	engine *tsync.Engine
	svc    *Service
}

func setup(t *testing.T, user string) *fixture {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	f := &fixture{db: store, remote: remote.NewMemory(), net: netcheck.NewStatic(true)}
	f.engine = tsync.New(store, f.remote, f.net, tsync.WithLogger(tsync.DiscardLogger()))
	t.Cleanup(f.engine.Wait)
	f.svc = NewService(store, f.engine, auth.Static(user))
	return f
}

func (f *fixture) local(t *testing.T, id string) *schema.Task {
	t.Helper()
	task, err := f.db.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return task
}

func TestCreate_UnsyncedUntilPushCompletes(t *testing.T) {
	f := setup(t, "alice")
	ctx := context.Background()

	gate := f.remote.Hold(remote.OpSet)
	id, err := f.svc.Create(ctx, "  Buy milk ", "2 litres")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	<-gate.Entered()

	task := f.local(t, id)
	if task.Synced {
		t.Error("new task is synced before the push resolved")
	}
	if task.Title != "  Buy milk " || task.Description != "2 litres" || task.UserID != "alice" || task.IsCompleted {
		t.Errorf("created task = %+v", task)
	}
	if !task.CreatedAt.Equal(task.UpdatedAt) {
		t.Errorf("createdAt %v != updatedAt %v", task.CreatedAt, task.UpdatedAt)
	}

	gate.Release()
	f.engine.Wait()

	if !f.local(t, id).Synced {
		t.Error("task not synced after push")
	}
	if _, ok := f.remote.Get(id); !ok {
		t.Error("remote document missing")
	}
}

func TestCreate_Validation(t *testing.T) {
	f := setup(t, "alice")

	tests := []struct {
		name  string
		title string
	}{
		{"empty", ""},
		{"whitespace", " \t\n "},
		{"too long", strings.Repeat("x", 501)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.title, "")
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Create(%q) error = %v, want ErrValidation", tt.title, err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != "title" {
				t.Errorf("error = %#v, want title ValidationError", err)
			}
		})
	}

	if n, _ := f.db.GetTaskCount(context.Background()); n != 0 {
		t.Errorf("%d tasks written despite validation errors", n)
	}
	if f.remote.Calls(remote.OpSet) != 0 {
		t.Error("remote called despite validation errors")
	}
}

func TestMutations_RequireUser(t *testing.T) {
	f := setup(t, "")
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "title", ""); !errors.Is(err, ErrAuth) {
		t.Errorf("Create() error = %v, want ErrAuth", err)
	}
	if err := f.svc.Update(ctx, "0123456789abcdef01234567", "t", ""); !errors.Is(err, ErrAuth) {
		t.Errorf("Update() error = %v, want ErrAuth", err)
	}
	if err := f.svc.ToggleComplete(ctx, "0123456789abcdef01234567"); !errors.Is(err, ErrAuth) {
		t.Errorf("ToggleComplete() error = %v, want ErrAuth", err)
	}
	if err := f.svc.Delete(ctx, "0123456789abcdef01234567"); !errors.Is(err, ErrAuth) {
		t.Errorf("Delete() error = %v, want ErrAuth", err)
	}
	if _, err := f.svc.List(ctx, db.ListOptions{}); !errors.Is(err, ErrAuth) {
		t.Errorf("List() error = %v, want ErrAuth", err)
	}

	if res := f.svc.Pull(ctx); res.Status != tsync.PullNoUser {
		t.Errorf("Pull() status = %v, want no user", res.Status)
	}

	if n, _ := f.db.GetTaskCount(ctx); n != 0 {
		t.Errorf("%d tasks written without a user", n)
	}
	if f.remote.Calls(remote.OpSet)+f.remote.Calls(remote.OpUpdate)+f.remote.Calls(remote.OpDelete) != 0 {
		t.Error("remote written without a user")
	}
}

func TestUpdate(t *testing.T) {
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f := setup(t, "alice")
	f.svc.now = func() time.Time { return clock }
	ctx := context.Background()

	id, err := f.svc.Create(ctx, "first", "")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	f.engine.Wait()

	clock = clock.Add(time.Minute)
	f.net.Set(false)
	if err := f.svc.Update(ctx, id, "second", "details"); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	f.engine.Wait()

	task := f.local(t, id)
	if task.Title != "second" || task.Description != "details" {
		t.Errorf("updated task = %+v", task)
	}
	if task.Synced {
		t.Error("update left task synced")
	}
	if !task.UpdatedAt.Equal(clock) || task.CreatedAt.Equal(clock) {
		t.Errorf("timestamps created=%v updated=%v", task.CreatedAt, task.UpdatedAt)
	}

	if err := f.svc.Update(ctx, id, "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Update() with empty title error = %v, want ErrValidation", err)
	}
	if err := f.svc.Update(ctx, "0123456789abcdef01234567", "x", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() of missing task error = %v, want ErrNotFound", err)
	}
}

func TestToggleComplete_UnsyncedBeforeRemoteResolves(t *testing.T) {
	f := setup(t, "alice")
	ctx := context.Background()

	id, err := f.svc.Create(ctx, "toggle", "")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	f.engine.Wait()
	if !f.local(t, id).Synced {
		t.Fatal("precondition: task should be synced")
	}

	gate := f.remote.Hold(remote.OpUpdate)
	if err := f.svc.ToggleComplete(ctx, id); err != nil {
		t.Fatalf("ToggleComplete() failed: %v", err)
	}

	task := f.local(t, id)
	if !task.IsCompleted || task.Synced {
		t.Errorf("after toggle: completed=%v synced=%v, want true/false", task.IsCompleted, task.Synced)
	}

	<-gate.Entered()
	gate.Release()
	f.engine.Wait()

	if !f.local(t, id).Synced {
		t.Error("task not synced after toggle push")
	}
	doc, _ := f.remote.Get(id)
	if done, _ := doc.Bool(remote.FieldIsCompleted); !done {
		t.Error("remote not completed")
	}
}

func TestToggleComplete_KeepsUndeliveredEditOwed(t *testing.T) {
	f := setup(t, "alice")
	ctx := context.Background()

	id, err := f.svc.Create(ctx, "orig", "")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	f.engine.Wait()

	f.remote.SetError(remote.OpSet, errors.New("unavailable"))
	if err := f.svc.Update(ctx, id, "edited", ""); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	f.engine.Wait()
	f.remote.SetError(remote.OpSet, nil)

	if err := f.svc.ToggleComplete(ctx, id); err != nil {
		t.Fatalf("ToggleComplete() failed: %v", err)
	}
	f.engine.Wait()

	task := f.local(t, id)
	if task.Title != "edited" || !task.IsCompleted {
		t.Errorf("local = %+v", task)
	}
	if task.Synced {
		t.Error("toggle marked synced a record whose title never reached the remote")
	}
	doc, _ := f.remote.Get(id)
	if title, _ := doc.String(remote.FieldTitle); title != "orig" {
		t.Errorf("remote title = %q, want orig", title)
	}
	if done, _ := doc.Bool(remote.FieldIsCompleted); !done {
		t.Error("remote not completed")
	}
}

func TestDelete_HiddenEvenWhenRemoteFails(t *testing.T) {
	f := setup(t, "alice")
	ctx := context.Background()

	id, err := f.svc.Create(ctx, "doomed", "")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	f.engine.Wait()

	f.remote.SetError(remote.OpDelete, errors.New("service unavailable"))
	if err := f.svc.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() returned %v, want nil despite remote failure", err)
	}
	f.engine.Wait()

	list, err := f.svc.List(ctx, db.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("deleted task still listed: %+v", list)
	}
	if _, ok := f.remote.Get(id); !ok {
		t.Error("remote document should be orphaned after a failed delete")
	}

	if err := f.svc.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestOtherUsersTasksAreInvisible(t *testing.T) {
	alice := setup(t, "alice")
	ctx := context.Background()

	id, err := alice.svc.Create(ctx, "private", "")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	alice.engine.Wait()

	bob := NewService(alice.db, alice.engine, auth.Static("bob"))

	if _, err := bob.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := bob.ToggleComplete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("ToggleComplete() error = %v, want ErrNotFound", err)
	}
	if err := bob.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	list, _ := bob.List(ctx, db.ListOptions{})
	if len(list) != 0 {
		t.Errorf("bob sees %d tasks", len(list))
	}

	if _, err := alice.svc.Get(ctx, id); err != nil {
		t.Errorf("owner Get() failed: %v", err)
	}
}

func TestListNewestFirstAndStatus(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := setup(t, "alice")
	f.svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	f.net.Set(false)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		id, err := f.svc.Create(ctx, title, "")
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		ids = append(ids, id)
	}
	f.engine.Wait()
	if err := f.svc.ToggleComplete(ctx, ids[0]); err != nil {
		t.Fatalf("ToggleComplete() failed: %v", err)
	}
	f.engine.Wait()

	list, err := f.svc.List(ctx, db.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 3 || list[0].Title != "three" || list[2].Title != "one" {
		t.Errorf("List() order = %v", titles(list))
	}

	open, _ := f.svc.List(ctx, db.ListOptions{HideCompleted: true})
	if len(open) != 2 {
		t.Errorf("HideCompleted returned %d tasks, want 2", len(open))
	}

	st, err := f.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.UserID != "alice" || st.Counts.Total != 3 || st.Counts.Completed != 1 || st.Counts.Unsynced != 3 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestPull_DelegatesForSignedInUser(t *testing.T) {
	f := setup(t, "alice")
	now := time.Now()
	id := "0123456789abcdef01234567"
	f.remote.Put(id, remote.Fields{
		remote.FieldTitle:       "from elsewhere",
		remote.FieldIsCompleted: false,
		remote.FieldCreatedAt:   now,
		remote.FieldUpdatedAt:   now,
		remote.FieldUserID:      "alice",
	})

	res := f.svc.Pull(context.Background())
	if res.Status != tsync.PullOK || res.Applied != 1 {
		t.Fatalf("Pull() = %+v", res)
	}
	task, err := f.svc.Get(context.Background(), id)
	if err != nil || !task.Synced {
		t.Errorf("Get() = %+v, %v", task, err)
	}
}

func TestIsUserError(t *testing.T) {
	if !IsUserError(&ValidationError{Field: "title", Reason: "required"}) {
		t.Error("validation error not a user error")
	}
	if !IsUserError(ErrAuth) {
		t.Error("auth error not a user error")
	}
	if IsUserError(ErrLocalStore) || IsUserError(nil) {
		t.Error("store error or nil classified as user error")
	}
}

func titles(list []*schema.Task) []string {
	out := make([]string, len(list))
	for i, task := range list {
		out[i] = task.Title
	}
	return out
}

func TestResolve(t *testing.T) {
	f := setup(t, "alice")
	f.net.Set(false)
	ctx := context.Background()

	id, err := f.svc.Create(ctx, "findable", "")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if got, err := f.svc.Resolve(ctx, id); err != nil || got != id {
		t.Errorf("Resolve(full) = %q, %v", got, err)
	}
	if got, err := f.svc.Resolve(ctx, strings.ToUpper(id[len(id)-8:])); err != nil || got != id {
		t.Errorf("Resolve(suffix) = %q, %v", got, err)
	}
	if _, err := f.svc.Resolve(ctx, "zzzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.Resolve(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Resolve(\"\") error = %v, want ErrValidation", err)
	}
}
