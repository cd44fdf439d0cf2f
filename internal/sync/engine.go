package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/netcheck"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

var (
	// ErrOffline is the result of a job that found no connectivity.
	ErrOffline = errors.New("device is offline")

	// ErrRemote wraps every failed remote call.
	ErrRemote = errors.New("remote sync failed")
)

// Engine runs pull merges and background pushes.
type Engine struct {
	db      *db.DB
	remote  remote.Store
	checker netcheck.Checker
	logger  *log.Logger
	verbose bool
	now     func() time.Time

	jobs    gosync.WaitGroup
	mu      gosync.Mutex
	pending int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Warnings are always written; progress lines
// only when verbose.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithVerbose enables progress logging.
func WithVerbose(verbose bool) Option {
	return func(e *Engine) { e.verbose = verbose }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over an initialized store.
//
// If no logger is given, a logger writing to stderr with a "[sync] " prefix
// is used.
func New(store *db.DB, rs remote.Store, checker netcheck.Checker, opts ...Option) *Engine {
	e := &Engine{
		db:      store,
		remote:  rs,
		checker: checker,
		logger:  log.New(os.Stderr, "[sync] ", log.LstdFlags),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DiscardLogger is a logger that drops everything, for tests and examples.
func DiscardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func (e *Engine) debugf(format string, args ...any) {
	if e.verbose {
		e.logger.Printf(format, args...)
	}
}

func (e *Engine) warnf(format string, args ...any) {
	e.logger.Printf("WARNING: "+format, args...)
}

// Wait blocks until every spawned job has finished.
func (e *Engine) Wait() {
	e.jobs.Wait()
}

// Pending returns the number of jobs still running.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// PullStatus says how a pull ended.
type PullStatus int

const (
	// PullOK means the remote was read and merged.
	PullOK PullStatus = iota
	// PullNoUser means nobody is signed in; nothing was done.
	PullNoUser
	// PullOffline means the device had no connectivity; nothing was done.
	PullOffline
	// PullFailed means the remote query or the local merge failed.
	PullFailed
)

func (s PullStatus) String() string {
	switch s {
	case PullOK:
		return "ok"
	case PullNoUser:
		return "no user"
	case PullOffline:
		return "offline"
	case PullFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PullResult reports the outcome of a pull.
type PullResult struct {
	Status    PullStatus
	Fetched   int
	Applied   int
	Unchanged int
	Skipped   int
	Duration  time.Duration
	// Err is set when Status is PullFailed.
	Err error
}

// Pull merges every remote document owned by userID into the local store.
//
// Each document is upserted with synced = true, overwriting local values
// whether or not the local record had unpushed edits. Local records that
// are missing remotely are kept. Pull never returns an error; see
// PullResult.
func (e *Engine) Pull(ctx context.Context, userID string) (res PullResult) {
	start := e.now()
	defer func() { res.Duration = e.now().Sub(start) }()

	if userID == "" {
		res.Status = PullNoUser
		e.debugf("Pull skipped: no signed-in user")
		return res
	}
	if !e.checker.IsConnected(ctx) {
		res.Status = PullOffline
		e.debugf("Pull skipped: offline")
		return res
	}

	docs, err := e.remote.ListByOwner(ctx, userID)
	if err != nil {
		res.Status = PullFailed
		res.Err = fmt.Errorf("%w: list documents: %w", ErrRemote, err)
		e.warnf("pull failed: %v", res.Err)
		return res
	}
	res.Fetched = len(docs)

	var applied, unchanged, skipped int
	err = e.db.Write(ctx, func(tx *db.Tx) error {
		applied, unchanged, skipped = 0, 0, 0
		for _, doc := range docs {
			task, changed, err := e.merge(tx, doc, userID, start)
			if err != nil {
				return err
			}
			switch {
			case task == nil:
				skipped++
			case !changed:
				unchanged++
			default:
				if err := tx.Upsert(task); err != nil {
					return fmt.Errorf("failed to upsert task %s: %w", task.ID, err)
				}
				applied++
			}
		}
		return nil
	})
	if err != nil {
		res.Status = PullFailed
		res.Err = fmt.Errorf("merge: %w", err)
		e.warnf("pull failed: %v", res.Err)
		return res
	}

	res.Status = PullOK
	res.Applied, res.Unchanged, res.Skipped = applied, unchanged, skipped
	e.debugf("Pull complete: fetched=%d applied=%d unchanged=%d skipped=%d",
		res.Fetched, res.Applied, res.Unchanged, res.Skipped)
	return res
}

// merge builds the post-pull record for doc. It returns a nil task when the
// document must be skipped, and changed = false when the local record
// already matches.
func (e *Engine) merge(tx *db.Tx, doc remote.Document, userID string, now time.Time) (*schema.Task, bool, error) {
	if !schema.ValidID(doc.ID) {
		e.warnf("skipping remote document %q: not a valid task id", doc.ID)
		return nil, false, nil
	}

	local, err := tx.Get(doc.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, false, err
	}

	task := &schema.Task{ID: doc.ID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	if local != nil {
		task = local.Clone()
	}

	if v, ok := doc.String(remote.FieldTitle); ok {
		task.Title = v
	}
	if v, ok := doc.String(remote.FieldDescription); ok {
		task.Description = v
	}
	if v, ok := doc.Bool(remote.FieldIsCompleted); ok {
		task.IsCompleted = v
	}
	if v, ok := doc.Time(remote.FieldCreatedAt); ok {
		task.CreatedAt = v
	}
	if v, ok := doc.Time(remote.FieldUpdatedAt); ok {
		task.UpdatedAt = v
	}
	if v, ok := doc.String(remote.FieldUserID); ok && v != "" {
		task.UserID = v
	}
	if task.UpdatedAt.Before(task.CreatedAt) {
		task.UpdatedAt = task.CreatedAt
	}
	task.Synced = true

	if err := task.Validate(); err != nil {
		e.warnf("skipping remote document %s: %v", doc.ID, err)
		return nil, false, nil
	}

	return task, local == nil || !sameTask(local, task), nil
}

func sameTask(a, b *schema.Task) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.IsCompleted == b.IsCompleted &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.Synced == b.Synced &&
		a.UserID == b.UserID
}
