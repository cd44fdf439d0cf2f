package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// JobKind names the remote write a job performs.
type JobKind int

const (
	// JobPush writes the full record with a merge Set.
	JobPush JobKind = iota
	// JobToggle writes only isCompleted and updatedAt.
	JobToggle
	// JobDelete removes the remote document.
	JobDelete
)

func (k JobKind) String() string {
	switch k {
	case JobPush:
		return "push"
	case JobToggle:
		return "toggle"
	case JobDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Job is one background remote write.
type Job struct {
	Kind   JobKind
	TaskID string

	done chan struct{}
	err  error
	// acked is true when the job marked the local record synced.
	acked bool
	// noAck keeps a successful write from acknowledging the record.
	noAck bool
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the job's outcome. It is only meaningful after Done is closed.
// A nil error means the remote write succeeded or there was nothing to do.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Acked reports whether the job flipped the local record to synced.
func (j *Job) Acked() bool {
	select {
	case <-j.done:
		return j.acked
	default:
		return false
	}
}

// Wait blocks until the job finishes and returns Err.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

func newJob(kind JobKind, id string) *Job {
	return &Job{Kind: kind, TaskID: id, done: make(chan struct{})}
}

// PushTask pushes the current local version of task id.
func (e *Engine) PushTask(ctx context.Context, id string) *Job {
	return e.spawn(ctx, newJob(JobPush, id), e.pushTask)
}

// PushToggle pushes the completion state of task id as a partial update.
// The remote document must already exist.
//
// owed reports whether the record was already unsynced before the toggle.
// Its other fields may then differ from the remote, so the partial write
// leaves the record unsynced.
func (e *Engine) PushToggle(ctx context.Context, id string, owed bool) *Job {
	job := newJob(JobToggle, id)
	job.noAck = owed
	return e.spawn(ctx, job, e.pushToggle)
}

// PushDelete removes task id remotely. The local record is expected to be
// gone already.
func (e *Engine) PushDelete(ctx context.Context, id string) *Job {
	return e.spawn(ctx, newJob(JobDelete, id), e.pushDelete)
}

func (e *Engine) spawn(ctx context.Context, job *Job, run func(context.Context, *Job) error) *Job {
	kind, id := job.Kind, job.TaskID
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	e.pending++
	e.mu.Unlock()
	e.jobs.Add(1)

	go func() {
		defer e.jobs.Done()
		defer func() {
			e.mu.Lock()
			e.pending--
			e.mu.Unlock()
			close(job.done)
		}()

		job.err = run(ctx, job)
		if job.err != nil {
			e.warnf("%s %s: %v", kind, id, job.err)
		}
	}()
	return job
}

func (e *Engine) pushTask(ctx context.Context, job *Job) error {
	task, err := e.db.Get(ctx, job.TaskID)
	if errors.Is(err, db.ErrNotFound) {
		e.debugf("push %s: record gone, nothing to do", job.TaskID)
		return nil
	}
	if err != nil {
		return err
	}
	if !e.checker.IsConnected(ctx) {
		return ErrOffline
	}

	payload := remote.Fields{
		remote.FieldTitle:       task.Title,
		remote.FieldDescription: task.Description,
		remote.FieldIsCompleted: task.IsCompleted,
		remote.FieldCreatedAt:   task.CreatedAt,
		remote.FieldUserID:      task.UserID,
		remote.FieldUpdatedAt:   e.now(),
	}
	if err := e.remote.Set(ctx, task.ID, payload, remote.SetOptions{Merge: true}); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrRemote, task.ID, err)
	}

	return e.ack(ctx, job, task)
}

func (e *Engine) pushToggle(ctx context.Context, job *Job) error {
	task, err := e.db.Get(ctx, job.TaskID)
	if errors.Is(err, db.ErrNotFound) {
		e.debugf("toggle %s: record gone, nothing to do", job.TaskID)
		return nil
	}
	if err != nil {
		return err
	}
	if !e.checker.IsConnected(ctx) {
		return ErrOffline
	}

	payload := remote.Fields{
		remote.FieldIsCompleted: task.IsCompleted,
		remote.FieldUpdatedAt:   e.now(),
	}
	if err := e.remote.Update(ctx, task.ID, payload); err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrRemote, task.ID, err)
	}

	return e.ack(ctx, job, task)
}

func (e *Engine) pushDelete(ctx context.Context, job *Job) error {
	if !e.checker.IsConnected(ctx) {
		return ErrOffline
	}
	if err := e.remote.Delete(ctx, job.TaskID); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrRemote, job.TaskID, err)
	}
	e.debugf("Deleted remote document %s", job.TaskID)
	return nil
}

// ack marks task synced if it is still at the version that was pushed.
func (e *Engine) ack(ctx context.Context, job *Job, task *schema.Task) error {
	if job.noAck {
		e.debugf("%s %s: earlier edits still owed, not acknowledged", job.Kind, task.ID)
		return nil
	}
	applied, err := e.db.MarkSynced(ctx, task.ID, task.UpdatedAt)
	if err != nil {
		return err
	}
	job.acked = applied
	if applied {
		e.debugf("%s %s: synced", job.Kind, task.ID)
	} else {
		e.debugf("%s %s: local record changed or removed, not acknowledged", job.Kind, task.ID)
	}
	return nil
}
