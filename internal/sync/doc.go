// Package sync reconciles the local record store with the remote document
// collection.
//
// Two flows run independently:
//
//	Pull:  remote.ListByOwner ──► one db.Write ──► every document upserted,
//	       synced = true (remote wins)
//
//	Push:  db record ──► remote.Set / Update / Delete (background Job)
//	       ──► db.MarkSynced(id, version) on success
//
// Pull is triggered explicitly (CLI start-up, `tsk sync`, a cron schedule in
// `tsk serve`). It never deletes local records that are missing remotely
// and never surfaces an error: failures are logged and reported in the
// returned PullResult.
//
// Pushes are spawned per mutation and run in the background on a context
// detached from the caller's cancellation. There is no retry: a failed push
// leaves the record with synced = false until the next successful push of
// a later mutation. The acknowledgment is guarded by the record's updatedAt,
// so a slow push for an older version never marks a newer one synced, and a
// push that finishes after the record was deleted does nothing.
//
// Usage:
//
//	engine := sync.New(store, remoteStore, checker, sync.WithLogger(logger))
//	defer engine.Wait()
//
//	res := engine.Pull(ctx, userID)
//	job := engine.PushTask(ctx, taskID)
//	<-job.Done()
package sync
