package dashboard

import (
	"context"
	"log"

	"github.com/mschirtzinger/tasksync/internal/db"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
)

// Handler turns store changes, pull results and external file changes into
// feed messages. Stats are recomputed on a separate goroutine (Run) so that
// store observers never query the store.
type Handler struct {
	server *Server
	userID string
	logger *log.Logger

	refresh chan struct{}
}

// NewHandler creates a handler that only forwards changes owned by userID.
func NewHandler(server *Server, userID string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server:  server,
		userID:  userID,
		logger:  logger,
		refresh: make(chan struct{}, 1),
	}
}

// Attach subscribes to committed changes of store.
func (h *Handler) Attach(store *db.DB) (cancel func()) {
	return store.Subscribe(h.OnChange)
}

// OnChange handles a committed store change.
func (h *Handler) OnChange(c db.Change) {
	if c.UserID != h.userID {
		return
	}

	data := TaskUpdateData{TaskID: c.TaskID, Action: c.Op.String()}
	if c.Task != nil {
		data.Title = c.Task.Title
		data.IsCompleted = c.Task.IsCompleted
		data.Synced = c.Task.Synced
	}
	h.server.BroadcastData(MessageTypeTaskUpdate, data)
	h.requestStats()
}

// OnPull handles a finished pull.
func (h *Handler) OnPull(res tsync.PullResult) {
	h.logger.Printf("Pull %s: applied=%d unchanged=%d skipped=%d in %v",
		res.Status, res.Applied, res.Unchanged, res.Skipped, res.Duration)

	data := SyncCompleteData{
		Status:    res.Status.String(),
		Fetched:   res.Fetched,
		Applied:   res.Applied,
		Unchanged: res.Unchanged,
		Skipped:   res.Skipped,
		Duration:  res.Duration,
	}
	if res.Err != nil {
		data.Error = res.Err.Error()
	}
	h.server.BroadcastData(MessageTypeSyncComplete, data)
	h.requestStats()
}

// OnExternalChange handles a write to the store file by another process.
// Its rows are not known, so only stats are refreshed.
func (h *Handler) OnExternalChange(ev db.ExternalChange) {
	h.logger.Printf("Store changed externally: %s", ev.Path)
	h.requestStats()
}

// Follow forwards watcher events until ctx is done or the watcher stops.
func (h *Handler) Follow(ctx context.Context, w *db.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			h.OnExternalChange(ev)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			h.logger.Printf("WARNING: watcher: %v", err)
		}
	}
}

func (h *Handler) requestStats() {
	select {
	case h.refresh <- struct{}{}:
	default:
	}
}

// Run broadcasts stats whenever a refresh was requested, until ctx is done.
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.refresh:
			if stats, ok := h.server.stats(ctx); ok {
				h.server.BroadcastData(MessageTypeStats, stats)
			}
		}
	}
}
