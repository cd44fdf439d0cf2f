// Package dashboard serves a live change feed of the signed-in user's
// tasks over WebSocket, plus a small read-only HTTP API.
//
// Routes:
//
//	GET /health      {"status":"ok","clients":N}
//	GET /api/tasks   current task list (JSON)
//	GET /ws          WebSocket feed of Message values
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/tasks"
)

// MessageType names a feed frame.
type MessageType string

// Frame types.
const (
	// MessageTypeTaskUpdate: a task was written, acknowledged or deleted.
	MessageTypeTaskUpdate MessageType = "task_update"
	// MessageTypeSyncComplete: a pull finished, successfully or not.
	MessageTypeSyncComplete MessageType = "sync_complete"
	// MessageTypeStats: fresh counts for the signed-in user.
	MessageTypeStats MessageType = "stats"
)

// Message is one feed frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TaskUpdateData describes one committed change.
type TaskUpdateData struct {
	TaskID      string `json:"taskId"`
	Action      string `json:"action"` // upsert, synced, delete
	Title       string `json:"title,omitempty"`
	IsCompleted bool   `json:"isCompleted"`
	Synced      bool   `json:"synced"`
}

// StatsData carries the counts shown by `tsk status`.
type StatsData struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Unsynced  int `json:"unsynced"`
	Pending   int `json:"pendingJobs"`
}

// SyncCompleteData reports a pull.
type SyncCompleteData struct {
	Status    string        `json:"status"`
	Fetched   int           `json:"fetched"`
	Applied   int           `json:"applied"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Source is the query surface the server reads from; *tasks.Service
// implements it.
type Source interface {
	List(ctx context.Context, opts db.ListOptions) ([]*schema.Task, error)
	Status(ctx context.Context) (tasks.Status, error)
}

// Config configures NewServer.
type Config struct {
	// Port to listen on; 0 picks a free port.
	Port int
	// Host to bind; empty means all interfaces.
	Host string
	// Source answers /api/tasks and stats. Optional.
	Source Source
	// Logger defaults to the standard logger.
	Logger *log.Logger
}

// Server serves the HTTP API and the websocket feed.
type Server struct {
	addr   string
	source Source
	logger *log.Logger
	feed   *feed

	httpServer *http.Server
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer returns a stopped server.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		source: cfg.Source,
		logger: logger,
		feed:   newFeed(logger),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks", s.handleTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{taskID}", s.handleTask).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	return r
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.feed.run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Feed listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("WARNING: serve: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()
	s.feed.dropAll("server shutting down")

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutdown: %w", shutdownErr)
		}
	}
	s.wg.Wait()
	s.logger.Println("Feed stopped")
	return err
}

// Broadcast queues msg for every client. When the queue is full the frame
// is dropped with a warning.
func (s *Server) Broadcast(msg Message) {
	if s.ctx.Err() != nil {
		return
	}
	if !s.feed.enqueue(msg) {
		s.logger.Printf("WARNING: feed queue full, dropped %s frame", msg.Type)
	}
}

// BroadcastData encodes data as the payload of a t frame.
func (s *Server) BroadcastData(t MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("WARNING: encode %s frame: %v", t, err)
		return
	}
	s.Broadcast(Message{Type: t, Timestamp: time.Now(), Data: raw})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("Websocket accept: %v", err)
		return
	}

	// The first frame is always a stats snapshot.
	hello := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	if stats, ok := s.stats(r.Context()); ok {
		hello.Data, _ = json.Marshal(stats)
	}
	payload, _ := json.Marshal(hello)
	if err := send(r.Context(), conn, payload); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	n := s.feed.add(conn)
	s.logger.Printf("Client joined, %d connected", n)
	go s.feed.follow(s.ctx, conn)
}

func (s *Server) stats(ctx context.Context) (StatsData, bool) {
	if s.source == nil {
		return StatsData{}, false
	}
	st, err := s.source.Status(ctx)
	if err != nil {
		s.logger.Printf("WARNING: stats: %v", err)
		return StatsData{}, false
	}
	return StatsData{
		Total:     st.Counts.Total,
		Completed: st.Counts.Completed,
		Unsynced:  st.Counts.Unsynced,
		Pending:   st.Pending,
	}, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": s.ClientCount()})
}

// handleTasks lists tasks; ?all=true includes completed ones.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no task source"})
		return
	}

	opts := db.ListOptions{HideCompleted: r.URL.Query().Get("all") != "true"}
	list, err := s.source.List(r.Context(), opts)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no task source"})
		return
	}

	id := mux.Vars(r)["taskID"]
	list, err := s.source.List(r.Context(), db.ListOptions{})
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	for _, task := range list {
		if task.ID == id {
			writeJSON(w, http.StatusOK, task)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tasks.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, tasks.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<title>tsk feed</title>
<h1>tsk change feed</h1>
<ul>
  <li>websocket: <code>ws://%s/ws</code></li>
  <li><a href="/api/tasks">/api/tasks</a></li>
  <li><a href="/health">/health</a></li>
</ul>
`, r.Host)
}

// GetAddr returns the bound address once started, else the configured one.
func (s *Server) GetAddr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// ClientCount returns how many websocket clients are connected.
func (s *Server) ClientCount() int {
	return s.feed.count()
}
