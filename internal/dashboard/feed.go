package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single frame write to one client.
const writeTimeout = 5 * time.Second

// feedBuffer is how many frames may queue before Broadcast drops.
const feedBuffer = 100

// feed owns the connected websocket clients and fans queued frames out to
// them. A client whose write fails is dropped.
type feed struct {
	mu     sync.RWMutex
	conns  map[*websocket.Conn]struct{}
	frames chan Message
	logger *log.Logger
}

func newFeed(logger *log.Logger) *feed {
	return &feed{
		conns:  make(map[*websocket.Conn]struct{}),
		frames: make(chan Message, feedBuffer),
		logger: logger,
	}
}

// enqueue queues msg without blocking; it reports false when the queue is
// full.
func (f *feed) enqueue(msg Message) bool {
	select {
	case f.frames <- msg:
		return true
	default:
		return false
	}
}

func (f *feed) add(conn *websocket.Conn) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[conn] = struct{}{}
	return len(f.conns)
}

// drop forgets conn and closes it. Dropping twice is a no-op.
func (f *feed) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	f.mu.Lock()
	_, ok := f.conns[conn]
	delete(f.conns, conn)
	n := len(f.conns)
	f.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close(code, reason)
	f.logger.Printf("Client left, %d connected", n)
}

func (f *feed) dropAll(reason string) {
	for _, conn := range f.snapshot() {
		f.drop(conn, websocket.StatusGoingAway, reason)
	}
}

func (f *feed) snapshot() []*websocket.Conn {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*websocket.Conn, 0, len(f.conns))
	for conn := range f.conns {
		out = append(out, conn)
	}
	return out
}

func (f *feed) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.conns)
}

// run delivers queued frames until ctx is done.
func (f *feed) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.frames:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				f.logger.Printf("Dropping unencodable %s frame: %v", msg.Type, err)
				continue
			}
			for _, conn := range f.snapshot() {
				if err := send(ctx, conn, payload); err != nil {
					f.logger.Printf("Write to client failed: %v", err)
					f.drop(conn, websocket.StatusInternalError, "write failed")
				}
			}
		}
	}
}

// follow reads from conn until it closes, then drops it. Clients never
// send anything meaningful; reading is what notices a disconnect.
func (f *feed) follow(ctx context.Context, conn *websocket.Conn) {
	defer f.drop(conn, websocket.StatusNormalClosure, "")
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
