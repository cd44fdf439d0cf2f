package db

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches bursts of file events (a commit touches the WAL
// and shared-memory files several times).
const DefaultDebounce = 100 * time.Millisecond

// ExternalChange reports that the database file changed on disk, possibly
// by another process holding the same store open.
type ExternalChange struct {
	// Path is the file that changed last in the burst.
	Path string
	// At is when the burst was flushed.
	At time.Time
}

// Watcher observes a database file and its WAL companions with fsnotify.
// In-process writes are better observed with Subscribe; the watcher exists
// for writers the process cannot see, such as a second CLI invocation.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dbPath   string
	debounce time.Duration

	events chan ExternalChange
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	pending string
	lastAt  time.Time
}

// NewWatcher creates a watcher for the database at dbPath.
// The watcher must be started with Start() before it will emit events.
func NewWatcher(dbPath string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to resolve %s: %w", dbPath, err)
	}

	return &Watcher{
		watcher:  fw,
		dbPath:   abs,
		debounce: debounce,
		events:   make(chan ExternalChange, 16),
		errors:   make(chan error, 4),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the directory that holds the database.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.dbPath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(2)
	go w.processEvents()
	go w.flushLoop()

	return nil
}

// Stop stops watching and closes the Events and Errors channels.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced change notifications.
func (w *Watcher) Events() <-chan ExternalChange {
	return w.events
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.isStoreFile(event.Name) {
				continue
			}

			w.mu.Lock()
			w.pending = event.Name
			w.lastAt = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// flushLoop emits one ExternalChange once the store has been quiet for the
// debounce interval.
func (w *Watcher) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.mu.Lock()
			if w.pending == "" || now.Sub(w.lastAt) < w.debounce {
				w.mu.Unlock()
				continue
			}
			change := ExternalChange{Path: w.pending, At: now}
			w.pending = ""
			w.mu.Unlock()

			select {
			case w.events <- change:
			case <-w.done:
				return
			}
		}
	}
}

// isStoreFile matches the database file and its -wal / -shm companions.
func (w *Watcher) isStoreFile(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	return abs == w.dbPath || strings.HasPrefix(abs, w.dbPath+"-")
}
