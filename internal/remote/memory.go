package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Operation names used by Memory for error injection and gating.
const (
	OpList   = "list"
	OpSet    = "set"
	OpUpdate = "update"
	OpDelete = "delete"
	OpPing   = "ping"
)

// Memory is an in-process Store. It backs the "memory" remote mode and the
// tests, which use SetError and Hold to simulate failures and slow networks.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]Fields
	errs  map[string]error
	gates map[string]*Gate
	calls map[string]int
}

// NewMemory returns an empty in-memory collection.
func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]Fields),
		errs:  make(map[string]error),
		gates: make(map[string]*Gate),
		calls: make(map[string]int),
	}
}

// Gate holds calls of one operation until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Entered receives once per call that reached the gate.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Release lets every held and future call through.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// Hold installs a gate on op. Calls block (respecting their context) until
// the gate is released.
func (m *Memory) Hold(op string) *Gate {
	g := &Gate{
		entered: make(chan struct{}, 64),
		release: make(chan struct{}),
	}
	m.mu.Lock()
	m.gates[op] = g
	m.mu.Unlock()
	return g
}

// SetError makes every call of op fail with err; nil clears it.
func (m *Memory) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Get returns a copy of document id, for inspection.
func (m *Memory) Get(id string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.docs[id]
	if !ok {
		return Document{}, false
	}
	return Document{ID: id, Fields: f.Clone()}, true
}

// Put stores a document directly, bypassing gates and errors.
func (m *Memory) Put(id string, fields Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = fields.Clone()
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// enter counts the call, waits on any gate, then returns the injected error.
func (m *Memory) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	g := m.gates[op]
	m.mu.Unlock()

	if g != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[op]
}

// ListByOwner implements Store.ListByOwner.
func (m *Memory) ListByOwner(ctx context.Context, userID string) ([]Document, error) {
	if err := m.enter(ctx, OpList); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := []Document{}
	for id, f := range m.docs {
		if owner, _ := f[FieldUserID].(string); owner == userID {
			docs = append(docs, Document{ID: id, Fields: f.Clone()})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Set implements Store.Set.
func (m *Memory) Set(ctx context.Context, id string, fields Fields, opts SetOptions) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	if err := m.enter(ctx, OpSet); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok || !opts.Merge {
		doc = make(Fields, len(fields))
	}
	for k, v := range fields {
		doc[k] = v
	}
	m.docs[id] = doc
	return nil
}

// Update implements Store.Update.
func (m *Memory) Update(ctx context.Context, id string, fields Fields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	if err := m.enter(ctx, OpUpdate); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

// Delete implements Store.Delete.
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := m.enter(ctx, OpDelete); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

// Ping implements Store.Ping.
func (m *Memory) Ping(ctx context.Context) error {
	return m.enter(ctx, OpPing)
}
