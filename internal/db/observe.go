package db

import "github.com/mschirtzinger/tasksync/internal/schema"

// Op is the kind of committed change.
type Op int

const (
	// OpUpsert indicates a task was inserted or had its fields replaced.
	OpUpsert Op = iota
	// OpDelete indicates a task was removed.
	OpDelete
	// OpSynced indicates only the synced flag flipped to true.
	OpSynced
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	case OpSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Change describes one committed mutation.
type Change struct {
	Op     Op
	TaskID string
	UserID string
	// Task is a snapshot after the change; nil for OpDelete.
	Task *schema.Task
}

// Subscribe registers fn to receive every committed change and returns a
// function that removes it.
func (db *DB) Subscribe(fn func(Change)) (cancel func()) {
	db.obsMu.Lock()
	id := db.nextObsID
	db.nextObsID++
	db.observers[id] = fn
	db.obsMu.Unlock()

	return func() {
		db.obsMu.Lock()
		delete(db.observers, id)
		db.obsMu.Unlock()
	}
}

// notify is called with writeMu held, so deliveries keep commit order.
func (db *DB) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}

	db.obsMu.RLock()
	fns := make([]func(Change), 0, len(db.observers))
	for _, fn := range db.observers {
		fns = append(fns, fn)
	}
	db.obsMu.RUnlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}
