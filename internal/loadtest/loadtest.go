// Package loadtest drives a local store with many concurrent readers and
// writers to check query latency and the per-user visibility rule under
// contention.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/tasksync/internal/auth"
	"github.com/mschirtzinger/tasksync/internal/db"
	"github.com/mschirtzinger/tasksync/internal/netcheck"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
	"github.com/mschirtzinger/tasksync/internal/tasks"
)

// Fixture is a populated store shared by several users.
type Fixture struct {
	DB      *db.DB
	Remote  *remote.Memory
	Engine  *tsync.Engine
	Users   []string
	TaskIDs map[string][]string
}

// LatencyStats summarizes query timings.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
}

// NewFixture creates a store at dbPath holding perUser tasks for each of
// users synthetic users. Seeded tasks are marked synced.
func NewFixture(ctx context.Context, dbPath string, users, perUser int) (*Fixture, error) {
	store, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	rs := remote.NewMemory()
	f := &Fixture{
		DB:      store,
		Remote:  rs,
		Engine:  tsync.New(store, rs, netcheck.NewStatic(true)),
		TaskIDs: make(map[string][]string),
	}

	base := time.Now().Add(-30 * 24 * time.Hour).UTC()
	err = store.Write(ctx, func(tx *db.Tx) error {
		for u := 0; u < users; u++ {
			userID := fmt.Sprintf("user-%03d", u)
			f.Users = append(f.Users, userID)
			for i := 0; i < perUser; i++ {
				at := base.Add(time.Duration(u*perUser+i) * time.Minute)
				task := &schema.Task{
					ID:          schema.NewID(),
					Title:       fmt.Sprintf("Task %d of %s", i, userID),
					IsCompleted: i%4 == 0,
					CreatedAt:   at,
					UpdatedAt:   at,
					Synced:      true,
					UserID:      userID,
				}
				if err := tx.Upsert(task); err != nil {
					return err
				}
				f.TaskIDs[userID] = append(f.TaskIDs[userID], task.ID)
			}
		}
		return nil
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to seed tasks: %w", err)
	}
	return f, nil
}

// Close waits for pushes and closes the store.
func (f *Fixture) Close() error {
	f.Engine.Wait()
	return f.DB.Close()
}

// Service returns a task service signed in as userID.
func (f *Fixture) Service(userID string) *tasks.Service {
	return tasks.NewService(f.DB, f.Engine, auth.Static(userID))
}

// RunConcurrentQueries has readers goroutines each list a random user's
// tasks queries times. Every result is checked for foreign tasks.
func (f *Fixture) RunConcurrentQueries(ctx context.Context, readers, queries int) (*LatencyStats, error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		errs      []error
	)

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(reader)))
			local := make([]time.Duration, 0, queries)

			for q := 0; q < queries; q++ {
				userID := f.Users[rng.Intn(len(f.Users))]
				start := time.Now()
				list, err := f.DB.ListByUser(ctx, userID, db.ListOptions{})
				local = append(local, time.Since(start))
				if err == nil {
					err = checkOwner(list, userID)
				}
				if err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("reader %d query %d: %w", reader, q, err))
					mu.Unlock()
					return
				}
			}

			mu.Lock()
			durations = append(durations, local...)
			mu.Unlock()
		}(r)
	}
	wg.Wait()

	if len(durations) == 0 {
		return nil, fmt.Errorf("no successful queries: %w", errors.Join(errs...))
	}
	stats := computeLatencyStats(durations)
	stats.Errors = len(errs)
	return stats, errors.Join(errs...)
}

// RunMixed runs readers alongside one writer per user for duration. Each
// writer creates and toggles tasks through the service, so pushes run in
// the background while readers query.
func (f *Fixture) RunMixed(ctx context.Context, readers int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, readers+len(f.Users))

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			userID := f.Users[reader%len(f.Users)]
			for ctx.Err() == nil {
				list, err := f.DB.ListByUser(ctx, userID, db.ListOptions{HideCompleted: true})
				if err == nil {
					err = checkOwner(list, userID)
				}
				if err != nil && ctx.Err() == nil {
					errCh <- fmt.Errorf("reader %d: %w", reader, err)
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(r)
	}

	for _, userID := range f.Users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			svc := f.Service(userID)
			for i := 0; ctx.Err() == nil; i++ {
				id, err := svc.Create(ctx, fmt.Sprintf("load %d", i), "")
				if err == nil {
					err = svc.ToggleComplete(ctx, id)
				}
				if err != nil && ctx.Err() == nil {
					errCh <- fmt.Errorf("writer %s: %w", userID, err)
					return
				}
			}
		}(userID)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func checkOwner(list []*schema.Task, userID string) error {
	for _, task := range list {
		if task.UserID != userID {
			return fmt.Errorf("list for %s returned task %s owned by %s", userID, task.ID, task.UserID)
		}
	}
	return nil
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
	}
}

// Fprint writes the statistics as an aligned table.
func (s *LatencyStats) Fprint(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
