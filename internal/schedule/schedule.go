// Package schedule triggers periodic pulls for long-running processes.
package schedule

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron   *cron.Cron
	logger *log.Logger
}

// New returns a stopped scheduler in loc (nil means local time).
func New(loc *time.Location, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[schedule] ", log.LstdFlags)
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// Validate checks a spec without scheduling anything. Specs use the
// standard five fields or descriptors such as "@every 30s" and "@hourly".
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Add registers job under spec. A run that is still going when the next
// one is due is skipped rather than stacked.
func (s *Scheduler) Add(spec string, job func()) (cron.EntryID, error) {
	if err := Validate(spec); err != nil {
		return 0, err
	}
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("failed to schedule %q: %w", spec, err)
	}
	s.logger.Printf("Scheduled %q", spec)
	return id, nil
}

// Every registers job at a fixed interval.
func (s *Scheduler) Every(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	return s.Add(fmt.Sprintf("@every %s", interval), job)
}

// Next returns the next run time of entry id, or zero if unknown.
func (s *Scheduler) Next(id cron.EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
