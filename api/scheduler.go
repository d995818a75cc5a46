/*
scheduler.go - Scheduled duplicate sweep

PURPOSE:
  Periodically reconciles every duplicated (client, plan, day) key in the
  store. Reads and writes already merge the days they touch; the sweep
  catches days nobody has opened since duplicates appeared and retries
  deletes an earlier partial reconciliation left behind.

CONFIGURATION:
  - Schedule: cron spec or descriptor (default "@every 1h")
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  scheduler, err := NewSweepScheduler(sweeper, "@every 1h", log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Sweep endpoint (manual sweep)
  - compliance/sweep.go: Sweeper
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/adherence-engine/compliance"
)

// DefaultSweepSchedule runs the sweep hourly.
const DefaultSweepSchedule = "@every 1h"

// SweepScheduler runs Sweeper.Sweep on a cron schedule.
type SweepScheduler struct {
	Sweeper *compliance.Sweeper
	Enabled bool
	Timeout time.Duration

	cron    *cron.Cron
	entry   cron.EntryID
	log     logrus.FieldLogger
	mu      sync.Mutex
	running bool
	last    compliance.SweepReport
}

// NewSweepScheduler validates schedule and prepares a stopped scheduler.
func NewSweepScheduler(sweeper *compliance.Sweeper, schedule string, log logrus.FieldLogger) (*SweepScheduler, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &SweepScheduler{
		Sweeper: sweeper,
		Enabled: true,
		Timeout: 5 * time.Minute,
		cron:    cron.New(),
		log:     log.WithField("component", "scheduler"),
	}
	id, err := s.cron.AddFunc(schedule, func() { s.RunNow(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.entry = id
	return s, nil
}

// Start begins the scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("sweep scheduler disabled, not starting")
		return
	}
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.WithField("next_run", s.NextRunTime()).Info("sweep scheduler started")
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("sweep scheduler stopped")
}

// RunNow performs one sweep immediately and returns its report.
func (s *SweepScheduler) RunNow(ctx context.Context) (compliance.SweepReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	report, err := s.Sweeper.Sweep(ctx)
	if err != nil {
		s.log.WithError(err).Error("scheduled sweep failed")
		return report, err
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"records":    report.Records,
		"duplicated": report.Duplicated,
		"removed":    report.Removed,
		"leftover":   report.Leftover,
		"took":       time.Since(start).String(),
	}).Info("sweep finished")
	return report, nil
}

// LastReport returns the report of the most recent successful sweep.
func (s *SweepScheduler) LastReport() compliance.SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// NextRunTime returns when the next sweep is scheduled. Zero until Start.
func (s *SweepScheduler) NextRunTime() time.Time {
	return s.cron.Entry(s.entry).Next
}
