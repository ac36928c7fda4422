// Package scheduler re-runs the discovery batch on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vpbank/snmp_diode/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Runner: interface for dependency injection
// ─────────────────────────────────────────────────────────────────────────────

// Runner is one complete batch over every configured target. *app.App is the
// production implementation; tests inject a mock.
type Runner interface {
	Run(ctx context.Context) (models.Report, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

// Scheduler calls its Runner immediately and then every interval until the
// context is cancelled. Runs never overlap: a run that outlasts the interval
// delays the next one instead of stacking it.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	runs    int
	failed  int
	lastRun time.Time

	done chan struct{}
}

// New creates a Scheduler. An interval of zero or less means a single run.
// The scheduler does NOT start automatically; call Start.
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs the scheduling loop and blocks until it ends. In single-run mode
// it returns the run's error. In periodic mode run errors are logged and the
// loop continues; it returns nil once ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	defer close(s.done)

	if s.interval <= 0 {
		_, err := s.fire(ctx)
		return err
	}

	s.logger.Info("scheduler: periodic discovery", "interval", s.interval.String())
	for {
		started := time.Now()
		if _, err := s.fire(ctx); err != nil {
			s.logger.Error("scheduler: run failed", "error", err.Error())
		}

		delay := time.Until(started.Add(s.interval))
		if delay < 0 {
			s.logger.Warn("scheduler: run outlasted interval",
				"interval", s.interval.String(),
				"overrun_ms", (-delay).Milliseconds(),
			)
			delay = 0
		}
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop waits for the scheduling loop to exit. The caller must cancel the
// context passed to Start before calling Stop.
func (s *Scheduler) Stop() {
	<-s.done
}

// Runs returns the number of completed and failed runs (for monitoring /
// tests).
func (s *Scheduler) Runs() (completed, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.failed
}

// LastRun returns the start time of the most recent run.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Scheduler) fire(ctx context.Context) (models.Report, error) {
	started := time.Now()
	s.mu.Lock()
	s.lastRun = started
	s.mu.Unlock()

	rep, err := s.runner.Run(ctx)

	s.mu.Lock()
	s.runs++
	if err != nil {
		s.failed++
	}
	n := s.runs
	s.mu.Unlock()

	s.logger.Debug("scheduler: run finished",
		"run", n,
		"run_id", rep.ID.String(),
		"devices", len(rep.Devices),
		"errors", len(rep.Errors),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return rep, err
}

// ─────────────────────────────────────────────────────────────────────────────
// noopWriter: discard log output when no logger is provided
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
