package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vpbank/snmp_diode/models"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/config"
)

// ─────────────────────────────────────────────────────────────────────────────
// Discoverer: unit of work executor
// ─────────────────────────────────────────────────────────────────────────────

// Discoverer runs the full discovery sequence against one address.
type Discoverer interface {
	Discover(ctx context.Context, cfg config.DeviceConfig) (models.Device, error)
}

// Result is the outcome of one address's discovery. Exactly one of Device and
// Err is meaningful.
type Result struct {
	Address  string
	Device   models.Device
	Err      error
	Duration time.Duration
}

// ─────────────────────────────────────────────────────────────────────────────
// WorkerPool: fan-out dispatcher for discovery jobs
// ─────────────────────────────────────────────────────────────────────────────

// WorkerPool fans per-address discoveries out to N worker goroutines and
// collects every outcome, successful or not, into a shared output channel.
// Discoveries share no state; a failure never affects a sibling.
type WorkerPool struct {
	numWorkers int
	discoverer Discoverer
	output     chan<- Result
	logger     *slog.Logger

	jobs chan config.DeviceConfig
	wg   sync.WaitGroup
}

// NewWorkerPool creates a pool of numWorkers goroutines that run discoveries
// using d and send results to output.
func NewWorkerPool(numWorkers int, d Discoverer, output chan<- Result, logger *slog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 32
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		discoverer: d,
		output:     output,
		logger:     logger,
		jobs:       make(chan config.DeviceConfig, numWorkers*2),
	}
}

// Start launches the worker goroutines. They run until Stop is called or ctx
// is cancelled.
func (w *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.worker(ctx)
	}
}

// Submit enqueues one address. It blocks while the job channel is full and
// returns false if ctx is cancelled first.
func (w *WorkerPool) Submit(ctx context.Context, job config.DeviceConfig) bool {
	select {
	case w.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the job channel and waits for all workers to drain.
func (w *WorkerPool) Stop() {
	close(w.jobs)
	w.wg.Wait()
}

// worker is the per-goroutine loop. In-flight discoveries always complete and
// report; cancellation only stops the worker from taking new jobs. A job
// dequeued after cancellation is dropped without a Result so the caller can
// record it as never attempted.
func (w *WorkerPool) worker(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				w.logger.Debug("discovery skipped after cancellation", "address", job.IP)
				return
			}
			started := time.Now()
			dev, err := w.discoverer.Discover(ctx, job)
			res := Result{Address: job.IP, Device: dev, Err: err, Duration: time.Since(started)}
			if err != nil {
				w.logger.Warn("discovery failed",
					"address", job.IP,
					"error", err.Error(),
				)
			} else {
				w.logger.Debug("discovery completed",
					"address", job.IP,
					"device", dev.Name,
					"interfaces", len(dev.Interfaces),
					"duration_ms", res.Duration.Milliseconds(),
				)
			}
			w.output <- res
		case <-ctx.Done():
			return
		}
	}
}
