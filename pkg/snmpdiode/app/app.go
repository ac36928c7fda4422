// Package app wires the SNMP Diode stages together for one batch run.
//
// Discovery path:
//
//	targets → WorkerPool → [resultCh] → collector → Report
//
// Refresh path, for one address reported by the trap receiver:
//
//	trap.Notification → Watch → Refresh → Discoverer → Report
//
// Output path, after every discovery attempt has finished:
//
//	Report.Devices → producer/entities → format/json → transport/file   (dry run)
//	Report.Devices → producer/entities → transport/diode                (-apply)
//
// The Report is then written to the history store when one is configured.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	jsonformat "github.com/vpbank/snmp_diode/format/json"
	"github.com/vpbank/snmp_diode/models"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/catalog"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/config"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/discovery"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/poller"
	"github.com/vpbank/snmp_diode/producer/entities"
	"github.com/vpbank/snmp_diode/store/sqlite"
	"github.com/vpbank/snmp_diode/transport/diode"
	filetransport "github.com/vpbank/snmp_diode/transport/file"
)

// ErrCancelled is recorded for every address that was never attempted
// because the run was cancelled.
var ErrCancelled = errors.New("discovery cancelled")

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Ingester ships one device's entities. *diode.Client is the production
// implementation.
type Ingester interface {
	Ingest(ctx context.Context, entities []models.Entity) (diode.IngestResult, error)
}

// Config holds the settings of one App. Zero-value fields fall back to
// documented defaults.
type Config struct {
	// Targets are the validated selections from config.Resolve.
	Targets []config.Target

	// Workers is the number of concurrent discoveries. Default: 32.
	Workers int

	// Catalog resolves sysObjectID. nil selects the built-in catalog.
	Catalog *catalog.Catalog

	// Apply sends entities to the ingestion service instead of printing them.
	Apply bool

	// Diode configures the ingestion client used with Apply.
	Diode diode.Config

	// Format and Output configure the dry-run output.
	Format jsonformat.Config
	Output filetransport.Config

	// StorePath enables the run history database when set.
	StorePath string

	// Discoverer and Ingester replace the SNMP engine and the HTTP client.
	// Tests use them; production leaves both nil.
	Discoverer poller.Discoverer
	Ingester   Ingester
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 32
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// App
// ─────────────────────────────────────────────────────────────────────────────

// App runs discovery batches. Create one with New, call Run any number of
// times (the scheduler calls it periodically) and release it with Close.
type App struct {
	cfg    Config
	logger *slog.Logger

	devices []config.DeviceConfig
	byAddr  map[string]int // address → index into devices

	discoverer poller.Discoverer
	producer   entities.Producer
	formatter  jsonformat.Formatter
	transport  filetransport.Transport
	ingester   Ingester
	store      *sqlite.Store
}

// New expands the targets and constructs every stage. It opens the output
// file and the history database; Close releases them.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()

	devices, err := expand(cfg.Targets, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		devices:    devices,
		byAddr:     make(map[string]int, len(devices)),
		discoverer: cfg.Discoverer,
		producer:   entities.New(logger),
		ingester:   cfg.Ingester,
	}
	for i, d := range devices {
		a.byAddr[d.IP] = i
	}
	if a.discoverer == nil {
		a.discoverer = discovery.New(cfg.Catalog, nil, logger)
	}

	if cfg.Apply {
		if a.ingester == nil {
			a.ingester = diode.New(cfg.Diode, logger)
		}
	} else {
		a.formatter = jsonformat.New(cfg.Format, logger)
		t, err := filetransport.New(cfg.Output, logger)
		if err != nil {
			return nil, fmt.Errorf("app: open output: %w", err)
		}
		a.transport = t
	}

	if cfg.StorePath != "" {
		s, err := sqlite.Open(cfg.StorePath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: open store: %w", err)
		}
		a.store = s
	}

	logger.Info("app: ready",
		"targets", len(cfg.Targets),
		"addresses", len(devices),
		"workers", cfg.Workers,
		"apply", cfg.Apply,
		"store", cfg.StorePath,
	)
	return a, nil
}

// Addresses returns the number of distinct addresses a run attempts.
func (a *App) Addresses() int { return len(a.devices) }

// Run performs one complete batch. The returned Report is always populated;
// the error reports output, ingestion or store failures. Per-address
// discovery failures are not errors here, they are in Report.Errors.
func (a *App) Run(ctx context.Context) (models.Report, error) {
	rep := a.discover(ctx)
	return rep, a.finish(ctx, rep, "app: run complete")
}

// finish delivers and records a Report. Delivery and bookkeeping run to
// completion even after cancellation: what was discovered is not thrown away.
func (a *App) finish(ctx context.Context, rep models.Report, msg string) error {
	outCtx := context.WithoutCancel(ctx)

	var errs []error
	if err := a.deliver(outCtx, rep); err != nil {
		errs = append(errs, err)
	}
	if a.store != nil {
		if err := a.store.SaveReport(outCtx, rep); err != nil {
			a.logger.Error("app: save report failed", "run_id", rep.ID.String(), "error", err.Error())
			errs = append(errs, fmt.Errorf("app: save report: %w", err))
		}
	}

	a.logger.Info(msg,
		"run_id", rep.ID.String(),
		"attempted", rep.Attempted(),
		"discovered", len(rep.Devices),
		"failed", len(rep.Errors),
		"duration_ms", rep.FinishedAt.Sub(rep.StartedAt).Milliseconds(),
	)
	return errors.Join(errs...)
}

// History returns the most recent runs from the store.
func (a *App) History(ctx context.Context, limit int) ([]sqlite.RunSummary, error) {
	if a.store == nil {
		return nil, fmt.Errorf("app: no history store configured")
	}
	return a.store.RecentRuns(ctx, limit)
}

// Close releases the output file and the history database.
func (a *App) Close() error {
	var errs []error
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close output: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Discovery stage
// ─────────────────────────────────────────────────────────────────────────────

// discover fans every address out to the worker pool and folds the results
// into a Report. Cancellation stops new submissions; in-flight discoveries
// finish and everything never attempted is recorded as ErrCancelled.
func (a *App) discover(ctx context.Context) models.Report {
	rep := models.Report{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		Errors:    make(map[string]string),
	}

	resultCh := make(chan poller.Result, a.cfg.Workers)
	pool := poller.NewWorkerPool(a.cfg.Workers, a.discoverer, resultCh, a.logger)

	seen := make(map[string]bool, len(a.devices))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for res := range resultCh {
			seen[res.Address] = true
			if res.Err != nil {
				rep.Errors[res.Address] = res.Err.Error()
				continue
			}
			rep.Devices = append(rep.Devices, res.Device)
		}
	}()

	pool.Start(ctx)
	submitted := 0
	for _, dc := range a.devices {
		if !pool.Submit(ctx, dc) {
			break
		}
		submitted++
	}
	pool.Stop()
	close(resultCh)
	wg.Wait()

	for _, dc := range a.devices {
		if !seen[dc.IP] {
			rep.Errors[dc.IP] = ErrCancelled.Error()
		}
	}
	if submitted < len(a.devices) || ctx.Err() != nil {
		a.logger.Warn("app: run cancelled",
			"submitted", submitted,
			"addresses", len(a.devices),
		)
	}

	sort.Slice(rep.Devices, func(i, j int) bool {
		return addrLess(rep.Devices[i].Address, rep.Devices[j].Address)
	})
	rep.FinishedAt = time.Now().UTC()
	return rep
}

// ─────────────────────────────────────────────────────────────────────────────
// Output stage
// ─────────────────────────────────────────────────────────────────────────────

// deliver projects every discovered device and either prints or ingests it.
// Only successful discoveries reach this point.
func (a *App) deliver(ctx context.Context, rep models.Report) error {
	var errs []error
	entityErrors := 0

	for _, dev := range rep.Devices {
		batch := models.Batch{
			Timestamp: rep.FinishedAt,
			Address:   dev.Address,
			Device:    dev.Name,
			Entities:  a.producer.Produce(dev),
		}

		if !a.cfg.Apply {
			data, err := a.formatter.Format(&batch)
			if err == nil {
				err = a.transport.Send(data)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("app: output %s: %w", dev.Address, err))
			}
			continue
		}

		res, err := a.ingester.Ingest(ctx, batch.Entities)
		if err != nil {
			a.logger.Error("app: ingest failed", "address", dev.Address, "device", dev.Name, "error", err.Error())
			errs = append(errs, fmt.Errorf("app: ingest %s: %w", dev.Address, err))
			continue
		}
		for _, msg := range res.Errors {
			entityErrors++
			a.logger.Warn("app: entity rejected", "address", dev.Address, "device", dev.Name, "error", msg)
		}
	}

	if entityErrors > 0 {
		errs = append(errs, fmt.Errorf("app: ingestion rejected %d entities", entityErrors))
	}
	return errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

// expand turns targets into one DeviceConfig per distinct address. The first
// target that selects an address wins.
func expand(targets []config.Target, logger *slog.Logger) ([]config.DeviceConfig, error) {
	var out []config.DeviceConfig
	seen := make(map[string]string)
	for _, t := range targets {
		devs, err := t.Devices()
		if err != nil {
			return nil, fmt.Errorf("app: expand %s: %w", t, err)
		}
		for _, d := range devs {
			if first, dup := seen[d.IP]; dup {
				logger.Debug("app: duplicate address skipped", "address", d.IP, "target", t.String(), "first_target", first)
				continue
			}
			seen[d.IP] = t.String()
			out = append(out, d)
		}
	}
	return out, nil
}

// addrLess orders addresses numerically, falling back to string order for
// anything unparsable.
func addrLess(a, b string) bool {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return pa.Less(pb)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
