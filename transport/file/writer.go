// Package file implements the dry-run output of SNMP Diode: formatted entity
// batches written to stdout or to a size-rotated file.
//
// Position in a run:
//
//	format/json → transport/file
//
// Each call to Send writes one record followed by a newline in a single
// write, so a record never straddles a rotation boundary.
package file

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Transport interface
// ─────────────────────────────────────────────────────────────────────────────

// Transport delivers one pre-formatted record (JSON bytes from format/json).
// Close flushes and releases resources.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config controls WriterTransport behaviour.
type Config struct {
	// Writer is the destination. Ignored when FilePath is set. nil defaults
	// to os.Stdout.
	Writer io.Writer

	// FilePath selects a RotatingFile owned by the transport and closed by
	// Close. MaxBytes and MaxBackups apply only to it.
	FilePath   string
	MaxBytes   int64
	MaxBackups int

	// Newline appended after each record. Default "\n".
	Newline string
}

// ─────────────────────────────────────────────────────────────────────────────
// WriterTransport
// ─────────────────────────────────────────────────────────────────────────────

// WriterTransport implements Transport on top of an io.Writer. It is safe for
// concurrent use.
type WriterTransport struct {
	mu     sync.Mutex
	w      io.Writer
	owned  io.Closer
	nl     []byte
	sent   int
	logger *slog.Logger
}

// New constructs a WriterTransport. The only error comes from opening
// cfg.FilePath.
func New(cfg Config, logger *slog.Logger) (*WriterTransport, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	t := &WriterTransport{
		w:      cfg.Writer,
		nl:     []byte(cfg.Newline),
		logger: logger,
	}
	if len(t.nl) == 0 {
		t.nl = []byte("\n")
	}

	switch {
	case cfg.FilePath != "":
		rf, err := NewRotatingFile(RotateConfig{
			FilePath:   cfg.FilePath,
			MaxBytes:   cfg.MaxBytes,
			MaxBackups: cfg.MaxBackups,
		}, logger)
		if err != nil {
			return nil, err
		}
		t.w, t.owned = rf, rf
		logger.Info("transport/file: writing to file",
			"path", cfg.FilePath,
			"max_bytes", cfg.MaxBytes,
			"max_backups", cfg.MaxBackups,
		)
	case t.w == nil:
		t.w = os.Stdout
	}
	return t, nil
}

// Send writes data and the newline as one record.
func (t *WriterTransport) Send(data []byte) error {
	rec := make([]byte, 0, len(data)+len(t.nl))
	rec = append(append(rec, data...), t.nl...)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.w.Write(rec); err != nil {
		t.logger.Error("transport/file: write failed", "error", err.Error(), "bytes", len(rec))
		return fmt.Errorf("transport/file: write: %w", err)
	}
	t.sent++
	t.logger.Debug("transport/file: sent record", "bytes", len(rec))
	return nil
}

// Sent returns the number of records written so far.
func (t *WriterTransport) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// Close closes the output file when the transport opened it. A caller-supplied
// Writer is left open.
func (t *WriterTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.owned == nil {
		return nil
	}
	err := t.owned.Close()
	t.owned = nil
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
