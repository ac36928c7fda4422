// Package json implements the JSON output formatter for SNMP Diode dry runs.
//
// Position in a run:
//
//	producer/entities → format/json → transport/file
//
// All json struct tags are declared on the model types themselves, so
// serialisation is a single json.Marshal call with optional indentation.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vpbank/snmp_diode/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Formatter interface
// ─────────────────────────────────────────────────────────────────────────────

// Formatter serialises one device's entity batch into a byte slice.
type Formatter interface {
	Format(batch *models.Batch) ([]byte, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls JSONFormatter behaviour.
type Config struct {
	// PrettyPrint emits indented, human-readable JSON when true. The default
	// is one batch per line.
	PrettyPrint bool

	// Indent is the indent string used when PrettyPrint=true.
	// Defaults to two spaces when empty and PrettyPrint=true.
	Indent string
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONFormatter
// ─────────────────────────────────────────────────────────────────────────────

// JSONFormatter implements Formatter using encoding/json. It is safe for
// concurrent use; all fields are immutable after construction.
type JSONFormatter struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a JSONFormatter. If logger is nil, a no-op logger is
// substituted.
func New(cfg Config, logger *slog.Logger) *JSONFormatter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.PrettyPrint && cfg.Indent == "" {
		cfg.Indent = "  "
	}
	return &JSONFormatter{cfg: cfg, logger: logger}
}

// Format serialises batch to JSON:
//
//	{
//	  "timestamp": "2026-10-19T08:00:00Z",
//	  "address": "192.0.2.1",
//	  "device": "core-sw1",
//	  "entities": [ {"device": {…}}, {"interface": {…}}, {"ip_address": {…}} ]
//	}
//
// A nil Entities slice is written as [] so consumers never see null.
func (f *JSONFormatter) Format(batch *models.Batch) ([]byte, error) {
	if batch == nil {
		return nil, fmt.Errorf("format/json: batch must not be nil")
	}
	if batch.Entities == nil {
		b := *batch
		b.Entities = []models.Entity{}
		batch = &b
	}

	var (
		data []byte
		err  error
	)

	if f.cfg.PrettyPrint {
		data, err = json.MarshalIndent(batch, "", f.cfg.Indent)
	} else {
		data, err = json.Marshal(batch)
	}

	if err != nil {
		f.logger.Error("format/json: marshal failed",
			"address", batch.Address,
			"device", batch.Device,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("format/json: marshal: %w", err)
	}

	f.logger.Debug("format/json: formatted batch",
		"address", batch.Address,
		"device", batch.Device,
		"entity_count", len(batch.Entities),
		"bytes", len(data),
	)

	return data, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

// noopWriter discards all log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
