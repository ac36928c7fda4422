// Package diode is the ingestion client of SNMP Diode. It ships projected
// entity batches to a Diode ingestion endpoint over HTTP.
//
// Position in a run:
//
//	producer/entities → transport/diode   (with -apply)
//
// Every call to Ingest is one POST of JSON to <endpoint>/v1/ingest carrying
// a bearer token. The service answers with a list of per-entity errors; a
// non-empty list is surfaced to the caller as IngestResult.Errors, while
// transport failures and non-2xx statuses are returned as errors.
package diode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vpbank/snmp_diode/models"
)

// IngestPath is appended to the configured endpoint.
const IngestPath = "/v1/ingest"

// DefaultStream is the stream every batch is tagged with.
const DefaultStream = "latest"

// ErrNotConfigured is returned when Ingest is called without an endpoint or
// API key.
var ErrNotConfigured = errors.New("transport/diode: endpoint and api key are required")

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds constructor options for Client.
type Config struct {
	// Endpoint is the base URL of the ingestion service, e.g.
	// "https://diode.example.com/diode". A trailing slash is ignored.
	Endpoint string

	// APIKey is sent as "Authorization: Bearer <key>".
	APIKey string

	// AppName and AppVersion identify this producer to the service.
	AppName    string
	AppVersion string

	// Timeout bounds one HTTP exchange. Default 30s.
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire types
// ─────────────────────────────────────────────────────────────────────────────

// IngestRequest is the JSON body of one POST.
type IngestRequest struct {
	ID                 string          `json:"id"`
	Stream             string          `json:"stream"`
	ProducerAppName    string          `json:"producer_app_name"`
	ProducerAppVersion string          `json:"producer_app_version"`
	SDKName            string          `json:"sdk_name"`
	SDKVersion         string          `json:"sdk_version"`
	Entities           []models.Entity `json:"entities"`
}

// IngestResult is the decoded response. Errors holds per-entity rejections.
type IngestResult struct {
	RequestID string   `json:"-"`
	Errors    []string `json:"errors"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Client
// ─────────────────────────────────────────────────────────────────────────────

// Client is safe for concurrent use.
type Client struct {
	cfg    Config
	url    string
	http   *http.Client
	logger *slog.Logger
}

// New builds a Client. It does not contact the service.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AppName == "" {
		cfg.AppName = "snmp-diode"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:    cfg,
		url:    strings.TrimRight(cfg.Endpoint, "/") + IngestPath,
		http:   hc,
		logger: logger,
	}
}

// Ingest POSTs entities as one batch. An empty batch is not sent.
func (c *Client) Ingest(ctx context.Context, entities []models.Entity) (IngestResult, error) {
	if c.cfg.Endpoint == "" || c.cfg.APIKey == "" {
		return IngestResult{}, ErrNotConfigured
	}
	if len(entities) == 0 {
		return IngestResult{}, nil
	}

	id := uuid.New().String()
	body, err := json.Marshal(IngestRequest{
		ID:                 id,
		Stream:             DefaultStream,
		ProducerAppName:    c.cfg.AppName,
		ProducerAppVersion: c.cfg.AppVersion,
		SDKName:            "snmp-diode-go",
		SDKVersion:         c.cfg.AppVersion,
		Entities:           entities,
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("transport/diode: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return IngestResult{}, fmt.Errorf("transport/diode: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Request-Id", id)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return IngestResult{}, fmt.Errorf("transport/diode: post %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return IngestResult{}, fmt.Errorf("transport/diode: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("transport/diode: ingest rejected",
			"status", resp.StatusCode,
			"request_id", id,
			"body", string(raw),
		)
		return IngestResult{}, fmt.Errorf("transport/diode: ingest failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	res := IngestResult{RequestID: id}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return IngestResult{}, fmt.Errorf("transport/diode: decode response: %w", err)
		}
	}

	c.logger.Info("transport/diode: batch ingested",
		"request_id", id,
		"entities", len(entities),
		"errors", len(res.Errors),
		"bytes", len(body),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
