package diode_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vpbank/snmp_diode/models"
	"github.com/vpbank/snmp_diode/transport/diode"
)

var batch = []models.Entity{
	{Device: &models.DeviceEntity{Name: "core-sw1", DeviceType: "mx240", Manufacturer: "Juniper Networks"}},
	{Interface: &models.InterfaceEntity{Name: "ge-0/0/0", Device: "core-sw1", Enabled: true}},
}

// ingestServer records the last request and answers with status and body.
func ingestServer(t *testing.T, status int, body string) (*httptest.Server, *diode.IngestRequest, *http.Header) {
	t.Helper()
	var (
		got     diode.IngestRequest
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/diode"+diode.IngestPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &headers
}

func TestIngest_Success(t *testing.T) {
	srv, got, headers := ingestServer(t, http.StatusOK, `{"errors":[]}`)
	c := diode.New(diode.Config{Endpoint: srv.URL + "/diode/", APIKey: "s3cret", AppVersion: "1.2.0"}, nil)

	res, err := c.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v", res.Errors)
	}
	if res.RequestID == "" || res.RequestID != got.ID {
		t.Errorf("RequestID = %q, body id = %q", res.RequestID, got.ID)
	}
	if h := headers.Get("Authorization"); h != "Bearer s3cret" {
		t.Errorf("Authorization = %q", h)
	}
	if h := headers.Get("Content-Type"); h != "application/json" {
		t.Errorf("Content-Type = %q", h)
	}
	if got.Stream != diode.DefaultStream || got.ProducerAppName != "snmp-diode" || got.ProducerAppVersion != "1.2.0" {
		t.Errorf("request metadata = %+v", got)
	}
	if len(got.Entities) != 2 || got.Entities[0].Device == nil || got.Entities[1].Interface == nil {
		t.Errorf("entities = %+v", got.Entities)
	}
}

func TestIngest_EntityErrors(t *testing.T) {
	srv, _, _ := ingestServer(t, http.StatusOK, `{"errors":["interface ge-0/0/0: device not found"]}`)
	c := diode.New(diode.Config{Endpoint: srv.URL + "/diode", APIKey: "k"}, nil)

	res, err := c.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "device not found") {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestIngest_HTTPError(t *testing.T) {
	srv, _, _ := ingestServer(t, http.StatusUnauthorized, "invalid api key\n")
	c := diode.New(diode.Config{Endpoint: srv.URL + "/diode", APIKey: "bad"}, nil)

	_, err := c.Ingest(context.Background(), batch)
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("err = %v", err)
	}
}

func TestIngest_BadResponseBody(t *testing.T) {
	srv, _, _ := ingestServer(t, http.StatusOK, "<html>")
	c := diode.New(diode.Config{Endpoint: srv.URL + "/diode", APIKey: "k"}, nil)
	if _, err := c.Ingest(context.Background(), batch); err == nil {
		t.Error("expected decode error")
	}
}

func TestIngest_NotConfigured(t *testing.T) {
	tests := []diode.Config{
		{APIKey: "k"},
		{Endpoint: "http://127.0.0.1:1"},
	}
	for _, cfg := range tests {
		_, err := diode.New(cfg, nil).Ingest(context.Background(), batch)
		if !errors.Is(err, diode.ErrNotConfigured) {
			t.Errorf("cfg %+v: err = %v, want ErrNotConfigured", cfg, err)
		}
	}
}

func TestIngest_EmptyBatchNotSent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls++ }))
	defer srv.Close()

	res, err := diode.New(diode.Config{Endpoint: srv.URL, APIKey: "k"}, nil).Ingest(context.Background(), nil)
	if err != nil || len(res.Errors) != 0 {
		t.Fatalf("Ingest(nil) = %+v, %v", res, err)
	}
	if calls != 0 {
		t.Errorf("server called %d times for an empty batch", calls)
	}
}

func TestIngest_ContextCancelled(t *testing.T) {
	srv, _, _ := ingestServer(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := diode.New(diode.Config{Endpoint: srv.URL + "/diode", APIKey: "k"}, nil).Ingest(ctx, batch)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
