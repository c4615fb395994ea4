package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"container-autopilot/internal/monitoring/models"
)

type captured struct {
	path string
	auth string
	doc  map[string]interface{}
}

func captureServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()

	var calls []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]interface{}
		json.NewDecoder(r.Body).Decode(&doc)
		calls = append(calls, captured{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			doc:  doc,
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

// TestExportSamplePostsDocument testa o documento de sample e o basic auth
func TestExportSamplePostsDocument(t *testing.T) {
	server, calls := captureServer(t, http.StatusCreated)

	e, err := NewElastic(Config{
		URL:      server.URL,
		Username: "elastic",
		Password: "changeme",
	})
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}

	e.ExportSample(context.Background(), models.Sample{
		ServiceID:      "web-01",
		CPUPct:         42.5,
		NetBytesPerSec: 900000,
		Timestamp:      time.Now(),
	})

	if len(*calls) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.path != "/autopilot-samples/_doc" {
		t.Errorf("unexpected path %q", call.path)
	}
	if call.auth == "" {
		t.Error("expected basic auth header")
	}
	if call.doc["service"] != "web-01" || call.doc["cpu_pct"] != 42.5 {
		t.Errorf("unexpected document: %v", call.doc)
	}
	if call.doc["@timestamp"] == "" {
		t.Error("expected @timestamp in document")
	}
}

// TestExportResultIncludesOutcome testa o documento de ação
func TestExportResultIncludesOutcome(t *testing.T) {
	server, calls := captureServer(t, http.StatusCreated)

	e, err := NewElastic(Config{URL: server.URL, IndexPrefix: "fleet"})
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}

	e.ExportResult(context.Background(), models.DispatchResult{
		Action: models.Action{
			Kind:      models.ActionScaleUp,
			ServiceID: "web-01",
			Intent:    &models.ScaleIntent{TargetReplicas: 3},
		},
		Status:   models.DispatchSuccess,
		Attempts: 1,
	})

	if len(*calls) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.path != "/fleet-actions/_doc" {
		t.Errorf("unexpected path %q", call.path)
	}
	if call.doc["action"] != "scale_up" || call.doc["status"] != "success" {
		t.Errorf("unexpected document: %v", call.doc)
	}
	if call.doc["replicas"] != float64(3) {
		t.Errorf("expected replicas 3, got %v", call.doc["replicas"])
	}
}

// TestExportFailureIsSwallowed testa que rejeição do cluster não afeta
// chamadas seguintes
func TestExportFailureIsSwallowed(t *testing.T) {
	server, calls := captureServer(t, http.StatusServiceUnavailable)

	e, err := NewElastic(Config{URL: server.URL})
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}

	e.ExportFleet(context.Background(), 3, 7)
	e.ExportFleet(context.Background(), 3, 7)

	if len(*calls) != 2 {
		t.Errorf("rejections must not stop the exporter, got %d calls", len(*calls))
	}
}

// TestNewElasticRequiresURL testa a validação de config
func TestNewElasticRequiresURL(t *testing.T) {
	if _, err := NewElastic(Config{}); err == nil {
		t.Error("expected error without URL")
	}
}
