package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg, Config{EnableDepotLabel: true})
	if m == nil {
		t.Fatal("newMetricsWithRegistry returned nil")
	}
	if m.httpRequestsTotal == nil {
		t.Error("httpRequestsTotal is nil")
	}
	if m.controlPlaneRequestsTotal == nil {
		t.Error("controlPlaneRequestsTotal is nil")
	}
	if m.chunkVerifyFailuresTotal == nil {
		t.Error("chunkVerifyFailuresTotal is nil")
	}
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg, Config{EnableDepotLabel: true})
	m.RecordHTTPRequest(context.Background(), "GET", "/test", http.StatusOK, 100*time.Millisecond, 1024)
}

func TestMetrics_RecordControlPlaneCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg, Config{EnableDepotLabel: true})
	m.RecordControlPlaneCall(context.Background(), "DepotKey", 50*time.Millisecond)
	m.RecordControlPlaneError(context.Background(), "DepotKey", "http_status")
}

func TestMetrics_RecordChunkAndPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg, Config{EnableDepotLabel: true})

	m.RecordChunkFetch(context.Background(), "2347771", 20*time.Millisecond)
	m.RecordChunkVerifyFailure("2347771", "crc_mismatch")
	m.RecordPoolPenalty("cdn123.example.com")
	m.RecordPoolRefresh()
	m.RecordCacheHit("manifest-request-code")
	m.RecordCacheMiss("server-directory")
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg, Config{EnableDepotLabel: true})

	m.RecordHTTPRequest(context.Background(), "GET", "/test", http.StatusOK, 100*time.Millisecond, 1024)
	m.RecordControlPlaneCall(context.Background(), "DepotKey", 50*time.Millisecond)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	body := w.Body.String()
	if len(body) == 0 {
		t.Error("metrics endpoint returned empty body")
	}

	for _, metric := range []string{"http_requests_total", "cdn_control_plane_requests_total"} {
		if !strings.Contains(body, metric) {
			t.Errorf("expected metrics output to contain %q", metric)
		}
	}
}
