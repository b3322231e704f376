package router

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/afikmenashe/alert-distribution/internal/alert"
	"github.com/afikmenashe/alert-distribution/internal/coordinator"
	"github.com/afikmenashe/alert-distribution/internal/handlers"
	internalmetrics "github.com/afikmenashe/alert-distribution/internal/metrics"
	"github.com/afikmenashe/alert-distribution/internal/normalizer"
	"github.com/afikmenashe/alert-distribution/internal/registry"
)

type stubCoordinator struct {
	ingested int
}

func (s *stubCoordinator) Ingest(_ context.Context, records []*alert.Record, _ alert.Department) (*coordinator.IngestResult, error) {
	s.ingested += len(records)
	return &coordinator.IngestResult{Mode: coordinator.ModeDirect, Deliveries: []alert.Delivery{}}, nil
}

func (s *stubCoordinator) ListDeliveries(context.Context, string) ([]alert.Delivery, error) {
	return []alert.Delivery{}, nil
}

func (s *stubCoordinator) ToggleRead(context.Context, string, int64, bool) error { return nil }

type countingRecorder struct {
	internalmetrics.NoOp
	received, processed, errors int
}

func (c *countingRecorder) RecordReceived()                 { c.received++ }
func (c *countingRecorder) RecordProcessed(_ time.Duration) { c.processed++ }
func (c *countingRecorder) RecordError()                    { c.errors++ }

func newTestRouter(opts ...Option) (*Router, *stubCoordinator, *registry.Registry) {
	coord := &stubCoordinator{}
	live := registry.New()
	h := handlers.NewHandlers(coord, normalizer.New(), live, nil, handlers.WithHeartbeat(time.Hour))
	return NewRouter(h, opts...), coord, live
}

// TestNewRouter tests the NewRouter constructor.
func TestNewRouter(t *testing.T) {
	r, _, _ := newTestRouter()
	if r.mux == nil {
		t.Error("NewRouter() mux is nil")
	}
	if r.metrics == nil {
		t.Error("NewRouter() metrics is nil, want no-op recorder")
	}
}

// TestRouter_CORS tests that preflight requests are answered by the middleware.
func TestRouter_CORS(t *testing.T) {
	r, _, _ := newTestRouter()
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/alerts/status", nil))

	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %v, want %v", w.Code, http.StatusOK)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header Access-Control-Allow-Origin not set")
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Errorf("Allow-Methods = %q, want PATCH", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/alerts?recipient=u-1", "", http.StatusOK},
		{http.MethodGet, "/alerts", "", http.StatusUnauthorized},
		{http.MethodPatch, "/alerts/status?recipient=u-1", `{"deliveryId":1,"read":true}`, http.StatusNoContent},
		{http.MethodPost, "/alerts/nope", `{}`, http.StatusNotFound},
		{http.MethodPut, "/alerts/status", `{}`, http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/services/metrics", "", http.StatusServiceUnavailable},
		{http.MethodDelete, "/admin/test-data?before=2026-01-01T00:00:00Z", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/metrics", "", http.StatusNotFound},
	}
	r, _, _ := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRouter_IngestDashboard(t *testing.T) {
	r, coord, _ := newTestRouter()
	body := `{"alerts":[{"labels":{"alertname":"HighLatency","app":"ssok-bank-core"},"startsAt":"2026-01-01T00:00:00Z"}]}`
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/alerts/dashboard", strings.NewReader(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if coord.ingested != 1 {
		t.Errorf("ingested = %d, want 1", coord.ingested)
	}
}

func TestRouter_PrometheusEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := internalmetrics.NewPrometheus(reg)
	r, _, _ := newTestRouter(WithGatherer(reg), WithMetrics(prom.For("api")))

	r.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/alerts?recipient=u-1", nil))

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `alertd_events_total{event="received",role="api"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", w.Body.String())
	}
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &countingRecorder{}
	r, _, _ := newTestRouter(WithMetrics(rec))
	h := r.Handler()

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/alerts?recipient=u-1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/alerts", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.received != 2 || rec.processed != 1 || rec.errors != 1 {
		t.Errorf("received=%d processed=%d errors=%d, want 2/1/1", rec.received, rec.processed, rec.errors)
	}
}

// Streams must keep flushing through the metrics wrapper and survive the
// server write timeout.
func TestServer_StreamOutlivesWriteTimeout(t *testing.T) {
	r, _, live := newTestRouter(WithMetrics(&countingRecorder{}))
	srv := httptest.NewUnstartedServer(r.Handler())
	srv.Config.WriteTimeout = 200 * time.Millisecond
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/alerts/stream?recipient=u-9", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	br := bufio.NewReader(resp.Body)

	line, err := br.ReadString('\n')
	if err != nil || line != "event: "+registry.EventInit+"\n" {
		t.Fatalf("first line = %q (%v)", line, err)
	}

	time.Sleep(400 * time.Millisecond)
	if !live.Deliver(ctx, &alert.Delivery{DeliveryStatus: alert.DeliveryStatus{ID: 1, AlertID: "a-9", RecipientID: "u-9"}}) {
		t.Fatal("recipient not connected")
	}
	for {
		line, err = br.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended: %v", err)
		}
		if line == "event: "+registry.EventAlert+"\n" {
			return
		}
	}
}

func TestNewServer(t *testing.T) {
	r, _, _ := newTestRouter()
	srv := NewServer("8080", r)
	if srv.Addr != ":8080" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadTimeout != 15*time.Second || srv.WriteTimeout != 15*time.Second || srv.IdleTimeout != 60*time.Second {
		t.Errorf("timeouts = %v/%v/%v", srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}
