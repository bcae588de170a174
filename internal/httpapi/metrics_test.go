package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gpuworker/internal/pipeline"
)

// TestMetricsMiddleware_EmitsRequestCounters verifies that wrapping a handler
// with MetricsMiddleware results in request metrics being exposed via the
// Prometheus /metrics handler.
func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	MetricsMiddleware(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	body := mrr.Body.Bytes()
	if !bytes.Contains(body, []byte("gpuworker_http_requests_total")) {
		preview := body
		if len(preview) > 200 {
			preview = preview[:200]
		}
		t.Fatalf("expected to find gpuworker_http_requests_total in metrics; got: %q", string(preview))
	}
}

// TestMetricsMiddleware_UsesRoutePattern ensures the metrics middleware labels
// by the chi route pattern instead of the raw URL path.
func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/things/{id}", http.MethodGet, "200"))
	for _, p := range []string{"/things/1", "/things/2"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, p, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/things/{id}", http.MethodGet, "200"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests under route pattern, got %v", after-before)
	}
}

func TestMetricsPublisher(t *testing.T) {
	pub := MetricsPublisher{}
	pos := testutil.ToFloat64(pipelineClassifications.WithLabelValues("POSITIVE"))
	unk := testutil.ToFloat64(pipelineClassifications.WithLabelValues("unknown"))
	loadErr := testutil.ToFloat64(pipelineErrors.WithLabelValues("load"))
	spawnErr := testutil.ToFloat64(pipelineErrors.WithLabelValues("spawn"))
	classErr := testutil.ToFloat64(pipelineErrors.WithLabelValues("classify"))

	pub.Publish(pipeline.Event{Name: pipeline.EventClassify, Fields: map[string]any{"label": "POSITIVE"}})
	pub.Publish(pipeline.Event{Name: pipeline.EventClassify})
	pub.Publish(pipeline.Event{Name: pipeline.EventLoadError})
	pub.Publish(pipeline.Event{Name: pipeline.EventSpawnTimeout})
	pub.Publish(pipeline.Event{Name: pipeline.EventSpawnExit})
	pub.Publish(pipeline.Event{Name: pipeline.EventClassifyErr})
	pub.Publish(pipeline.Event{Name: pipeline.EventLoadReady, Fields: map[string]any{"seconds": 1.5}})
	pub.Publish(pipeline.Event{Name: pipeline.EventSpawnStart})

	checks := []struct {
		name      string
		got, want float64
	}{
		{"positive", testutil.ToFloat64(pipelineClassifications.WithLabelValues("POSITIVE")) - pos, 1},
		{"unknown", testutil.ToFloat64(pipelineClassifications.WithLabelValues("unknown")) - unk, 1},
		{"load", testutil.ToFloat64(pipelineErrors.WithLabelValues("load")) - loadErr, 1},
		{"spawn", testutil.ToFloat64(pipelineErrors.WithLabelValues("spawn")) - spawnErr, 2},
		{"classify", testutil.ToFloat64(pipelineErrors.WithLabelValues("classify")) - classErr, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: delta=%v want %v", c.name, c.got, c.want)
		}
	}
	if n := testutil.CollectAndCount(pipelineLoadSeconds); n != 1 {
		t.Fatalf("expected load histogram to be collected, got %d", n)
	}
}

func TestSetAcceleratorAvailable(t *testing.T) {
	SetAcceleratorAvailable(true)
	if v := testutil.ToFloat64(acceleratorAvailable); v != 1 {
		t.Fatalf("gauge=%v", v)
	}
	SetAcceleratorAvailable(false)
	if v := testutil.ToFloat64(acceleratorAvailable); v != 0 {
		t.Fatalf("gauge=%v", v)
	}
}
