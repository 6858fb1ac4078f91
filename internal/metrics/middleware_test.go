package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsStatusAndRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/videos/{video_id}", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "video not found", http.StatusNotFound)
	})
	r.Post("/api/crawl/video", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	got404 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404"))
	got200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "200"))

	requests := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/videos/7300000000000000000", nil),
		httptest.NewRequest(http.MethodGet, "/api/videos/7300000000000000001", nil),
		httptest.NewRequest(http.MethodPost, "/api/crawl/video?video_id=1", nil),
	}
	for _, req := range requests {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if delta := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404")) - got404; delta != 2 {
		t.Errorf("GET 404 count grew by %v, want 2", delta)
	}
	// An implicit 200 from Write is still counted.
	if delta := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "200")) - got200; delta != 1 {
		t.Errorf("POST 200 count grew by %v, want 1", delta)
	}
	// Both video ids share one route-pattern series.
	if n := testutil.CollectAndCount(httpRequestDurationSeconds); n < 2 {
		t.Errorf("expected duration series for both routes, got %d", n)
	}
}
