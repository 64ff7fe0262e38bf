package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetup(t *testing.T) {
	t.Run("metrics without tracing", func(t *testing.T) {
		tel, err := Setup(t.Context(), "orders", "test", WithoutTracing(), WithMetrics())
		if err != nil {
			t.Fatalf("Setup: %v", err)
		}
		if tel.Metrics == nil {
			t.Fatal("expected a metrics handler")
		}

		counter, err := otel.Meter("setup-test").Int64Counter("setup_probe")
		if err != nil {
			t.Fatalf("Int64Counter: %v", err)
		}
		counter.Add(t.Context(), 3)

		rec := httptest.NewRecorder()
		tel.Metrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "setup_probe_total") {
			t.Errorf("expected probe counter in scrape output:\n%s", rec.Body.String())
		}

		if err := tel.Shutdown(t.Context()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
		if err := tel.Shutdown(t.Context()); err != nil {
			t.Errorf("second Shutdown should be a no-op: %v", err)
		}
	})

	t.Run("nothing requested", func(t *testing.T) {
		tel, err := Setup(t.Context(), "migrate", "test", WithoutTracing())
		if err != nil {
			t.Fatalf("Setup: %v", err)
		}
		if tel.Metrics != nil {
			t.Error("expected no metrics handler")
		}
		if err := tel.Shutdown(t.Context()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
}
