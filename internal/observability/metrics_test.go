package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	return rr.Body.String()
}

func TestInitMetrics(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	if body := scrape(t, handler); body == "" {
		t.Error("handler returned empty body")
	}
}

func TestExecutionMetricsAppearInOutput(t *testing.T) {
	ctx := context.Background()
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	m, err := NewExecutionMetrics()
	if err != nil {
		t.Fatalf("NewExecutionMetrics failed: %v", err)
	}
	m.Started(ctx, "test-run")
	m.Finished(ctx, "test-run", "COMPLETED", 1500*time.Millisecond)

	body := scrape(t, handler)
	for _, want := range []string{"executions_started_total", "executions_finished_total", "execution_duration_seconds", `status="COMPLETED"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output, got:\n%s", want, body)
		}
	}
}

func TestNilExecutionMetricsIsSafe(t *testing.T) {
	var m *ExecutionMetrics
	m.Started(context.Background(), "test-run")
	m.Finished(context.Background(), "test-run", "FAILED", time.Second)
}
