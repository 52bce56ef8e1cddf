package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func probeOK(context.Context) error   { return nil }
func probeDown(context.Context) error { return errors.New("connection refused") }
func probeDegraded(context.Context) error {
	return fmt.Errorf("%w: backlog above threshold", ErrDegraded)
}

func decodeReport(t *testing.T, w *httptest.ResponseRecorder) Report {
	t.Helper()
	var report Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	return report
}

func TestReport_AllUp(t *testing.T) {
	registry := NewRegistry("v1.2.3")
	registry.Register("postgres", probeOK)
	registry.Register("mongo", probeOK)

	report := registry.Report(context.Background())

	require.Equal(t, StatusUp, report.Status)
	require.Equal(t, "v1.2.3", report.Version)
	require.Len(t, report.Checks, 2)
	// Сортировка по имени компонента.
	require.Equal(t, "mongo", report.Checks[0].Component)
	require.Equal(t, "postgres", report.Checks[1].Component)
}

func TestReport_DownWinsOverDegraded(t *testing.T) {
	registry := NewRegistry("")
	registry.Register("outbox", probeDegraded)
	registry.Register("postgres", probeDown)

	report := registry.Report(context.Background())

	require.Equal(t, StatusDown, report.Status)
	require.Equal(t, StatusDegraded, report.Checks[0].Status)
	require.Equal(t, StatusDown, report.Checks[1].Status)
	require.Equal(t, "connection refused", report.Checks[1].Detail)
}

func TestReport_DegradedOnly(t *testing.T) {
	registry := NewRegistry("")
	registry.Register("outbox", probeDegraded)
	registry.Register("redis", probeOK)

	report := registry.Report(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
}

func TestServeHTTP_StatusCodes(t *testing.T) {
	cases := []struct {
		name  string
		probe Probe
		code  int
	}{
		{"up", probeOK, http.StatusOK},
		{"degraded", probeDegraded, http.StatusOK},
		{"down", probeDown, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry := NewRegistry("v1")
			registry.Register("component", tc.probe)

			w := httptest.NewRecorder()
			registry.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tc.code, w.Code)
			require.Equal(t, "application/json", w.Header().Get("Content-Type"))
			require.Equal(t, Status(tc.name), decodeReport(t, w).Status)
		})
	}
}

func TestReadiness_DegradedStaysReady(t *testing.T) {
	registry := NewRegistry("")
	registry.Register("outbox", probeDegraded)

	w := httptest.NewRecorder()
	registry.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())
}

func TestReadiness_DownComponent(t *testing.T) {
	registry := NewRegistry("")
	registry.Register("postgres", probeDown)

	w := httptest.NewRecorder()
	registry.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not ready", w.Body.String())
}

func TestLiveness(t *testing.T) {
	w := httptest.NewRecorder()
	Liveness(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestProbe_ReceivesTimeoutContext(t *testing.T) {
	registry := NewRegistry("")
	registry.Register("slow", func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok, "probe context must carry a deadline")
		require.NotZero(t, deadline)
		return nil
	})

	require.Equal(t, StatusUp, registry.Report(context.Background()).Status)
}
