package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"rewardengine/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestHealthChecker_ReadyOnlyWhenAllDependenciesReady(t *testing.T) {
	h := observability.NewHealthChecker("replay", "postgres")

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rec.Code)
	}

	h.SetReady("replay", true)
	if got := h.Pending(); len(got) != 1 || got[0] != "postgres" {
		t.Fatalf("pending: got %v, want [postgres]", got)
	}

	h.SetReady("postgres", true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("liveness: got %d, want 200", rec.Code)
	}
}

func TestMetrics_IsolatedRegistry(t *testing.T) {
	// Two instances must not collide on separate registries.
	m1 := observability.NewMetricsWith(prometheus.NewRegistry())
	m2 := observability.NewMetricsWith(prometheus.NewRegistry())

	m1.ClaimsPaid.WithLabelValues("reward", "v1").Inc()
	m1.SetChannelMetrics("persist", 5, 10)

	if got := value(t, m1.ClaimsPaid.WithLabelValues("reward", "v1")); got != 1 {
		t.Errorf("claims paid: got %v, want 1", got)
	}
	if got := value(t, m2.ClaimsPaid.WithLabelValues("reward", "v1")); got != 0 {
		t.Errorf("second registry: got %v, want 0", got)
	}
	if got := value(t, m1.ChannelUtilization.WithLabelValues("persist")); got != 0.5 {
		t.Errorf("utilization: got %v, want 0.5", got)
	}
}

func TestPartitionKind(t *testing.T) {
	cases := map[string]string{
		"shares:v1":  "shares",
		"oracle:eth": "oracle",
		"staking":    "staking",
	}
	for in, want := range cases {
		if got := observability.PartitionKind(in); got != want {
			t.Errorf("PartitionKind(%q): got %q, want %q", in, got, want)
		}
	}
}
