package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestAuthMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAuthMetrics(reg)
	m.ObserveSignIn("password", "succeeded")
	m.ObserveSignIn("password", "succeeded")
	m.ObserveGuard("allowed")
	m.ObserveCallbackLatency("ok", 0.2)
	m.ObserveSessionInit("restored")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var signIns *dto.MetricFamily
	for _, fam := range families {
		if fam.GetName() == "carelink_auth_sign_in_total" {
			signIns = fam
		}
	}
	if signIns == nil {
		t.Fatal("sign-in counter not registered")
	}
	if got := signIns.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("sign-in counter = %v, want 2", got)
	}
}

func TestAuthMetricsNilSafe(t *testing.T) {
	var m *AuthMetrics
	m.ObserveSignIn("otp", "failed")
	m.ObserveGuard("denied")
	m.ObserveCallbackLatency("error", 0.1)
	m.ObserveSessionInit("cleared")
}
