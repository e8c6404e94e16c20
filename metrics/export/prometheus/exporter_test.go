package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goSession "github.com/MrEthical07/goSession"
)

type fakeSource struct {
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goSession.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters:   map[goSession.MetricID]uint64{},
			Histograms: map[goSession.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricPasswordSignInSuccess: 7,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricSignInLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE gosession_signin_total counter",
		`gosession_signin_total{provider="password",outcome="success"} 7`,
		`gosession_signin_total{provider="federated",outcome="cancelled"} 0`,
		`gosession_register_total{provider="password",outcome="success"} 0`,
		"gosession_guard_redirect_total 0",
		"gosession_signin_latency_seconds_bucket{le=\"0.005\"} 1",
		"gosession_signin_latency_seconds_bucket{le=\"+Inf\"} 36",
		"gosession_signin_latency_seconds_count 36",
		"gosession_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderWritesOneHeaderPerFamily(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricPhoneCodeSent:     4,
				goSession.MetricPhoneAutoVerified: 1,
			},
		},
	})

	out := exp.Render()
	if n := strings.Count(out, "# TYPE gosession_phone_code_total counter"); n != 1 {
		t.Fatalf("expected one header for the phone code family, got %d:\n%s", n, out)
	}
	for _, want := range []string{
		`gosession_phone_code_total{event="sent"} 4`,
		`gosession_phone_code_total{event="auto_verified"} 1`,
		`gosession_phone_code_total{event="expired"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderOmitsDisabledHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{goSession.MetricGuardRedirect: 1},
		},
	})
	if out := exp.Render(); strings.Contains(out, "gosession_signin_latency_seconds") {
		t.Fatalf("expected no histogram, got:\n%s", out)
	}
}

func TestHandlerServesRender(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{goSession.MetricPasswordSignInFailure: 1},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(string(body), `gosession_signin_total{provider="password",outcome="failure"} 1`) {
		t.Fatalf("expected the failed sign-in to be counted, got:\n%s", body)
	}
}

func TestRenderNilEngine(t *testing.T) {
	var engine *goSession.Engine
	if out := NewPrometheusExporter(engine).Render(); out != "" {
		t.Fatalf("expected empty output for a nil engine, got:\n%s", out)
	}
}
