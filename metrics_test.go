package goSession

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricPasswordSignInSuccess)

	if got := m.Value(MetricPasswordSignInSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricPhoneCodeSent)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricPhoneCodeSent); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricSignInLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricSignInLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestEngineMetricsAcrossProviders(t *testing.T) {
	te := newTestEngine(t, nil)
	te.backend.addUser("a@b.co", "secret1")
	ctx := context.Background()

	if _, err := te.SignInWithPassword(ctx, "a@b.co", "nope"); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := te.SignInWithPassword(ctx, "a@b.co", "secret1"); err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	pv, err := te.StartPhoneVerification(ctx, "9876543210")
	if err != nil {
		t.Fatalf("StartPhoneVerification failed: %v", err)
	}
	te.backend.completeSend(t, "vid-1", "rt-1", "123456")
	te.loop.Drain()
	if err := pv.Resend(ctx); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if err := te.SignOut(ctx); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	snap := te.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricPasswordSignInFailure: 1,
		MetricPasswordSignInSuccess: 1,
		MetricSessionEstablished:    1,
		MetricPhoneCodeSent:         1,
		MetricPhoneResend:           1,
		MetricSessionCleared:        1,
	}
	for id, v := range want {
		if snap.Counters[id] != v {
			t.Fatalf("metric %d: expected %d, got %d", id, v, snap.Counters[id])
		}
	}
}

func TestNilEngineMetricsSnapshot(t *testing.T) {
	var e *Engine
	snap := e.MetricsSnapshot()
	if snap.Counters[MetricSessionEstablished] != 0 {
		t.Fatal("expected zero counters on nil engine")
	}
	if e.AuditDropped() != 0 {
		t.Fatal("expected zero drops on nil engine")
	}
}
