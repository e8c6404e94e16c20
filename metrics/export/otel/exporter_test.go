package otel

import (
	"context"
	"sync"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goSession.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSession.MetricsSnapshot{
		Counters:   make(map[goSession.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSession.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// collect flattens a collection into "name" or "name{k=v,...}" keys.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	values := make(map[string]int64)
	record := func(name string, set attribute.Set, v int64) {
		key := name
		if set.Len() > 0 {
			key += "{" + set.Encoded(attribute.DefaultEncoder()) + "}"
		}
		values[key] = v
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					record(m.Name, dp.Attributes, dp.Value)
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					record(m.Name, dp.Attributes, dp.Value)
				}
			}
		}
	}
	return values
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricPhoneCodeSent:         3,
				goSession.MetricPasswordSignInSuccess: 5,
				goSession.MetricPhoneConfirmFailure:   2,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricSignInLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	values := collect(t, reader)
	if got := values["gosession_phone_code_total{event=sent}"]; got != 3 {
		t.Fatalf("expected code sent counter 3, got %d", got)
	}
	if got := values["gosession_signin_total{outcome=success,provider=password}"]; got != 5 {
		t.Fatalf("expected password sign-in successes 5, got %d", got)
	}
	if got := values["gosession_signin_total{outcome=failure,provider=phone}"]; got != 2 {
		t.Fatalf("expected phone sign-in failures 2, got %d", got)
	}
	if got, ok := values["gosession_signin_total{outcome=cancelled,provider=federated}"]; !ok || got != 0 {
		t.Fatalf("expected a zero federated cancel series, got %d (present %v)", got, ok)
	}
	if got := values["gosession_signin_latency_seconds_bucket_le_0_05"]; got != 4 {
		t.Fatalf("expected cumulative bucket 4, got %d", got)
	}
	if got := values["gosession_signin_latency_seconds_count"]; got != 8 {
		t.Fatalf("expected histogram count 8, got %d", got)
	}
	if got := values["gosession_audit_dropped_total"]; got != 1 {
		t.Fatalf("expected audit dropped 1, got %d", got)
	}
}

func TestExporterReadsEngine(t *testing.T) {
	reader, provider := newReader()
	var engine *goSession.Engine

	exp, err := NewOTelExporter(provider.Meter("gosession-test"), engine)
	if err != nil {
		t.Fatalf("NewOTelExporter failed: %v", err)
	}
	defer exp.Close()

	if got := collect(t, reader)["gosession_session_total{event=established}"]; got != 0 {
		t.Fatalf("expected zero for an engine without metrics, got %d", got)
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()

	if _, err := NewOTelExporterFromSource(provider.Meter("gosession-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricSessionEstablished: 1,
			},
		},
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSession.MetricSessionEstablished] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
