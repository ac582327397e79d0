package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestCacheLookupCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CacheLookups.Add(ctx, 2, metric.WithAttributes(attribute.String("result", "hit")))
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))

	met := findMetric(collect(t, reader), "balaambot.cache.lookups")
	if met == nil {
		t.Fatal("balaambot.cache.lookups not recorded")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", met.Data)
	}
	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("result")
		got[v.AsString()] = dp.Value
	}
	if got["hit"] != 2 || got["miss"] != 1 {
		t.Errorf("lookups = %v, want hit=2 miss=1", got)
	}
}

func TestSubprocessHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.SubprocessDuration.Record(context.Background(), 1.5,
		metric.WithAttributes(attribute.String("name", "ffmpeg"), attribute.String("status", "ok")))

	met := findMetric(collect(t, reader), "balaambot.subprocess.duration")
	if met == nil {
		t.Fatal("histogram not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type = %T, want Histogram[float64]", met.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("data points = %+v, want one with count 1", hist.DataPoints)
	}
}

func TestUpDownCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.ActiveSFXJobs.Add(ctx, 3)
	m.ActiveSFXJobs.Add(ctx, -1)

	met := findMetric(collect(t, reader), "balaambot.sfx.jobs")
	if met == nil {
		t.Fatal("balaambot.sfx.jobs not recorded")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("sfx jobs = %+v, want 2", sum.DataPoints)
	}
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
