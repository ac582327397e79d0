// Package observe holds the OpenTelemetry instruments shared by the cache,
// the scheduler and the voice sender. Tests should build a [Metrics] with
// [NewMetrics] over their own MeterProvider.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/sonroyaalmerol/balaambot"

type Metrics struct {
	// CacheLookups counts cache reads. Attribute result=hit|miss.
	CacheLookups metric.Int64Counter

	// Downloads counts physical download+transcode runs. Attribute status.
	Downloads metric.Int64Counter

	// SubprocessDuration tracks yt-dlp and ffmpeg wall time. Attributes
	// name and status.
	SubprocessDuration metric.Float64Histogram

	// TracksStarted counts tracks handed to a mixer. Attribute kind=sustained|overlay.
	TracksStarted metric.Int64Counter

	// PrefetchFailures counts look-ahead items dropped from a queue.
	PrefetchFailures metric.Int64Counter

	ActiveConnections metric.Int64UpDownCounter
	ActiveSFXJobs     metric.Int64UpDownCounter

	// LateChunks counts send-loop ticks that could not be delivered in time.
	LateChunks metric.Int64Counter
}

var subprocessBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CacheLookups, err = m.Int64Counter("balaambot.cache.lookups",
		metric.WithDescription("Audio cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.Downloads, err = m.Int64Counter("balaambot.cache.downloads",
		metric.WithDescription("Download and transcode runs by status."),
	); err != nil {
		return nil, err
	}
	if met.SubprocessDuration, err = m.Float64Histogram("balaambot.subprocess.duration",
		metric.WithDescription("Wall time of external yt-dlp and ffmpeg runs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(subprocessBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TracksStarted, err = m.Int64Counter("balaambot.mixer.tracks",
		metric.WithDescription("Tracks enqueued into a mixer by kind."),
	); err != nil {
		return nil, err
	}
	if met.PrefetchFailures, err = m.Int64Counter("balaambot.queue.prefetch_failures",
		metric.WithDescription("Look-ahead items removed after a failed fetch."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConnections, err = m.Int64UpDownCounter("balaambot.voice.connections",
		metric.WithDescription("Live voice connections."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSFXJobs, err = m.Int64UpDownCounter("balaambot.sfx.jobs",
		metric.WithDescription("Running sound effect loops."),
	); err != nil {
		return nil, err
	}
	if met.LateChunks, err = m.Int64Counter("balaambot.voice.late_chunks",
		metric.WithDescription("Opus frames dropped because the transport did not accept them in time."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide instance bound to the global
// MeterProvider, which is a no-op until InitProvider runs.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
