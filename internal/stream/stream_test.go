package stream

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sonroyaalmerol/balaambot/internal/mixer"
	"github.com/sonroyaalmerol/balaambot/internal/observe"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestTranscodeOptionsArgs(t *testing.T) {
	t.Parallel()
	opts := TranscodeOptions{Input: "in.opus", Output: "out.pcm", SampleRate: 48000, Channels: 2}
	got := opts.Args()
	want := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", "in.opus", "-vn",
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "2", "-ar", "48000",
		"out.pcm",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Args() = %v\nwant %v", got, want)
	}

	opts.Quiet = true
	if !slices.Contains(opts.Args(), "-loglevel") {
		t.Error("quiet args missing -loglevel")
	}
}

func TestTranscodeOptionsValidate(t *testing.T) {
	t.Parallel()
	good := TranscodeOptions{Input: "a", Output: "b", SampleRate: 48000, Channels: 1}
	tests := []struct {
		name   string
		mutate func(*TranscodeOptions)
		ok     bool
	}{
		{"ok", func(*TranscodeOptions) {}, true},
		{"no input", func(o *TranscodeOptions) { o.Input = "" }, false},
		{"no output", func(o *TranscodeOptions) { o.Output = "" }, false},
		{"zero rate", func(o *TranscodeOptions) { o.SampleRate = 0 }, false},
		{"six channels", func(o *TranscodeOptions) { o.Channels = 6 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := good
			tt.mutate(&o)
			err := o.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrBadOptions) {
				t.Fatalf("Validate = %v, want ErrBadOptions", err)
			}
		})
	}
}

func TestRunCapturedReportsStderr(t *testing.T) {
	t.Parallel()
	err := runCaptured(context.Background(), "sh", "sh", []string{"-c", "echo boom >&2; exit 3"}, nil)
	var se *SubprocessError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SubprocessError", err)
	}
	if se.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", se.ExitCode)
	}
	if !strings.Contains(se.Stderr, "boom") {
		t.Errorf("Stderr = %q, want boom", se.Stderr)
	}
	if !strings.Contains(se.Error(), "boom") {
		t.Errorf("Error() = %q, want stderr text", se.Error())
	}
}

func TestSubprocessErrorTruncatesLongStderr(t *testing.T) {
	t.Parallel()
	se := &SubprocessError{Name: "ffmpeg", ExitCode: 1, Stderr: strings.Repeat("x", 2000) + "tail"}
	msg := se.Error()
	if len(msg) > 600 || !strings.HasSuffix(msg, "tail") {
		t.Errorf("Error() length %d, want truncated message ending in tail", len(msg))
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()
	p := NewPool(2, 0, testMetrics(t))
	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), "test", func(context.Context) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestPoolAppliesTimeout(t *testing.T) {
	t.Parallel()
	p := NewPool(1, 20*time.Millisecond, testMetrics(t))
	err := p.Do(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

type fakeSource struct {
	mu    sync.Mutex
	state mixer.State
	reads int
}

func (f *fakeSource) ReadChunk() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return make([]byte, 8)
}

func (f *fakeSource) State() mixer.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) set(s mixer.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

type passthroughEncoder struct{}

func (passthroughEncoder) Encode(pcm []byte) ([]byte, error) { return pcm, nil }

func TestSenderStreamsOnlyWhileActive(t *testing.T) {
	t.Parallel()
	src := &fakeSource{state: mixer.StateStopped}
	out := make(chan []byte, 16)
	var speakMu sync.Mutex
	var speakLog []bool
	speak := func(v bool) error {
		speakMu.Lock()
		speakLog = append(speakLog, v)
		speakMu.Unlock()
		return nil
	}

	sd := startSender(context.Background(), "g", out, speak, func() bool { return true }, src, passthroughEncoder{}, testMetrics(t))

	time.Sleep(100 * time.Millisecond)
	if len(out) != 0 {
		t.Fatalf("%d packets sent while stopped, want 0", len(out))
	}

	src.set(mixer.StatePaused)
	select {
	case pkt := <-out:
		if len(pkt) != 8 {
			t.Errorf("packet length = %d, want 8", len(pkt))
		}
	case <-time.After(time.Second):
		t.Fatal("no packet sent while paused")
	}

	sd.Stop()

	speakMu.Lock()
	defer speakMu.Unlock()
	if len(speakLog) < 2 || !speakLog[0] || speakLog[len(speakLog)-1] {
		t.Errorf("speaking log = %v, want true first and false last", speakLog)
	}
}

func TestSenderGivesUpWhenNeverReady(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	sd := startSender(ctx, "g", make(chan []byte), func(bool) error { return nil }, func() bool { return false }, &fakeSource{}, passthroughEncoder{}, testMetrics(t))
	cancel()
	select {
	case <-sd.done:
	case <-time.After(time.Second):
		t.Fatal("sender did not exit after cancel")
	}
}
