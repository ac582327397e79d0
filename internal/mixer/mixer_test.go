package mixer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sonroyaalmerol/balaambot/internal/mixer"
)

func constant(n int, v int16) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func newMixer(t *testing.T, chunk int) *mixer.Mixer {
	t.Helper()
	return mixer.New(48000, 2, mixer.WithChunkSamples(chunk))
}

func samplesOf(t *testing.T, b []byte) []int16 {
	t.Helper()
	if len(b)%2 != 0 {
		t.Fatalf("odd chunk length %d", len(b))
	}
	return mixer.SamplesFromBytes(b)
}

func TestDefaultChunkSize(t *testing.T) {
	t.Parallel()
	m := mixer.New(48000, 2)
	if got, want := m.ChunkSamples(), 1920; got != want {
		t.Errorf("ChunkSamples() = %d, want %d", got, want)
	}
	if got, want := len(m.ReadChunk()), 3840; got != want {
		t.Errorf("len(ReadChunk()) = %d, want %d", got, want)
	}
}

func TestMixingSum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		lengths []int
		values  []int16
	}{
		{"single", []int{8}, []int16{7}},
		{"staggered lengths", []int{2, 5, 8}, []int16{100, -30, 1000}},
		{"positive overflow", []int{8, 8}, []int16{30000, 30000}},
		{"negative overflow", []int{4, 8}, []int16{-30000, -30000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMixer(t, 8)
			for i := range tt.lengths {
				m.EnqueueSustained(constant(tt.lengths[i], tt.values[i]))
			}
			got := samplesOf(t, m.ReadChunk())
			for k := range got {
				var want int32
				for i, l := range tt.lengths {
					if k < l {
						want += int32(tt.values[i])
					}
				}
				want = max(-32768, min(32767, want))
				if int32(got[k]) != want {
					t.Errorf("sample %d = %d, want %d", k, got[k], want)
				}
			}
		})
	}
}

func TestCompletionOnce(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 16)
	var calls atomic.Int32
	h := m.EnqueueSustained(constant(10, 1), mixer.OnComplete(func() { calls.Add(1) }))

	m.ReadChunk()
	if got := calls.Load(); got != 1 {
		t.Fatalf("on_complete calls = %d, want 1", got)
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("Done() not closed after completion")
	}
	if n := m.SustainedLen(); n != 0 {
		t.Fatalf("SustainedLen() = %d, want 0", n)
	}

	m.ReadChunk()
	if got := calls.Load(); got != 1 {
		t.Fatalf("on_complete calls after second read = %d, want 1", got)
	}
}

func TestPadding(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 10)
	done := false
	m.EnqueueOverlay(constant(4, 9), mixer.OnComplete(func() { done = true }))

	got := samplesOf(t, m.ReadChunk())
	for i, s := range got {
		want := int16(0)
		if i < 4 {
			want = 9
		}
		if s != want {
			t.Errorf("sample %d = %d, want %d", i, s, want)
		}
	}
	if !done {
		t.Error("short track did not complete")
	}
}

func TestZeroLengthTrackCompletesOnNextPull(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	var order []string
	m.EnqueueSustained(nil,
		mixer.OnStart(func() { order = append(order, "start") }),
		mixer.OnComplete(func() { order = append(order, "complete") }),
	)
	m.ReadChunk()
	if len(order) != 2 || order[0] != "start" || order[1] != "complete" {
		t.Fatalf("callback order = %v, want [start complete]", order)
	}
}

func TestOnStartFiresOnceBeforeMixing(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	var starts int
	m.EnqueueSustained(constant(12, 1), mixer.OnStart(func() { starts++ }))
	for range 3 {
		m.ReadChunk()
	}
	if starts != 1 {
		t.Errorf("on_start calls = %d, want 1", starts)
	}
}

func TestSkipOnEmptyIsNoop(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	if n := m.SkipSustained(); n != 0 {
		t.Errorf("SkipSustained() = %d, want 0", n)
	}
	if s := m.State(); s != mixer.StateStopped {
		t.Errorf("State() = %v, want stopped", s)
	}
}

func TestSkipRunsCallbacksAndIsolatesPanics(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	var ok atomic.Int32
	m.EnqueueSustained(constant(100, 1), mixer.OnComplete(func() { panic("boom") }))
	m.EnqueueSustained(constant(100, 1), mixer.OnComplete(func() { ok.Add(1) }))
	overlay := m.EnqueueOverlay(constant(100, 3))

	if n := m.SkipSustained(); n != 2 {
		t.Fatalf("SkipSustained() = %d, want 2", n)
	}
	if ok.Load() != 1 {
		t.Errorf("sibling callback ran %d times, want 1", ok.Load())
	}
	if n := m.OverlayLen(); n != 1 {
		t.Errorf("OverlayLen() = %d, want 1", n)
	}
	select {
	case <-overlay.Done():
		t.Error("overlay closed by sustained skip")
	default:
	}

	got := samplesOf(t, m.ReadChunk())
	if got[0] != 3 {
		t.Errorf("mixer after panic sample = %d, want 3", got[0])
	}
}

func TestClearDropsWithoutCallbacks(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	called := false
	h := m.EnqueueSustained(constant(100, 1), mixer.OnComplete(func() { called = true }))
	m.EnqueueOverlay(constant(100, 1), mixer.OnComplete(func() { called = true }))

	if n := m.ClearSustained(); n != 1 {
		t.Errorf("ClearSustained() = %d, want 1", n)
	}
	if n := m.ClearOverlay(); n != 1 {
		t.Errorf("ClearOverlay() = %d, want 1", n)
	}
	if called {
		t.Error("clear invoked a completion callback")
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed by clear")
	}
}

func TestCallbackMayReenterMixer(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	m.EnqueueSustained(constant(4, 1), mixer.OnComplete(func() {
		m.EnqueueSustained(constant(4, 2))
	}))

	first := samplesOf(t, m.ReadChunk())
	second := samplesOf(t, m.ReadChunk())
	if first[0] != 1 || second[0] != 2 {
		t.Errorf("chunks = %d, %d; want 1, 2", first[0], second[0])
	}
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	m.EnqueueSustained(constant(8, 5))
	m.Pause()
	if s := m.State(); s != mixer.StatePaused {
		t.Fatalf("State() = %v, want paused", s)
	}
	paused := m.ReadChunk()
	if len(paused) != m.ChunkBytes() {
		t.Fatalf("paused chunk length = %d, want %d", len(paused), m.ChunkBytes())
	}
	for i, b := range paused {
		if b != 0 {
			t.Fatalf("paused byte %d = %d, want 0", i, b)
		}
	}

	m.Resume()
	if s := m.State(); s != mixer.StatePlaying {
		t.Fatalf("State() = %v, want playing", s)
	}
	if got := samplesOf(t, m.ReadChunk()); got[0] != 5 {
		t.Errorf("resumed sample = %d, want 5 (position kept while paused)", got[0])
	}
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	if s := m.State(); s != mixer.StateStopped {
		t.Fatalf("initial State() = %v, want stopped", s)
	}
	m.EnqueueOverlay(constant(4, 1))
	if s := m.State(); s != mixer.StatePlaying {
		t.Fatalf("State() after enqueue = %v, want playing", s)
	}
	m.ReadChunk()
	if s := m.State(); s != mixer.StateStopped {
		t.Fatalf("State() after drain = %v, want stopped", s)
	}
	m.Resume()
	if s := m.State(); s != mixer.StatePlaying {
		t.Fatalf("State() after idle resume = %v, want playing", s)
	}
}

func TestEnqueueUnpauses(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	m.Pause()
	m.EnqueueOverlay(constant(4, 2))
	if s := m.State(); s != mixer.StatePlaying {
		t.Errorf("State() = %v, want playing", s)
	}
}

func TestEndToEndScenario(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 500)
	var aDone, bDone int
	m.EnqueueSustained(constant(1000, 100), mixer.OnComplete(func() { aDone++ }))
	m.EnqueueOverlay(constant(1000, 50), mixer.OnComplete(func() { bDone++ }))

	for call := 1; call <= 2; call++ {
		got := samplesOf(t, m.ReadChunk())
		if len(got) != 500 {
			t.Fatalf("call %d: %d samples, want 500", call, len(got))
		}
		for i, s := range got {
			if s != 150 {
				t.Fatalf("call %d sample %d = %d, want 150", call, i, s)
			}
		}
	}
	if aDone != 1 || bDone != 1 {
		t.Fatalf("completions = (%d, %d), want (1, 1)", aDone, bDone)
	}

	silence := m.ReadChunk()
	if len(silence) != 1000 {
		t.Fatalf("silence length = %d, want 1000", len(silence))
	}
	for i, b := range silence {
		if b != 0 {
			t.Fatalf("silence byte %d = %d, want 0", i, b)
		}
	}
}

func TestNormalizedTrackIsScaled(t *testing.T) {
	t.Parallel()
	m := mixer.New(48000, 2, mixer.WithChunkSamples(4), mixer.WithNormalization(mixer.PolicyPeak, 0.5))
	m.EnqueueSustained([]int16{1000, -2000, 500, 0})
	got := samplesOf(t, m.ReadChunk())
	// factor = 0.5*32767/2000
	want := []int16{8192, -16384, 4096, 0}
	for i := range want {
		if d := int(got[i]) - int(want[i]); d < -1 || d > 1 {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConcurrentEnqueueAndRead(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 64)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				m.ReadChunk()
			}
		}
	}()
	handles := make([]mixer.Handle, 0, 50)
	for range 50 {
		handles = append(handles, m.EnqueueOverlay(constant(128, 1)))
	}
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("track never completed")
		}
	}
	close(stop)
	<-done
}

func TestSustainedProgress(t *testing.T) {
	t.Parallel()
	m := newMixer(t, 4)
	if _, _, ok := m.SustainedProgress(); ok {
		t.Fatal("progress reported on empty mixer")
	}
	m.EnqueueSustained(constant(10, 1))
	m.ReadChunk()
	pos, total, ok := m.SustainedProgress()
	if !ok || pos != 4 || total != 10 {
		t.Errorf("SustainedProgress() = %d, %d, %v; want 4, 10, true", pos, total, ok)
	}
}
