// Package mixer sums sustained music tracks and transient overlay effects
// into fixed-size s16le chunks for a voice transport polled on a fixed
// cadence.
//
// Track callbacks never run while the mixer lock is held: they are collected
// during a pass and invoked after release, in the order the events occurred.
// A callback may therefore enqueue, skip or clear on the same mixer.
package mixer

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ChunkDuration is the transport cadence.
const ChunkDuration = 20 * time.Millisecond

type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "stopped"
}

type Mixer struct {
	sampleRate   int
	channels     int
	chunkSamples int
	policy       Policy
	target       float64
	log          *slog.Logger

	nextID atomic.Uint64

	mu        sync.Mutex
	sustained []*track
	overlay   []*track
	paused    bool
	idleHold  bool
	acc       []int32
}

type Option func(*Mixer)

// WithChunkSamples overrides the number of interleaved samples per chunk.
func WithChunkSamples(n int) Option {
	return func(m *Mixer) {
		if n > 0 {
			m.chunkSamples = n
		}
	}
}

func WithNormalization(policy Policy, target float64) Option {
	return func(m *Mixer) {
		m.policy = policy
		m.target = target
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Mixer) {
		if l != nil {
			m.log = l
		}
	}
}

func New(sampleRate, channels int, opts ...Option) *Mixer {
	m := &Mixer{
		sampleRate:   sampleRate,
		channels:     channels,
		chunkSamples: sampleRate * channels * int(ChunkDuration/time.Millisecond) / 1000,
		policy:       PolicyNone,
		target:       1.0,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	m.acc = make([]int32, m.chunkSamples)
	return m
}

func (m *Mixer) SampleRate() int   { return m.sampleRate }
func (m *Mixer) Channels() int     { return m.channels }
func (m *Mixer) ChunkSamples() int { return m.chunkSamples }

// ChunkBytes is the exact length of every ReadChunk result.
func (m *Mixer) ChunkBytes() int { return m.chunkSamples * 2 }

func (m *Mixer) EnqueueSustained(samples []int16, opts ...TrackOption) Handle {
	return m.enqueue(&m.sustained, samples, opts)
}

func (m *Mixer) EnqueueOverlay(samples []int16, opts ...TrackOption) Handle {
	return m.enqueue(&m.overlay, samples, opts)
}

func (m *Mixer) enqueue(dst *[]*track, samples []int16, opts []TrackOption) Handle {
	t := &track{
		id:      TrackID(m.nextID.Add(1)),
		samples: samples,
		factor:  Factor(samples, m.policy, m.target),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}

	m.mu.Lock()
	*dst = append(*dst, t)
	m.paused = false
	m.idleHold = false
	m.mu.Unlock()

	m.log.Debug("track enqueued", "track", t.name, "id", t.id, "samples", len(samples), "factor", t.factor)
	return Handle{id: t.id, name: t.name, done: t.done}
}

// ReadChunk mixes the next chunk of every active track. It always returns
// ChunkBytes bytes; silence when paused or idle.
func (m *Mixer) ReadChunk() []byte {
	out := make([]byte, m.ChunkBytes())

	m.mu.Lock()
	if m.paused || (len(m.sustained) == 0 && len(m.overlay) == 0) {
		m.mu.Unlock()
		return out
	}

	clear(m.acc)
	var events []func()
	m.sustained, events = m.mixInto(m.sustained, events)
	m.overlay, events = m.mixInto(m.overlay, events)

	for i, v := range m.acc {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(clamp16(v))))
	}
	m.mu.Unlock()

	m.run(events)
	return out
}

// mixInto adds each track's next chunk into m.acc and returns the tracks
// still active. Caller must hold m.mu.
func (m *Mixer) mixInto(tracks []*track, events []func()) ([]*track, []func()) {
	kept := tracks[:0]
	for _, t := range tracks {
		if !t.started && t.pos == 0 {
			t.started = true
			if t.onStart != nil {
				events = append(events, m.guard(t, "on_start", t.onStart))
			}
		}

		n := min(t.remaining(), m.chunkSamples)
		src := t.samples[t.pos : t.pos+n]
		if t.factor == 1.0 {
			for i, s := range src {
				m.acc[i] += int32(s)
			}
		} else {
			for i, s := range src {
				m.acc[i] += clamp16(int32(math.Round(float64(s) * t.factor)))
			}
		}
		t.pos += n

		if t.finished() {
			close(t.done)
			if t.onComplete != nil {
				events = append(events, m.guard(t, "on_complete", t.onComplete))
			}
			continue
		}
		kept = append(kept, t)
	}
	// drop references held past the new length
	for i := len(kept); i < len(tracks); i++ {
		tracks[i] = nil
	}
	return kept, events
}

// SkipSustained ends every sustained track and runs its completion callback.
// It returns the number of tracks skipped.
func (m *Mixer) SkipSustained() int {
	m.mu.Lock()
	skipped := m.sustained
	m.sustained = nil
	var events []func()
	for _, t := range skipped {
		t.pos = len(t.samples)
		close(t.done)
		if t.onComplete != nil {
			events = append(events, m.guard(t, "on_complete", t.onComplete))
		}
	}
	m.mu.Unlock()

	m.run(events)
	return len(skipped)
}

// ClearSustained drops sustained tracks without completion callbacks.
func (m *Mixer) ClearSustained() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sustained)
	dropAll(m.sustained)
	m.sustained = nil
	return n
}

// ClearOverlay drops overlay tracks without completion callbacks.
func (m *Mixer) ClearOverlay() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.overlay)
	dropAll(m.overlay)
	m.overlay = nil
	return n
}

func dropAll(tracks []*track) {
	for _, t := range tracks {
		close(t.done)
	}
}

func (m *Mixer) Pause() {
	m.mu.Lock()
	m.paused = true
	m.idleHold = false
	m.mu.Unlock()
}

func (m *Mixer) Resume() {
	m.mu.Lock()
	m.paused = false
	m.idleHold = len(m.sustained) == 0 && len(m.overlay) == 0
	m.mu.Unlock()
}

func (m *Mixer) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.paused:
		return StatePaused
	case len(m.sustained) > 0 || len(m.overlay) > 0 || m.idleHold:
		return StatePlaying
	}
	return StateStopped
}

// SustainedProgress reports the head sustained track's cursor and length in
// samples.
func (m *Mixer) SustainedProgress() (pos, total int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sustained) == 0 {
		return 0, 0, false
	}
	t := m.sustained[0]
	return t.pos, len(t.samples), true
}

func (m *Mixer) SustainedLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sustained)
}

func (m *Mixer) OverlayLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.overlay)
}

// guard wraps a callback so a panic is logged instead of propagated.
func (m *Mixer) guard(t *track, kind string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("track callback panic", "track", t.name, "id", t.id, "callback", kind, "panic", r)
			}
		}()
		fn()
	}
}

func (m *Mixer) run(events []func()) {
	for _, fn := range events {
		fn()
	}
}
