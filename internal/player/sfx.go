package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sonroyaalmerol/balaambot/internal/mixer"
)

type sfxJob struct {
	id     string
	conn   *ConnectionState
	sound  string
	min    time.Duration
	max    time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *sfxJob) info() JobInfo {
	return JobInfo{ID: j.id, GuildID: j.conn.guildID, Sound: j.sound, Min: j.min, Max: j.max}
}

// ListSounds returns the file names available in the sounds directory.
func (pm *PlayerManager) ListSounds() ([]string, error) {
	entries, err := os.ReadDir(pm.cfg.SoundsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

// SoundPath resolves a sound name inside the sounds directory.
func (pm *PlayerManager) SoundPath(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrUnknownSound, name)
	}
	p := filepath.Join(pm.cfg.SoundsDir, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSound, name)
	}
	return p, nil
}

// decodeSound returns the sound's samples, decoding through the
// transcoder on first use.
func (pm *PlayerManager) decodeSound(ctx context.Context, path string) ([]int16, error) {
	if s, ok := pm.sounds.Get(path); ok {
		return s, nil
	}
	a := pm.cfg.Audio
	raw, err := pm.deps.Decoder.Decode(ctx, path, a.SampleRate, a.Channels)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	s := mixer.SamplesFromBytes(raw)
	pm.sounds.Set(path, s)
	return s, nil
}

// TriggerSFX plays name once over whatever is playing.
func (pm *PlayerManager) TriggerSFX(ctx context.Context, guildID, name string) (mixer.Handle, error) {
	c := pm.Peek(guildID)
	if c == nil || !c.Connected() {
		return mixer.Handle{}, ErrNotConnected
	}
	path, err := pm.SoundPath(name)
	if err != nil {
		return mixer.Handle{}, err
	}
	samples, err := pm.decodeSound(ctx, path)
	if err != nil {
		return mixer.Handle{}, err
	}
	c.cancelIdle()
	h := c.mixer.EnqueueOverlay(samples,
		mixer.WithName(name),
		mixer.OnComplete(func() { c.spawn(c.scheduleIdleDisconnect) }),
	)
	pm.deps.Metrics.TracksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "overlay")))
	return h, nil
}

// AddJob starts a loop that plays name at random intervals in [min, max]
// until removed or the connection goes away.
func (pm *PlayerManager) AddJob(ctx context.Context, guildID, name string, minWait, maxWait time.Duration) (string, error) {
	if minWait < 0 || maxWait < minWait {
		return "", ErrInvalidInterval
	}
	c := pm.Peek(guildID)
	if c == nil || !c.Connected() {
		return "", ErrNotConnected
	}
	path, err := pm.SoundPath(name)
	if err != nil {
		return "", err
	}

	jctx, cancel := context.WithCancel(c.ctx)
	j := &sfxJob{
		id:     uuid.NewString(),
		conn:   c,
		sound:  name,
		min:    minWait,
		max:    maxWait,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	pm.mu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		pm.mu.Unlock()
		cancel()
		return "", ErrNotConnected
	}
	for _, other := range c.jobs {
		if other.sound == name {
			c.mu.Unlock()
			pm.mu.Unlock()
			cancel()
			return "", fmt.Errorf("%w: %s", ErrAlreadyActive, name)
		}
	}
	c.jobs[j.id] = j
	pm.jobs[j.id] = j
	c.cancelIdleLocked()
	c.mu.Unlock()
	pm.mu.Unlock()

	pm.deps.Metrics.ActiveSFXJobs.Add(ctx, 1)
	slog.Info("sfx job started", "guildID", guildID, "job", j.id, "sound", name, "min", minWait, "max", maxWait)
	go pm.runJob(jctx, j, path)
	return j.id, nil
}

func (pm *PlayerManager) runJob(ctx context.Context, j *sfxJob, path string) {
	c := j.conn
	defer close(j.done)
	defer pm.dropJob(j)

	for {
		wait := j.min
		if span := j.max - j.min; span > 0 {
			wait += time.Duration(rand.Int64N(int64(span) + 1))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if !pm.isLive(c) {
			slog.Info("sfx job stopping, connection gone", "guildID", c.guildID, "job", j.id)
			return
		}

		samples, err := pm.decodeSound(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("sfx decode failed", "guildID", c.guildID, "job", j.id, "err", err)
			continue
		}
		h := c.mixer.EnqueueOverlay(samples, mixer.WithName(j.sound))
		pm.deps.Metrics.TracksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "overlay")))
		select {
		case <-ctx.Done():
			return
		case <-h.Done():
		}
	}
}

func (pm *PlayerManager) dropJob(j *sfxJob) {
	pm.mu.Lock()
	delete(pm.jobs, j.id)
	pm.mu.Unlock()

	c := j.conn
	c.mu.Lock()
	delete(c.jobs, j.id)
	c.mu.Unlock()

	pm.deps.Metrics.ActiveSFXJobs.Add(context.Background(), -1)
	slog.Info("sfx job stopped", "guildID", c.guildID, "job", j.id)
	c.spawn(c.scheduleIdleDisconnect)
}

// RemoveJob cancels a job and waits for its loop to exit.
func (pm *PlayerManager) RemoveJob(id string) error {
	pm.mu.Lock()
	j, ok := pm.jobs[id]
	pm.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	j.cancel()
	<-j.done
	return nil
}

// ListJobs returns the guild's jobs; an empty guildID lists every job.
func (pm *PlayerManager) ListJobs(guildID string) []JobInfo {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	var out []JobInfo
	for _, j := range pm.jobs {
		if guildID == "" || j.conn.guildID == guildID {
			out = append(out, j.info())
		}
	}
	slices.SortFunc(out, func(a, b JobInfo) int { return strings.Compare(a.Sound, b.Sound) })
	return out
}

// StopAllJobs removes every job of the guild and returns how many ran.
func (pm *PlayerManager) StopAllJobs(guildID string) int {
	jobs := pm.ListJobs(guildID)
	for _, j := range jobs {
		_ = pm.RemoveJob(j.ID)
	}
	return len(jobs)
}
