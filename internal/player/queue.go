package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sonroyaalmerol/balaambot/internal/mixer"
	"github.com/sonroyaalmerol/balaambot/internal/utils"
)

const (
	msgNextTrack     = "Playing next track"
	msgQueueFinished = "Finished playing queue!"
)

// Add appends url to the guild's queue. The first add on an empty queue
// starts playback; position is the 0-based index of the new entry.
func (pm *PlayerManager) Add(ctx context.Context, guildID, url string) (position int, started bool) {
	return pm.Get(guildID).add(url)
}

// AddMany appends urls in order with the same kickoff rule as Add.
func (pm *PlayerManager) AddMany(ctx context.Context, guildID string, urls []string) (position int, started bool) {
	return pm.Get(guildID).add(urls...)
}

func (c *ConnectionState) add(urls ...string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := len(c.queue)
	if len(urls) == 0 || c.closed {
		return pos, false
	}
	c.queue = append(c.queue, urls...)
	c.cancelIdleLocked()
	if pos != 0 || c.loading {
		return pos, false
	}
	c.loading = true
	if !c.spawnLocked(c.playHead) {
		c.loading = false
		return pos, false
	}
	return pos, true
}

// playHead loads the queue head and hands it to the mixer. Only one runs
// per connection; c.loading marks it.
func (c *ConnectionState) playHead() {
	a := c.pm.cfg.Audio
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.closed {
			closed := c.closed
			c.queue = nil
			c.loading = false
			c.mu.Unlock()
			if !closed {
				c.scheduleIdleDisconnect()
			}
			return
		}
		url := c.queue[0]
		gen := c.gen
		c.mu.Unlock()

		samples, err := c.load(url)

		c.mu.Lock()
		if c.gen != gen {
			// head was skipped or the queue dropped while loading
			c.mu.Unlock()
			continue
		}
		if err != nil {
			c.queue = c.queue[1:]
			c.gen++
			empty := len(c.queue) == 0
			if empty {
				c.queue = nil
				c.loading = false
			}
			c.mu.Unlock()

			slog.Warn("track failed, skipping", "guildID", c.guildID, "url", url, "err", err)
			c.announce(fmt.Sprintf("Could not play %s, skipping", url))
			if empty {
				c.announce(msgQueueFinished)
				c.scheduleIdleDisconnect()
				return
			}
			continue
		}

		name := url
		if md, ok := c.pm.deps.Source.CachedMetadata(url); ok {
			name = md.Title
		}
		c.mixer.EnqueueSustained(samples,
			mixer.WithName(name),
			mixer.OnStart(func() { c.spawn(func() { c.announceStart(url) }) }),
			mixer.OnComplete(func() { c.advance(gen) }),
		)
		c.loading = false
		c.mu.Unlock()

		c.pm.deps.Metrics.TracksStarted.Add(c.ctx, 1, metric.WithAttributes(attribute.String("kind", "sustained")))
		c.prefetch(url, a.PrefetchCount)
		return
	}
}

func (c *ConnectionState) load(url string) ([]int16, error) {
	a := c.pm.cfg.Audio
	// a second pass covers eviction between fetch and read
	for range 2 {
		if _, err := c.pm.deps.Source.Fetch(c.ctx, url, a.SampleRate, a.Channels, nil); err != nil {
			return nil, err
		}
		raw, ok, err := c.pm.deps.Source.ReadPCM(url, a.SampleRate, a.Channels)
		if err != nil {
			return nil, err
		}
		if ok {
			return mixer.SamplesFromBytes(raw), nil
		}
		slog.Debug("cached audio vanished before read, refetching", "guildID", c.guildID, "url", url)
	}
	return nil, fmt.Errorf("cached audio for %s vanished", url)
}

func (c *ConnectionState) announceStart(url string) {
	if !c.pm.Settings(c.ctx, c.guildID).AnnounceTracks {
		return
	}
	md, ok := c.pm.deps.Source.CachedMetadata(url)
	if !ok {
		c.announce(msgNextTrack)
		return
	}
	c.announce(fmt.Sprintf("Now playing **%s** [%s]", utils.EscapeMd(md.Title), md.RuntimeStr))
}

// advance runs when the head's track leaves the mixer through completion
// or skip. gen pins it to the head it was enqueued for.
func (c *ConnectionState) advance(gen uint64) {
	c.mu.Lock()
	if c.closed || c.gen != gen || len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	c.queue = c.queue[1:]
	c.gen++
	if len(c.queue) == 0 {
		c.queue = nil
		c.mu.Unlock()
		c.spawn(func() {
			c.announce(msgQueueFinished)
			c.scheduleIdleDisconnect()
		})
		return
	}
	c.loading = true
	if !c.spawnLocked(c.playHead) {
		c.loading = false
	}
	c.mu.Unlock()
}

// prefetch warms the cache for up to k entries after head. An entry that
// fails to download is dropped from the queue.
func (c *ConnectionState) prefetch(head string, k int) {
	if k <= 0 {
		return
	}
	a := c.pm.cfg.Audio

	c.mu.Lock()
	var next []string
	if len(c.queue) > 1 {
		next = slices.Clone(c.queue[1:min(len(c.queue), k+1)])
	}
	c.mu.Unlock()

	for _, url := range next {
		if url == head || c.pm.deps.Source.IsCached(url, a.SampleRate, a.Channels) {
			continue
		}
		c.spawn(func() {
			_, err := c.pm.deps.Source.Fetch(c.ctx, url, a.SampleRate, a.Channels, nil)
			if err == nil {
				return
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			c.pm.deps.Metrics.PrefetchFailures.Add(c.ctx, 1)
			slog.Warn("prefetch failed, removing from queue", "guildID", c.guildID, "url", url, "err", err)
			if c.removePending(url) {
				c.announce(fmt.Sprintf("Could not load %s, removed from queue", url))
			}
		})
	}
}

// removePending drops the first non-head occurrence of url.
func (c *ConnectionState) removePending(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 1; i < len(c.queue); i++ {
		if c.queue[i] == url {
			c.queue = slices.Delete(c.queue, i, i+1)
			return true
		}
	}
	return false
}

// Skip ends the current track. When the head is still loading it is
// dropped instead.
func (pm *PlayerManager) Skip(guildID string) error {
	c := pm.Peek(guildID)
	if c == nil {
		return ErrNothingPlaying
	}
	if c.mixer.SkipSustained() > 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return ErrNothingPlaying
	}
	c.queue = c.queue[1:]
	c.gen++
	if c.loading {
		// playHead notices the gen change and moves on
		return nil
	}
	if len(c.queue) == 0 {
		c.queue = nil
		c.spawnLocked(c.scheduleIdleDisconnect)
		return nil
	}
	c.loading = true
	if !c.spawnLocked(c.playHead) {
		c.loading = false
	}
	return nil
}

// Clear drops everything after the head and returns how many were removed.
func (pm *PlayerManager) Clear(guildID string) int {
	c := pm.Peek(guildID)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) <= 1 {
		return 0
	}
	n := len(c.queue) - 1
	c.queue = c.queue[:1]
	return n
}

// Stop silences the sustained layer and drops the queue.
func (pm *PlayerManager) Stop(guildID string) error {
	c := pm.Peek(guildID)
	if c == nil {
		return ErrNothingPlaying
	}
	c.mu.Lock()
	had := len(c.queue) > 0
	c.queue = nil
	c.gen++
	c.mu.Unlock()

	if c.mixer.ClearSustained() == 0 && !had {
		return ErrNothingPlaying
	}
	c.spawn(c.scheduleIdleDisconnect)
	return nil
}

// Shuffle reorders everything after the head.
func (pm *PlayerManager) Shuffle(guildID string) int {
	c := pm.Peek(guildID)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) < 3 {
		return 0
	}
	utils.ShuffleSlice(c.queue[1:])
	return len(c.queue) - 1
}

// Queue returns a copy of the guild's urls, head first.
func (pm *PlayerManager) Queue(guildID string) []string {
	c := pm.Peek(guildID)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.queue)
}

// QueueDetails resolves cached metadata for every queued url.
func (pm *PlayerManager) QueueDetails(guildID string) []QueueItem {
	a := pm.cfg.Audio
	urls := pm.Queue(guildID)
	out := make([]QueueItem, 0, len(urls))
	for _, u := range urls {
		it := QueueItem{URL: u, Title: u, Cached: pm.deps.Source.IsCached(u, a.SampleRate, a.Channels)}
		if md, ok := pm.deps.Source.CachedMetadata(u); ok {
			it.Title = md.Title
			it.Runtime = md.Runtime
			it.RuntimeStr = md.RuntimeStr
		}
		out = append(out, it)
	}
	return out
}

// NowPlaying describes the track at the head of the queue.
type NowPlaying struct {
	Item     QueueItem
	Position int
	State    mixer.State
}

// NowPlaying reports the head track and its position in seconds. ok is
// false when nothing sustained is in the mixer.
func (pm *PlayerManager) NowPlaying(guildID string) (np NowPlaying, ok bool) {
	c := pm.Peek(guildID)
	if c == nil {
		return NowPlaying{}, false
	}
	pos, _, ok := c.mixer.SustainedProgress()
	if !ok {
		return NowPlaying{}, false
	}
	items := pm.QueueDetails(guildID)
	if len(items) == 0 {
		return NowPlaying{}, false
	}
	perSec := c.mixer.SampleRate() * c.mixer.Channels()
	return NowPlaying{Item: items[0], Position: pos / perSec, State: c.mixer.State()}, true
}
