package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sonroyaalmerol/balaambot/internal/mixer"
)

// ConnectionState is everything the bot holds for one guild: the voice
// link, the mixer it streams, the url queue and the sfx jobs.
type ConnectionState struct {
	pm      *PlayerManager
	guildID string
	mixer   *mixer.Mixer

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu            sync.Mutex
	transport     Transport
	channelID     string
	textChannelID string
	queue         []string
	// gen changes whenever the queue head is removed
	gen       uint64
	loading   bool
	jobs      map[string]*sfxJob
	idleTimer *time.Timer
	closed    bool
}

func newConnectionState(pm *PlayerManager, guildID string) *ConnectionState {
	a := pm.cfg.Audio
	m := mixer.New(a.SampleRate, a.Channels,
		mixer.WithNormalization(mixer.Policy(a.Normalization), a.NormalizationTarget),
		mixer.WithLogger(slog.With("guildID", guildID)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionState{
		pm:      pm,
		guildID: guildID,
		mixer:   m,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*sfxJob),
	}
}

func (c *ConnectionState) GuildID() string     { return c.guildID }
func (c *ConnectionState) Mixer() *mixer.Mixer { return c.mixer }

func (c *ConnectionState) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}

func (c *ConnectionState) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil && !c.closed
}

func (c *ConnectionState) SetAnnounceChannel(channelID string) {
	c.mu.Lock()
	c.textChannelID = channelID
	c.mu.Unlock()
}

// Connect joins channelID, leaving any previous channel first. Joining the
// channel already in use is a no-op.
func (c *ConnectionState) Connect(ctx context.Context, channelID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.transport != nil && c.channelID == channelID {
		c.mu.Unlock()
		return nil
	}
	old := c.transport
	c.transport = nil
	c.channelID = ""
	c.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("leave previous voice channel", "guildID", c.guildID, "err", err)
		}
	}

	t, err := c.pm.deps.Join(c.ctx, c.guildID, channelID, c.mixer)
	if err != nil {
		if old != nil {
			c.pm.deps.Metrics.ActiveConnections.Add(ctx, -1)
		}
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = t.Close()
		return ErrNotConnected
	}
	c.transport = t
	c.channelID = channelID
	c.cancelIdleLocked()
	c.mu.Unlock()

	if old == nil {
		c.pm.deps.Metrics.ActiveConnections.Add(ctx, 1)
	}
	slog.Info("voice connected", "guildID", c.guildID, "channelID", channelID)
	// a join that is never followed by work still times out
	c.scheduleIdleDisconnect()
	return nil
}

// close tears the connection down: jobs, queue, pending work, then the
// voice link.
func (c *ConnectionState) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelIdleLocked()
	t := c.transport
	c.transport = nil
	c.channelID = ""
	c.queue = nil
	c.gen++
	jobs := make([]*sfxJob, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	c.mu.Unlock()

	c.cancel()
	for _, j := range jobs {
		<-j.done
	}
	c.mixer.ClearSustained()
	c.mixer.ClearOverlay()
	c.tasks.Wait()

	if t != nil {
		if err := t.Close(); err != nil {
			slog.Warn("voice disconnect", "guildID", c.guildID, "err", err)
		}
		c.pm.deps.Metrics.ActiveConnections.Add(context.Background(), -1)
	}
	slog.Info("voice disconnected", "guildID", c.guildID)
}

// spawn runs fn as a tracked task unless the connection is closing.
func (c *ConnectionState) spawn(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawnLocked(fn)
}

func (c *ConnectionState) spawnLocked(fn func()) bool {
	if c.closed {
		return false
	}
	c.tasks.Go(fn)
	return true
}

func (c *ConnectionState) announce(text string) {
	c.mu.Lock()
	ch := c.textChannelID
	c.mu.Unlock()
	if ch == "" || c.pm.deps.Announcer == nil {
		slog.Debug("announcement dropped", "guildID", c.guildID, "text", text)
		return
	}
	c.pm.deps.Announcer.Announce(ch, text)
}

// Pause holds the mixer; the voice link keeps sending silence.
func (c *ConnectionState) Pause() error {
	if c.mixer.State() != mixer.StatePlaying {
		return ErrNothingPlaying
	}
	c.mixer.Pause()
	return nil
}

func (c *ConnectionState) Resume() error {
	if c.mixer.State() != mixer.StatePaused {
		return ErrNothingPlaying
	}
	c.mixer.Resume()
	c.cancelIdle()
	return nil
}

func (c *ConnectionState) idleLocked() bool {
	return len(c.queue) == 0 && len(c.jobs) == 0 && !c.loading &&
		c.mixer.SustainedLen() == 0 && c.mixer.OverlayLen() == 0
}

// scheduleIdleDisconnect arms the guild's leave timer. Zero seconds in the
// settings disables it.
func (c *ConnectionState) scheduleIdleDisconnect() {
	set := c.pm.Settings(c.ctx, c.guildID)
	if set.SecondsWaitAfterEmpty <= 0 {
		return
	}
	wait := time.Duration(set.SecondsWaitAfterEmpty) * time.Second

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.idleLocked() {
		return
	}
	c.cancelIdleLocked()
	c.idleTimer = time.AfterFunc(wait, func() {
		c.mu.Lock()
		idle := !c.closed && c.idleLocked()
		c.mu.Unlock()
		if !idle {
			return
		}
		slog.Info("leaving idle voice channel", "guildID", c.guildID, "after", wait)
		if c.pm.Peek(c.guildID) == c {
			_ = c.pm.Disconnect(c.guildID)
		}
	})
}

func (c *ConnectionState) cancelIdle() {
	c.mu.Lock()
	c.cancelIdleLocked()
	c.mu.Unlock()
}

func (c *ConnectionState) cancelIdleLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}
