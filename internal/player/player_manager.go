package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sonroyaalmerol/balaambot/internal/config"
	"github.com/sonroyaalmerol/balaambot/internal/observe"
	"github.com/sonroyaalmerol/balaambot/internal/repository"
)

// Deps are the collaborators shared by every connection.
type Deps struct {
	Source    Source
	Decoder   Decoder
	Settings  SettingsStore
	Join      Joiner
	Announcer Announcer
	Metrics   *observe.Metrics

	// Spotify may be nil when no credentials are configured.
	Spotify SpotifyResolver
}

// PlayerManager owns one ConnectionState per guild and the global sfx job
// index.
type PlayerManager struct {
	cfg  *config.Config
	deps Deps

	// decoded sound effects keyed by path
	sounds *TTLCache[[]int16]

	mu    sync.Mutex
	conns map[string]*ConnectionState
	jobs  map[string]*sfxJob
}

func NewPlayerManager(cfg *config.Config, deps Deps) *PlayerManager {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &PlayerManager{
		cfg:    cfg,
		deps:   deps,
		sounds: NewTTLCache[[]int16](10 * time.Minute),
		conns:  make(map[string]*ConnectionState),
		jobs:   make(map[string]*sfxJob),
	}
}

// Get returns the guild's state, creating it when absent.
func (pm *PlayerManager) Get(guildID string) *ConnectionState {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if c, ok := pm.conns[guildID]; ok {
		return c
	}
	c := newConnectionState(pm, guildID)
	pm.conns[guildID] = c
	return c
}

func (pm *PlayerManager) Peek(guildID string) *ConnectionState {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.conns[guildID]
}

// Remove forgets the guild's state without tearing it down.
func (pm *PlayerManager) Remove(guildID string) *ConnectionState {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	c := pm.conns[guildID]
	delete(pm.conns, guildID)
	return c
}

// Connect joins (or moves to) channelID and sets where announcements go.
func (pm *PlayerManager) Connect(ctx context.Context, guildID, channelID, textChannelID string) (*ConnectionState, error) {
	c := pm.Get(guildID)
	if textChannelID != "" {
		c.SetAnnounceChannel(textChannelID)
	}
	if err := c.Connect(ctx, channelID); err != nil {
		return nil, err
	}
	return c, nil
}

// Disconnect stops everything for the guild and leaves voice.
func (pm *PlayerManager) Disconnect(guildID string) error {
	c := pm.Remove(guildID)
	if c == nil {
		return ErrNotConnected
	}
	c.close()
	return nil
}

// Shutdown disconnects every guild.
func (pm *PlayerManager) Shutdown() {
	pm.mu.Lock()
	conns := pm.conns
	pm.conns = make(map[string]*ConnectionState)
	pm.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Go(c.close)
	}
	wg.Wait()
	slog.Info("player manager stopped", "connections", len(conns))
}

func (pm *PlayerManager) isLive(c *ConnectionState) bool {
	return pm.Peek(c.guildID) == c && c.Connected()
}

// Settings returns the guild's settings, falling back to defaults when the
// store is unavailable.
func (pm *PlayerManager) Settings(ctx context.Context, guildID string) repository.Settings {
	def := repository.Settings{GuildID: guildID, SecondsWaitAfterEmpty: 30, LeaveIfNoListeners: true, AnnounceTracks: true}
	if pm.deps.Settings == nil {
		return def
	}
	s, err := pm.deps.Settings.UpsertSettings(ctx, guildID)
	if err != nil || s == nil {
		slog.Warn("load settings", "guildID", guildID, "err", err)
		return def
	}
	return *s
}
