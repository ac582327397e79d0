package player

import (
	"context"
	"errors"
	"time"

	"github.com/sonroyaalmerol/balaambot/internal/cache"
	"github.com/sonroyaalmerol/balaambot/internal/repository"
	"github.com/sonroyaalmerol/balaambot/internal/stream"
)

var (
	ErrNotConnected    = errors.New("not connected to a voice channel")
	ErrNothingPlaying  = errors.New("nothing is playing")
	ErrJobNotFound     = errors.New("sfx job not found")
	ErrAlreadyActive   = errors.New("sfx job already active for this sound")
	ErrInvalidInterval = errors.New("invalid interval: need 0 <= min <= max")
	ErrUnknownSound    = errors.New("unknown sound")
)

// Source is the slice of the audio cache the scheduler needs.
type Source interface {
	Fetch(ctx context.Context, url string, rate, channels int, auth *cache.Auth) (string, error)
	FetchMetadata(ctx context.Context, url string) (cache.Metadata, error)
	CachedMetadata(url string) (cache.Metadata, bool)
	ReadPCM(url string, rate, channels int) ([]byte, bool, error)
	IsCached(url string, rate, channels int) bool
	ResolvePlaylist(ctx context.Context, url string) ([]string, error)
	Search(ctx context.Context, query string, n int) ([]cache.SearchResult, error)
}

// Decoder turns a local sound file into PCM.
type Decoder interface {
	Decode(ctx context.Context, input string, sampleRate, channels int) ([]byte, error)
}

// SettingsStore yields per-guild settings, creating defaults on first use.
type SettingsStore interface {
	UpsertSettings(ctx context.Context, guild string) (*repository.Settings, error)
}

// Announcer posts a message to a text channel.
type Announcer interface {
	Announce(channelID, text string)
}

// Transport is a live voice link streaming one connection's mixer.
type Transport interface {
	Close() error
}

// Joiner opens a voice link in channelID that reads from src until the
// returned Transport is closed or ctx ends.
type Joiner func(ctx context.Context, guildID, channelID string, src stream.ChunkSource) (Transport, error)

// QueueItem describes one queued url for display.
type QueueItem struct {
	URL        string
	Title      string
	Runtime    int
	RuntimeStr string
	Cached     bool
}

// JobInfo describes a running sfx job.
type JobInfo struct {
	ID      string
	GuildID string
	Sound   string
	Min     time.Duration
	Max     time.Duration
}
