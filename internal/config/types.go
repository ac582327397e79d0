package config

import "time"

type Config struct {
	DiscordToken          string `yaml:"discord_token"`
	SpotifyClientID       string `yaml:"spotify_client_id"`
	SpotifyClientSecret   string `yaml:"spotify_client_secret"`
	YouTubeCookiesPath    string `yaml:"youtube_cookies"`
	DataDir               string `yaml:"data_dir"`
	CacheDir              string `yaml:"cache_dir"`
	TempDir               string `yaml:"temp_dir"`
	SoundsDir             string `yaml:"sounds_dir"`
	CacheLimitBytes       int64  `yaml:"cache_limit_bytes"`
	PlaylistLimit         int    `yaml:"playlist_limit"`
	RegisterCommandsOnBot bool   `yaml:"register_commands_on_bot"`
	MetricsAddr           string `yaml:"metrics_addr"`
	LogLevel              string `yaml:"log_level"`

	Audio   AudioConfig   `yaml:"audio"`
	Process ProcessConfig `yaml:"process"`
}

// AudioConfig is the fixed PCM profile shared by the mixer, cache and
// voice sender.
type AudioConfig struct {
	SampleRate          int     `yaml:"sample_rate"`
	Channels            int     `yaml:"channels"`
	PrefetchCount       int     `yaml:"prefetch_count"`
	Normalization       string  `yaml:"normalization"` // none/peak/three-sigma
	NormalizationTarget float64 `yaml:"normalization_target"`
	OpusBitrate         int     `yaml:"opus_bitrate"`
}

type ProcessConfig struct {
	MaxSubprocesses int           `yaml:"max_subprocesses"`
	Timeout         time.Duration `yaml:"timeout"`
}
