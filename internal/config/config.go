package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sonroyaalmerol/balaambot/internal/mixer"
)

const (
	DefaultSampleRate          = 48000
	DefaultChannels            = 2
	DefaultPrefetchCount       = 3
	DefaultNormalization       = "none"
	DefaultNormalizationTarget = 0.997
	DefaultOpusBitrate         = 128000
	DefaultMaxSubprocesses     = 4
	DefaultSubprocessTimeout   = 10 * time.Minute
	DefaultCacheLimitBytes     = 2 << 30
	DefaultPlaylistLimit       = 50
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

// envReader reads typed env vars and keeps a ErrConfig for every value
// that does not parse; the default stays in place for those.
type envReader struct {
	errs []error
}

func (r *envReader) bad(key, raw, kind string) {
	r.errs = append(r.errs, ErrConfig(fmt.Sprintf("%s must be %s, got %q", key, kind, raw)))
}

func (r *envReader) int(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.bad(key, raw, "an integer")
		return def
	}
	return v
}

func (r *envReader) int64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.bad(key, raw, "an integer")
		return def
	}
	return v
}

func (r *envReader) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.bad(key, raw, "a number")
		return def
	}
	return v
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.bad(key, raw, "a duration like 30s or 10m")
		return def
	}
	return v
}

func (r *envReader) bool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.bad(key, raw, "true or false")
		return def
	}
	return v
}

func defaults() *Config {
	return &Config{
		DataDir:         "./data",
		SoundsDir:       "./sounds",
		CacheLimitBytes: DefaultCacheLimitBytes,
		PlaylistLimit:   DefaultPlaylistLimit,
		LogLevel:        "info",
		Audio: AudioConfig{
			SampleRate:          DefaultSampleRate,
			Channels:            DefaultChannels,
			PrefetchCount:       DefaultPrefetchCount,
			Normalization:       DefaultNormalization,
			NormalizationTarget: DefaultNormalizationTarget,
			OpusBitrate:         DefaultOpusBitrate,
		},
		Process: ProcessConfig{
			MaxSubprocesses: DefaultMaxSubprocesses,
			Timeout:         DefaultSubprocessTimeout,
		},
	}
}

// LoadConfig builds the configuration from an optional YAML file named by
// CONFIG_FILE, then environment variables on top, then validates it and
// creates the data directories.
func LoadConfig() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	envErr := applyEnv(cfg)

	if err := errors.Join(envErr, Validate(cfg)); err != nil {
		return nil, err
	}
	for _, dir := range []string{cfg.DataDir, cfg.CacheDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	slog.Debug("loaded config file", "path", path)
	return nil
}

// applyEnv layers environment variables over cfg. Values that do not parse
// are returned as ErrConfig errors.
func applyEnv(cfg *Config) error {
	var r envReader
	cfg.DiscordToken = getenv("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.SpotifyClientID = getenv("SPOTIFY_CLIENT_ID", cfg.SpotifyClientID)
	cfg.SpotifyClientSecret = getenv("SPOTIFY_CLIENT_SECRET", cfg.SpotifyClientSecret)
	cfg.YouTubeCookiesPath = getenv("YOUTUBE_COOKIES", cfg.YouTubeCookiesPath)
	cfg.DataDir = getenv("DATA_DIR", cfg.DataDir)
	cfg.SoundsDir = getenv("SOUNDS_DIR", cfg.SoundsDir)
	cfg.MetricsAddr = getenv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)

	audioRoot := filepath.Join(cfg.DataDir, "audio_cache")
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(audioRoot, "cached")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(audioRoot, "downloading")
	}
	cfg.CacheDir = getenv("AUDIO_CACHE_DIR", cfg.CacheDir)
	cfg.TempDir = getenv("AUDIO_TEMP_DIR", cfg.TempDir)

	cfg.CacheLimitBytes = r.int64("CACHE_LIMIT", cfg.CacheLimitBytes)
	cfg.PlaylistLimit = r.int("PLAYLIST_LIMIT", cfg.PlaylistLimit)
	cfg.RegisterCommandsOnBot = r.bool("REGISTER_COMMANDS_ON_BOT", cfg.RegisterCommandsOnBot)

	cfg.Audio.SampleRate = r.int("SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = r.int("CHANNELS", cfg.Audio.Channels)
	cfg.Audio.PrefetchCount = r.int("PREFETCH_COUNT", cfg.Audio.PrefetchCount)
	cfg.Audio.Normalization = strings.ToLower(getenv("NORMALIZATION", cfg.Audio.Normalization))
	cfg.Audio.NormalizationTarget = r.float("NORMALIZATION_TARGET", cfg.Audio.NormalizationTarget)
	cfg.Audio.OpusBitrate = r.int("OPUS_BITRATE", cfg.Audio.OpusBitrate)

	cfg.Process.MaxSubprocesses = r.int("MAX_SUBPROCESSES", cfg.Process.MaxSubprocesses)
	cfg.Process.Timeout = r.duration("SUBPROCESS_TIMEOUT", cfg.Process.Timeout)
	return errors.Join(r.errs...)
}

// rates the Opus encoder accepts
var opusSampleRates = []int{8000, 12000, 16000, 24000, 48000}

// Validate reports every invalid field at once.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.DiscordToken == "" {
		errs = append(errs, ErrConfig("DISCORD_TOKEN required"))
	}
	if !slices.Contains(opusSampleRates, cfg.Audio.SampleRate) {
		errs = append(errs, ErrConfig(fmt.Sprintf("SAMPLE_RATE must be one of 8000, 12000, 16000, 24000 or 48000, got %d", cfg.Audio.SampleRate)))
	}
	if cfg.CacheLimitBytes < 0 {
		errs = append(errs, ErrConfig("CACHE_LIMIT must not be negative"))
	}
	if cfg.Audio.OpusBitrate < 500 || cfg.Audio.OpusBitrate > 512000 {
		errs = append(errs, ErrConfig(fmt.Sprintf("OPUS_BITRATE must be in [500,512000], got %d", cfg.Audio.OpusBitrate)))
	}
	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 2 {
		errs = append(errs, ErrConfig(fmt.Sprintf("CHANNELS must be 1 or 2, got %d", cfg.Audio.Channels)))
	}
	if cfg.PlaylistLimit < 0 {
		errs = append(errs, ErrConfig("PLAYLIST_LIMIT must not be negative"))
	}
	if cfg.Audio.PrefetchCount < 0 {
		errs = append(errs, ErrConfig("PREFETCH_COUNT must not be negative"))
	}
	if _, err := mixer.ParsePolicy(cfg.Audio.Normalization); err != nil {
		errs = append(errs, ErrConfig(fmt.Sprintf("NORMALIZATION must be none, peak or three-sigma, got %q", cfg.Audio.Normalization)))
	}
	if t := cfg.Audio.NormalizationTarget; t <= 0 || t > 1 {
		errs = append(errs, ErrConfig(fmt.Sprintf("NORMALIZATION_TARGET must be in (0,1], got %v", t)))
	}
	if cfg.Process.MaxSubprocesses < 1 {
		errs = append(errs, ErrConfig("MAX_SUBPROCESSES must be at least 1"))
	}
	if cfg.Process.Timeout < 0 {
		errs = append(errs, ErrConfig("SUBPROCESS_TIMEOUT must not be negative"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
