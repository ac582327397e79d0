package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATA_DIR", dir)
	for _, k := range []string{"CONFIG_FILE", "SAMPLE_RATE", "CHANNELS", "PREFETCH_COUNT", "NORMALIZATION", "NORMALIZATION_TARGET", "AUDIO_CACHE_DIR", "AUDIO_TEMP_DIR", "MAX_SUBPROCESSES", "SUBPROCESS_TIMEOUT", "CACHE_LIMIT", "PLAYLIST_LIMIT", "OPUS_BITRATE", "REGISTER_COMMANDS_ON_BOT"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 2 {
		t.Errorf("Channels = %d, want 2", cfg.Audio.Channels)
	}
	if cfg.Audio.PrefetchCount != 3 {
		t.Errorf("PrefetchCount = %d, want 3", cfg.Audio.PrefetchCount)
	}
	if cfg.Audio.Normalization != "none" {
		t.Errorf("Normalization = %q, want none", cfg.Audio.Normalization)
	}
	if cfg.CacheLimitBytes != DefaultCacheLimitBytes {
		t.Errorf("CacheLimitBytes = %d, want %d", cfg.CacheLimitBytes, DefaultCacheLimitBytes)
	}
	if cfg.Audio.NormalizationTarget != 0.997 {
		t.Errorf("NormalizationTarget = %v, want 0.997", cfg.Audio.NormalizationTarget)
	}
	if cfg.Process.Timeout != 10*time.Minute {
		t.Errorf("Timeout = %v, want 10m", cfg.Process.Timeout)
	}

	wantCache := filepath.Join(dir, "audio_cache", "cached")
	if cfg.CacheDir != wantCache {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, wantCache)
	}
	for _, d := range []string{cfg.CacheDir, cfg.TempDir} {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("directory %s not created: %v", d, err)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SAMPLE_RATE", "24000")
	t.Setenv("CHANNELS", "1")
	t.Setenv("PREFETCH_COUNT", "5")
	t.Setenv("NORMALIZATION", "PEAK")
	t.Setenv("NORMALIZATION_TARGET", "0.5")
	t.Setenv("SUBPROCESS_TIMEOUT", "30s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.SampleRate != 24000 || cfg.Audio.Channels != 1 || cfg.Audio.PrefetchCount != 5 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.Normalization != "peak" {
		t.Errorf("Normalization = %q, want peak", cfg.Audio.Normalization)
	}
	if cfg.Audio.NormalizationTarget != 0.5 {
		t.Errorf("NormalizationTarget = %v, want 0.5", cfg.Audio.NormalizationTarget)
	}
	if cfg.Process.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Process.Timeout)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATA_DIR", t.TempDir())
	bad := map[string]string{
		"SAMPLE_RATE":        "48k",
		"CHANNELS":           "stereo",
		"PREFETCH_COUNT":     "three",
		"SUBPROCESS_TIMEOUT": "10",
		"CACHE_LIMIT":        "2GiB",
	}
	for k, v := range bad {
		t.Setenv(k, v)
	}

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error for malformed values")
	}
	for k := range bad {
		if !strings.Contains(err.Error(), k) {
			t.Errorf("error %q does not name %s", err, k)
		}
	}
	var ce ErrConfig
	if !errors.As(err, &ce) {
		t.Errorf("error %v is not an ErrConfig", err)
	}
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "balaambot.yaml")
	body := `
discord_token: from-file
data_dir: ` + dir + `
audio:
  prefetch_count: 7
  normalization: none
process:
  timeout: 2m
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DATA_DIR", "")
	t.Setenv("NORMALIZATION", "")
	t.Setenv("SUBPROCESS_TIMEOUT", "")
	t.Setenv("PREFETCH_COUNT", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DiscordToken != "from-file" {
		t.Errorf("DiscordToken = %q, want from-file", cfg.DiscordToken)
	}
	if cfg.Audio.Normalization != "none" {
		t.Errorf("Normalization = %q, want none", cfg.Audio.Normalization)
	}
	if cfg.Audio.PrefetchCount != 1 {
		t.Errorf("PrefetchCount = %d, want env override 1", cfg.Audio.PrefetchCount)
	}
	if cfg.Process.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", cfg.Process.Timeout)
	}
}

func TestLoadYAMLUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("not_a_field: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DISCORD_TOKEN", "token")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.DiscordToken = "" }, "DISCORD_TOKEN required"},
		{"bad channels", func(c *Config) { c.Audio.Channels = 3 }, "CHANNELS"},
		{"rate opus cannot encode", func(c *Config) { c.Audio.SampleRate = 44100 }, "SAMPLE_RATE"},
		{"negative cache limit", func(c *Config) { c.CacheLimitBytes = -1 }, "CACHE_LIMIT"},
		{"bitrate out of range", func(c *Config) { c.Audio.OpusBitrate = 10 }, "OPUS_BITRATE"},
		{"bad policy", func(c *Config) { c.Audio.Normalization = "rms" }, "NORMALIZATION must be"},
		{"target above one", func(c *Config) { c.Audio.NormalizationTarget = 1.5 }, "NORMALIZATION_TARGET"},
		{"zero pool", func(c *Config) { c.Process.MaxSubprocesses = 0 }, "MAX_SUBPROCESSES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			cfg.DiscordToken = "token"
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
			var ce ErrConfig
			if !errors.As(err, &ce) {
				t.Errorf("error %v is not an ErrConfig", err)
			}
		})
	}
}
