package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/sonroyaalmerol/balaambot/internal/cache"
	"github.com/sonroyaalmerol/balaambot/internal/config"
	"github.com/sonroyaalmerol/balaambot/internal/handlers"
	"github.com/sonroyaalmerol/balaambot/internal/observe"
	"github.com/sonroyaalmerol/balaambot/internal/player"
	"github.com/sonroyaalmerol/balaambot/internal/repository"
	"github.com/sonroyaalmerol/balaambot/internal/spotify"
	"github.com/sonroyaalmerol/balaambot/internal/stream"
)

func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("load .env: %v", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("stat .env: %v", err)
	}
}

func main() {
	loadDotEnv()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownMetrics, err := observe.InitProvider(ctx, cfg.MetricsAddr)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			slog.Warn("metrics shutdown", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	db, err := repository.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := repository.NewRepo(db)

	pool := stream.NewPool(cfg.Process.MaxSubprocesses, cfg.Process.Timeout, metrics)
	ffmpeg := stream.NewFFmpeg(pool)
	fc := cache.NewFileCache(cfg, repo, stream.NewYTDLP(pool, cfg.YouTubeCookiesPath), ffmpeg, metrics)
	if err := fc.CleanupTemp(); err != nil {
		slog.Warn("clean temp dir", "err", err)
	}
	defer func() {
		if err := fc.CleanupTemp(); err != nil {
			slog.Warn("clean temp dir", "err", err)
		}
	}()

	var sp *spotify.Client
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		if sp, err = spotify.NewClientCredentials(cfg.SpotifyClientID, cfg.SpotifyClientSecret); err != nil {
			slog.Warn("spotify disabled", "err", err)
			sp = nil
		}
	}

	bot, err := handlers.NewBot(cfg, repo, player.Deps{
		Source:  fc,
		Decoder: ffmpeg,
		Metrics: metrics,
	}, sp)
	if err != nil {
		return err
	}
	slog.Info("starting", "cacheDir", cfg.CacheDir, "soundsDir", cfg.SoundsDir, "spotify", sp != nil)
	return bot.Run(ctx)
}
