// Package cache resolves remote audio sources to raw PCM files on disk,
// downloading and transcoding each (source, rate, channels) at most once.
//
// Existence of the final file is the only cache-hit signal. Files are
// written in the scratch directory and renamed into place when complete, so
// readers never see a partial file.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sonroyaalmerol/balaambot/internal/config"
	"github.com/sonroyaalmerol/balaambot/internal/observe"
	"github.com/sonroyaalmerol/balaambot/internal/repository"
	"github.com/sonroyaalmerol/balaambot/internal/stream"
	"github.com/sonroyaalmerol/balaambot/internal/utils"
)

// ErrNotImplemented is returned when credentials are supplied to Fetch.
var ErrNotImplemented = errors.New("authenticated fetch is not implemented")

// Auth carries credentials for sources behind a login.
type Auth struct {
	Username string
	Password string
}

// Bookkeeper records cache sizes and access times for LRU eviction.
type Bookkeeper interface {
	CacheTouch(ctx context.Context, name, sourceURL string, size int64, created bool) error
	CacheRemove(ctx context.Context, name string) error
	CacheTotalBytes(ctx context.Context) (int64, error)
	CacheLRU(ctx context.Context, limit int) ([]repository.CacheFile, error)
}

type FileCache struct {
	dir     string
	tmpDir  string
	limit   int64
	dl      stream.Downloader
	tc      stream.Transcoder
	repo    Bookkeeper
	metrics *observe.Metrics

	// SourceID -> *sync.Mutex, never pruned. Held while a source's files
	// are written, read or evicted.
	locks sync.Map
	meta  singleflight.Group
	mu    sync.Mutex
}

// NewFileCache builds a cache in cfg.CacheDir. repo may be nil, which
// disables size bookkeeping and eviction.
func NewFileCache(cfg *config.Config, repo Bookkeeper, dl stream.Downloader, tc stream.Transcoder, metrics *observe.Metrics) *FileCache {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &FileCache{
		dir:     cfg.CacheDir,
		tmpDir:  cfg.TempDir,
		limit:   cfg.CacheLimitBytes,
		dl:      dl,
		tc:      tc,
		repo:    repo,
		metrics: metrics,
	}
}

func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SourceID is the YouTube video id when the URL carries one, otherwise a
// hash of the URL.
func SourceID(url string) string {
	if id := utils.VideoID(url); id != "" {
		return id
	}
	return HashKey(url)[:24]
}

func pcmName(url string, rate, channels int) string {
	return fmt.Sprintf("%s_%dHz_%dch.pcm", SourceID(url), rate, channels)
}

func (c *FileCache) PathFor(url string, rate, channels int) string {
	return filepath.Join(c.dir, pcmName(url, rate, channels))
}

func (c *FileCache) MetadataPath(url string) string {
	return filepath.Join(c.dir, SourceID(url)+"_metadata.json")
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (c *FileCache) IsCached(url string, rate, channels int) bool {
	return exists(c.PathFor(url, rate, channels))
}

func (c *FileCache) lockFor(url string) *sync.Mutex {
	return c.lockForID(SourceID(url))
}

func (c *FileCache) lockForID(id string) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (c *FileCache) lookup(ctx context.Context, result string) {
	c.metrics.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (c *FileCache) touch(ctx context.Context, final string) {
	if c.repo == nil {
		return
	}
	if err := c.repo.CacheTouch(ctx, filepath.Base(final), "", 0, false); err != nil {
		slog.Debug("cache touch failed", "file", final, "err", err)
	}
}

// Fetch returns the path of the cached PCM for url, downloading and
// transcoding it first when needed. Concurrent calls for urls naming the
// same source share one download.
func (c *FileCache) Fetch(ctx context.Context, url string, rate, channels int, auth *Auth) (string, error) {
	if auth != nil {
		return "", ErrNotImplemented
	}
	final := c.PathFor(url, rate, channels)
	if exists(final) {
		c.lookup(ctx, "hit")
		c.touch(ctx, final)
		return final, nil
	}

	mu := c.lockFor(url)
	mu.Lock()
	defer mu.Unlock()

	if exists(final) {
		c.lookup(ctx, "hit")
		c.touch(ctx, final)
		return final, nil
	}
	c.lookup(ctx, "miss")

	if err := c.acquire(ctx, url, rate, channels, final); err != nil {
		c.metrics.Downloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		return "", err
	}
	c.metrics.Downloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	return final, nil
}

// acquire runs download, metadata, transcode and commit inside a scratch
// directory of its own. Caller holds the source lock.
func (c *FileCache) acquire(ctx context.Context, url string, rate, channels int, final string) error {
	id := SourceID(url)
	if err := os.MkdirAll(c.tmpDir, 0o755); err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	scratch, err := os.MkdirTemp(c.tmpDir, id+"-*")
	if err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			slog.Warn("remove temp dir", "dir", scratch, "err", err)
		}
	}()
	tmpBase := filepath.Join(scratch, fmt.Sprintf("%s_%dHz_%dch", id, rate, channels))

	slog.Info("downloading audio", "url", url, "rate", rate, "channels", channels)

	var opusPath string
	var g errgroup.Group
	g.Go(func() error {
		p, err := c.dl.Download(ctx, url, tmpBase)
		if err != nil {
			return err
		}
		opusPath = p
		return nil
	})
	g.Go(func() error {
		if _, err := c.FetchMetadata(ctx, url); err != nil {
			slog.Warn("metadata fetch failed", "url", url, "err", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}

	pcmTmp := tmpBase + ".pcm.part"
	if err := c.tc.Transcode(ctx, stream.TranscodeOptions{
		Input:      opusPath,
		Output:     pcmTmp,
		SampleRate: rate,
		Channels:   channels,
		Quiet:      true,
	}); err != nil {
		return fmt.Errorf("transcode %s: %w", url, err)
	}

	return c.commit(ctx, url, pcmTmp, final)
}

func (c *FileCache) commit(ctx context.Context, url, tmp, final string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return fmt.Errorf("transcoder output: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("commit %s: %w", final, err)
	}
	slog.Info("cached audio", "url", url, "file", final, "bytes", info.Size())

	if c.repo == nil {
		return nil
	}
	if err := c.repo.CacheTouch(ctx, filepath.Base(final), url, info.Size(), true); err != nil {
		slog.Warn("cache bookkeeping failed", "file", final, "err", err)
		return nil
	}
	if err := c.evictIfNeeded(ctx, filepath.Base(final), SourceID(url)); err != nil {
		slog.Warn("cache eviction failed", "err", err)
	}
	return nil
}

// evictIfNeeded drops least recently used files until the cache fits the
// limit. keep is never evicted. The caller holds heldID's lock; entries of
// any other source are only removed when their lock is free, so nothing is
// deleted under a reader or writer.
func (c *FileCache) evictIfNeeded(ctx context.Context, keep, heldID string) error {
	if c.limit <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	total, err := c.repo.CacheTotalBytes(ctx)
	if err != nil {
		return err
	}
	if total <= c.limit {
		return nil
	}
	candidates, err := c.repo.CacheLRU(ctx, evictBatch)
	if err != nil {
		return err
	}
	for _, cf := range candidates {
		if total <= c.limit {
			break
		}
		if cf.Name == keep {
			continue
		}
		removed, err := c.evictEntry(ctx, cf, heldID)
		if err != nil {
			return err
		}
		if removed {
			total -= cf.Bytes
		}
	}
	if total > c.limit {
		slog.Debug("cache still over limit", "bytes", total, "limit", c.limit)
	}
	return nil
}

const evictBatch = 64

func (c *FileCache) evictEntry(ctx context.Context, cf repository.CacheFile, heldID string) (bool, error) {
	if cf.SourceURL != "" {
		if id := SourceID(cf.SourceURL); id != heldID {
			mu := c.lockForID(id)
			if !mu.TryLock() {
				slog.Debug("skip eviction of busy entry", "file", cf.Name)
				return false, nil
			}
			defer mu.Unlock()
		}
	}
	p := filepath.Join(c.dir, cf.Name)
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := c.repo.CacheRemove(ctx, cf.Name); err != nil {
		return false, err
	}
	slog.Info("evicted cached audio", "file", cf.Name, "bytes", cf.Bytes)
	return true, nil
}

// ReadPCM returns the cached PCM bytes, or ok=false when not cached.
// Eviction waits for the read to finish.
func (c *FileCache) ReadPCM(url string, rate, channels int) (data []byte, ok bool, err error) {
	mu := c.lockFor(url)
	mu.Lock()
	defer mu.Unlock()
	data, err = os.ReadFile(c.PathFor(url, rate, channels))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Evict removes the cached PCM for url and reports whether a file existed.
func (c *FileCache) Evict(ctx context.Context, url string, rate, channels int) (bool, error) {
	mu := c.lockFor(url)
	mu.Lock()
	defer mu.Unlock()
	p := c.PathFor(url, rate, channels)
	err := os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.repo != nil {
		if err := c.repo.CacheRemove(ctx, filepath.Base(p)); err != nil {
			slog.Warn("cache bookkeeping failed", "file", p, "err", err)
		}
	}
	return true, nil
}

// CleanupTemp empties the scratch directory.
func (c *FileCache) CleanupTemp() error {
	entries, err := os.ReadDir(c.tmpDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, e := range entries {
		errs = append(errs, os.RemoveAll(filepath.Join(c.tmpDir, e.Name())))
	}
	return errors.Join(errs...)
}
