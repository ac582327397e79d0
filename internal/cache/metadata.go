package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sonroyaalmerol/balaambot/internal/stream"
	"github.com/sonroyaalmerol/balaambot/internal/utils"
)

// Metadata is the per-source sidecar stored next to the PCM files.
type Metadata struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Runtime    int    `json:"runtime"`
	RuntimeStr string `json:"runtime_str"`
}

// SearchResult is one playable hit from Search.
type SearchResult struct {
	URL      string
	Title    string
	Duration int
}

func newMetadata(url, title string, duration float64) Metadata {
	if title == "" {
		title = url
	}
	sec := int(duration)
	if sec < 0 {
		sec = 0
	}
	return Metadata{URL: url, Title: title, Runtime: sec, RuntimeStr: utils.ClockTime(sec)}
}

// CachedMetadata reads the sidecar without touching the network.
func (c *FileCache) CachedMetadata(url string) (Metadata, bool) {
	raw, err := os.ReadFile(c.MetadataPath(url))
	if err != nil {
		return Metadata{}, false
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		slog.Warn("corrupt metadata sidecar", "url", url, "err", err)
		return Metadata{}, false
	}
	return md, true
}

// FetchMetadata returns cached metadata or extracts it with the downloader
// and stores it. Concurrent calls for one url share a single extraction.
func (c *FileCache) FetchMetadata(ctx context.Context, url string) (Metadata, error) {
	if md, ok := c.CachedMetadata(url); ok {
		return md, nil
	}
	v, err, _ := c.meta.Do(url, func() (any, error) {
		if md, ok := c.CachedMetadata(url); ok {
			return md, nil
		}
		info, err := c.dl.Metadata(ctx, url)
		if err != nil {
			return Metadata{}, fmt.Errorf("metadata %s: %w", url, err)
		}
		md := newMetadata(url, info.Title, info.Duration)
		c.storeMetadata(md)
		return md, nil
	})
	if err != nil {
		return Metadata{}, err
	}
	return v.(Metadata), nil
}

func (c *FileCache) storeMetadata(md Metadata) {
	if err := c.writeMetadata(md); err != nil {
		slog.Warn("write metadata sidecar", "url", md.URL, "err", err)
	}
}

func (c *FileCache) writeMetadata(md Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.tmpDir, SourceID(md.URL)+"_metadata-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.MetadataPath(md.URL))
}

// ResolvePlaylist expands a playlist url into watch urls, seeding metadata
// from the flat entries so later lookups stay local.
func (c *FileCache) ResolvePlaylist(ctx context.Context, url string) ([]string, error) {
	entries, err := c.dl.Playlist(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("resolve playlist %s: %w", url, err)
	}
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		u := utils.WatchURL(e.ID)
		urls = append(urls, u)
		c.seedMetadata(u, e)
	}
	if len(urls) == 0 {
		return nil, errors.New("playlist has no playable entries")
	}
	return urls, nil
}

// Search returns up to n results for query. Two extra results are
// requested so entries without id, title or duration can be dropped.
func (c *FileCache) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	if n <= 0 {
		return nil, nil
	}
	entries, err := c.dl.Search(ctx, query, n+2)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	out := make([]SearchResult, 0, n)
	for _, e := range entries {
		if e.ID == "" || e.Title == "" || e.Duration <= 0 {
			continue
		}
		u := utils.WatchURL(e.ID)
		out = append(out, SearchResult{URL: u, Title: e.Title, Duration: int(e.Duration)})
		c.seedMetadata(u, e)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (c *FileCache) seedMetadata(url string, e stream.Info) {
	if e.Title == "" {
		return
	}
	if _, ok := c.CachedMetadata(url); ok {
		return
	}
	c.storeMetadata(newMetadata(url, e.Title, e.Duration))
}
