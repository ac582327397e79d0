package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sonroyaalmerol/balaambot/internal/cache"
	"github.com/sonroyaalmerol/balaambot/internal/spotify"
	"github.com/sonroyaalmerol/balaambot/internal/utils"
)

var ErrNoResults = errors.New("no results found")

// SpotifyResolver expands Spotify links into tracks.
type SpotifyResolver interface {
	Resolve(ctx context.Context, raw string, limit int) (spotify.Collection, error)
}

// Resolved is what a play query expanded to.
type Resolved struct {
	URLs []string
	// Title names the playlist, album or single match when known.
	Title string
	// Notice is extra information for the requester.
	Notice string
}

// Resolve turns a play query (video url, playlist url, Spotify link or free
// text) into queueable urls.
func (pm *PlayerManager) Resolve(ctx context.Context, query string) (Resolved, error) {
	q := strings.TrimSpace(query)
	limit := pm.cfg.PlaylistLimit

	switch {
	case q == "":
		return Resolved{}, ErrNoResults

	case spotify.IsSpotify(q):
		return pm.resolveSpotify(ctx, q, limit)

	case utils.IsPlaylistURL(q):
		urls, err := pm.deps.Source.ResolvePlaylist(ctx, q)
		if err != nil {
			return Resolved{}, err
		}
		res := Resolved{URLs: urls}
		if limit > 0 && len(urls) > limit {
			utils.ShuffleSlice(res.URLs)
			res.URLs = res.URLs[:limit]
			res.Notice = fmt.Sprintf("a random sample of %d songs was taken", limit)
		}
		return res, nil

	case utils.IsURL(q):
		return Resolved{URLs: []string{q}}, nil
	}

	hits, err := pm.deps.Source.Search(ctx, q, 1)
	if err != nil {
		return Resolved{}, err
	}
	if len(hits) == 0 {
		return Resolved{}, fmt.Errorf("%w: %s", ErrNoResults, q)
	}
	return Resolved{URLs: []string{hits[0].URL}, Title: hits[0].Title}, nil
}

func (pm *PlayerManager) resolveSpotify(ctx context.Context, q string, limit int) (Resolved, error) {
	if pm.deps.Spotify == nil {
		return Resolved{}, errors.New("spotify is not enabled")
	}
	col, err := pm.deps.Spotify.Resolve(ctx, q, 0)
	if err != nil {
		return Resolved{}, fmt.Errorf("spotify: %w", err)
	}
	tracks := col.Tracks
	res := Resolved{Title: col.Meta.Title}
	if limit > 0 && len(tracks) > limit {
		utils.ShuffleSlice(tracks)
		tracks = tracks[:limit]
		res.Notice = fmt.Sprintf("a random sample of %d songs was taken", limit)
	}

	found := make([]string, len(tracks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, pm.cfg.Process.MaxSubprocesses))
	for i, t := range tracks {
		g.Go(func() error {
			hits, err := pm.deps.Source.Search(gctx, t.Query(), 1)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Debug("spotify track not found", "query", t.Query(), "err", err)
				return nil
			}
			if len(hits) > 0 {
				found[i] = hits[0].URL
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Resolved{}, err
	}

	notFound := 0
	for _, u := range found {
		if u == "" {
			notFound++
			continue
		}
		res.URLs = append(res.URLs, u)
	}
	if len(res.URLs) == 0 {
		return Resolved{}, ErrNoResults
	}
	switch {
	case notFound == 1:
		res.Notice = joinNotice(res.Notice, "1 song was not found")
	case notFound > 1:
		res.Notice = joinNotice(res.Notice, fmt.Sprintf("%d songs were not found", notFound))
	}
	return res, nil
}

func joinNotice(a, b string) string {
	if a == "" {
		return b
	}
	return a + ", " + b
}

// Search lists up to n matches for query without queueing anything.
func (pm *PlayerManager) Search(ctx context.Context, query string, n int) ([]cache.SearchResult, error) {
	return pm.deps.Source.Search(ctx, strings.TrimSpace(query), n)
}
