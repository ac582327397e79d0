package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

// Info is the subset of yt-dlp's extracted info the bot uses.
type Info struct {
	ID         string
	Title      string
	Uploader   string
	Duration   float64
	IsLive     bool
	WebpageURL string
	URL        string
}

// Downloader fetches remote audio and metadata.
type Downloader interface {
	// Download saves the best audio stream as outBase+".opus" and returns
	// that path.
	Download(ctx context.Context, url, outBase string) (string, error)
	Metadata(ctx context.Context, url string) (Info, error)
	Playlist(ctx context.Context, url string) ([]Info, error)
	Search(ctx context.Context, query string, n int) ([]Info, error)
}

type YTDLP struct {
	CookiesPath string
	pool        *Pool
}

func NewYTDLP(pool *Pool, cookiesPath string) *YTDLP {
	return &YTDLP{CookiesPath: cookiesPath, pool: pool}
}

var installOnce sync.Once

func ensureInstalled(ctx context.Context) {
	installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			// a yt-dlp on PATH still works; Run surfaces the real failure
			slog.Warn("yt-dlp install check failed", "err", err)
		}
	})
}

// helpers to safely read pointer fields with defaults
func s(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func f(ptr *float64) float64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func b(ptr *bool) bool {
	if ptr == nil {
		return false
	}
	return *ptr
}

func toInfo(e *ytdlp.ExtractedInfo) Info {
	return Info{
		ID:         e.ID,
		Title:      s(e.Title),
		Uploader:   s(e.Uploader),
		Duration:   f(e.Duration),
		IsLive:     b(e.IsLive),
		WebpageURL: s(e.WebpageURL),
		URL:        s(e.URL),
	}
}

func (y *YTDLP) base() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		NoCheckCertificates()
	if y.CookiesPath != "" {
		cmd = cmd.Cookies(y.CookiesPath)
	}
	return cmd
}

func (y *YTDLP) run(ctx context.Context, cmd *ytdlp.Command, args ...string) (*ytdlp.Result, error) {
	ensureInstalled(ctx)
	var res *ytdlp.Result
	err := y.pool.Do(ctx, "yt-dlp", func(ctx context.Context) error {
		var err error
		res, err = cmd.Run(ctx, args...)
		if err != nil {
			se := &SubprocessError{Name: "yt-dlp", Args: args, ExitCode: -1, Err: err}
			if res != nil {
				se.ExitCode = res.ExitCode
				se.Stderr = res.Stderr
			}
			return se
		}
		return nil
	})
	return res, err
}

func (y *YTDLP) Download(ctx context.Context, url, outBase string) (string, error) {
	cmd := y.base().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("opus").
		NoPlaylist().
		Quiet().
		Output(outBase + ".%(ext)s")

	if _, err := y.run(ctx, cmd, url); err != nil {
		return "", err
	}
	out := outBase + ".opus"
	if _, err := os.Stat(out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNoOutput, out)
		}
		return "", err
	}
	return out, nil
}

// Metadata runs a flat, download-free extraction.
func (y *YTDLP) Metadata(ctx context.Context, url string) (Info, error) {
	infos, err := y.extract(ctx, y.base().FlatPlaylist().NoPlaylist().SkipDownload().DumpSingleJSON(), url)
	if err != nil {
		return Info{}, err
	}
	if len(infos) == 0 {
		return Info{}, fmt.Errorf("yt-dlp returned no metadata for %s", url)
	}
	return infos[0], nil
}

func (y *YTDLP) Playlist(ctx context.Context, url string) ([]Info, error) {
	return y.extract(ctx, y.base().FlatPlaylist().DumpSingleJSON(), url)
}

// Search asks for n results; callers filter and truncate.
func (y *YTDLP) Search(ctx context.Context, query string, n int) ([]Info, error) {
	if n < 1 {
		n = 1
	}
	target := fmt.Sprintf("ytsearch%d:%s", n, strings.TrimSpace(query))
	return y.extract(ctx, y.base().FlatPlaylist().DumpSingleJSON(), target)
}

// extract runs cmd and flattens a playlist container into its entries.
func (y *YTDLP) extract(ctx context.Context, cmd *ytdlp.Command, target string) ([]Info, error) {
	res, err := y.run(ctx, cmd, target)
	if err != nil {
		return nil, err
	}
	parsed, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json for %s: %w", target, err)
	}

	var out []Info
	for _, info := range parsed {
		if info == nil {
			continue
		}
		if len(info.Entries) == 0 {
			out = append(out, toInfo(info))
			continue
		}
		for _, e := range info.Entries {
			if e == nil {
				continue
			}
			out = append(out, toInfo(e))
		}
	}
	slog.Debug("yt-dlp extracted", "target", target, "entries", len(out))
	return out, nil
}
