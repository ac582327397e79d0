package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/balaambot/internal/spotify"
)

// discord rejects choice names longer than this
const maxChoiceName = 100

var (
	suggestURL = "https://suggestqueries.google.com/complete/search"
	httpClient = &http.Client{Timeout: 2 * time.Second}
)

func GetYouTubeSuggestions(ctx context.Context, query string) ([]string, error) {
	u, _ := url.Parse(suggestURL)
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggestions: status %s", resp.Status)
	}
	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	if r := []rune(name); len(r) > maxChoiceName {
		name = string(r[:maxChoiceName-1]) + "…"
	}
	return &discordgo.ApplicationCommandOptionChoice{Name: name, Value: value}
}

// GetYouTubeAndSpotifySuggestions mixes YouTube search suggestions with
// Spotify albums and tracks when sp is set. Spotify takes at most half of
// the limit.
func GetYouTubeAndSpotifySuggestions(ctx context.Context, query string, sp *spotify.Client, limit int) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	if limit <= 0 {
		limit = 10
	}
	yt, ytErr := GetYouTubeSuggestions(ctx, query)

	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)
	for _, s := range yt[:min(len(yt), limit)] {
		if len(s) > maxChoiceName {
			continue
		}
		out = append(out, choice("YouTube: "+s, s))
	}

	if sp != nil {
		albums, tracks, err := sp.SearchAlbumsAndTracks(ctx, query, limit/4)
		if err == nil {
			// make room
			if keep := limit - len(albums) - len(tracks); len(out) > keep {
				out = out[:max(0, keep)]
			}
			for _, a := range albums {
				name := "Spotify: 💿 " + a.Name
				if len(a.Artists) > 0 {
					name += " - " + a.Artists[0].Name
				}
				out = append(out, choice(name, "spotify:album:"+a.ID.String()))
			}
			for _, t := range tracks {
				name := "Spotify: 🎵 " + t.Name
				if len(t.Artists) > 0 {
					name += " - " + t.Artists[0].Name
				}
				out = append(out, choice(name, "spotify:track:"+t.ID.String()))
			}
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, ytErr
}
