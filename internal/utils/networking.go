package utils

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	reVideoID = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|shorts/|live/)|youtu\.be/)([A-Za-z0-9_-]{11})`)
	reListID  = regexp.MustCompile(`[?&]list=([A-Za-z0-9_-]+)`)
)

// VideoID extracts the 11 character YouTube id from a watch, embed, shorts
// or youtu.be URL. It returns "" for anything else.
func VideoID(raw string) string {
	m := reVideoID.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsPlaylistURL reports whether raw names a YouTube playlist.
func IsPlaylistURL(raw string) bool {
	if !strings.Contains(raw, "youtube.com") && !strings.Contains(raw, "youtu.be") {
		return false
	}
	return reListID.MatchString(raw)
}

func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// IsURL reports whether s is an absolute http(s) URL.
func IsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
