package utils

import (
	"slices"
	"testing"
)

func TestPrettyAndClockTime(t *testing.T) {
	tests := []struct {
		sec           int
		pretty, clock string
	}{
		{0, "0:00", "00:00:00"},
		{61, "1:01", "00:01:01"},
		{3725, "1:02:05", "01:02:05"},
	}
	for _, tt := range tests {
		if got := PrettyTime(tt.sec); got != tt.pretty {
			t.Errorf("PrettyTime(%d) = %q, want %q", tt.sec, got, tt.pretty)
		}
		if got := ClockTime(tt.sec); got != tt.clock {
			t.Errorf("ClockTime(%d) = %q, want %q", tt.sec, got, tt.clock)
		}
	}
	if got := ClockTime(-4); got != "00:00:00" {
		t.Errorf("ClockTime(-4) = %q", got)
	}
}

func TestParseDurationString(t *testing.T) {
	tests := map[string]int{
		"45":      45,
		"1m30s":   90,
		"2h":      7200,
		"1H2M3S":  3723,
		"garbage": 0,
	}
	for in, want := range tests {
		if got := ParseDurationString(in); got != want {
			t.Errorf("ParseDurationString(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestVideoIDAndPlaylist(t *testing.T) {
	tests := []struct {
		url      string
		id       string
		playlist bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ?t=10", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/shorts/abcdefghijk", "abcdefghijk", false},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/playlist?list=PL123", "", true},
		{"https://example.com/watch?v=dQw4w9WgXcQ&list=PL1", "", false},
	}
	for _, tt := range tests {
		if got := VideoID(tt.url); got != tt.id {
			t.Errorf("VideoID(%q) = %q, want %q", tt.url, got, tt.id)
		}
		if got := IsPlaylistURL(tt.url); got != tt.playlist {
			t.Errorf("IsPlaylistURL(%q) = %v", tt.url, got)
		}
	}
	if !IsURL("https://a.b/c") || IsURL("lofi beats") || IsURL("ftp://x") {
		t.Error("IsURL misclassified")
	}
}

func TestEscapeMdAndShuffle(t *testing.T) {
	if got := EscapeMd("a*b_c`d~"); got != `a\*b\_c\`+"`"+`d\~` {
		t.Errorf("EscapeMd = %q", got)
	}

	a := []int{1, 2, 3, 4, 5, 6, 7, 8}
	ShuffleSlice(a)
	b := slices.Clone(a)
	slices.Sort(b)
	if !slices.Equal(b, []int{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("shuffle lost elements: %v", a)
	}
}
