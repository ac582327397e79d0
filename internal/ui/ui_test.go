package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/sonroyaalmerol/balaambot/internal/cache"
	"github.com/sonroyaalmerol/balaambot/internal/mixer"
	"github.com/sonroyaalmerol/balaambot/internal/player"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		progress float64
		knob     int
	}{
		{-1, 0},
		{0, 0},
		{0.55, 5},
		{1, 9},
		{3, 9},
	}
	for _, tt := range tests {
		bar := []rune(ProgressBar(10, tt.progress))
		if len(bar) != 10 {
			t.Fatalf("progress %v: %d cells", tt.progress, len(bar))
		}
		if bar[tt.knob] != '🔘' {
			t.Errorf("progress %v: knob not at %d in %q", tt.progress, tt.knob, string(bar))
		}
	}
	if ProgressBar(0, 0.5) != "" {
		t.Error("zero width should be empty")
	}
}

func items(n int) []player.QueueItem {
	out := make([]player.QueueItem, n)
	for i := range out {
		out[i] = player.QueueItem{URL: "https://youtu.be/" + string(rune('a'+i)), Title: "Song " + string(rune('A'+i)), Runtime: 60}
	}
	return out
}

func TestBuildQueueEmbedPaging(t *testing.T) {
	q := items(6) // head plus five up next
	np := player.NowPlaying{Item: q[0], Position: 30, State: mixer.StatePlaying}

	e, err := BuildQueueEmbed(q, np, true, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(e.Description, "`3.` [Song D]") || !strings.Contains(e.Description, "`4.` [Song E]") {
		t.Errorf("page 2 description:\n%s", e.Description)
	}
	if strings.Contains(e.Description, "Song B]") {
		t.Error("page 2 shows an item from page 1")
	}
	if e.Fields[0].Value != "5 songs" || e.Fields[1].Value != "6:00" || e.Fields[2].Value != "2 out of 3" {
		t.Errorf("fields = %q %q %q", e.Fields[0].Value, e.Fields[1].Value, e.Fields[2].Value)
	}

	if _, err := BuildQueueEmbed(q, np, true, 4, 2); err == nil {
		t.Error("page past the end should fail")
	}
	if _, err := BuildQueueEmbed(nil, np, false, 1, 10); err == nil {
		t.Error("empty queue should fail")
	}
}

func TestBuildQueueEmbedLoadingHead(t *testing.T) {
	e, err := BuildQueueEmbed(items(1), player.NowPlaying{}, false, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(e.Description, "Loading") {
		t.Errorf("description = %q", e.Description)
	}
	if e.Fields[0].Value != "-" {
		t.Errorf("in queue = %q", e.Fields[0].Value)
	}
}

func TestBuildPlayingEmbed(t *testing.T) {
	if e := BuildPlayingEmbed(player.NowPlaying{}, false); e.Title != "Nothing Playing" {
		t.Errorf("title = %q", e.Title)
	}
	np := player.NowPlaying{Item: player.QueueItem{URL: "u", Title: "T", Runtime: 100}, Position: 50, State: mixer.StatePaused}
	e := BuildPlayingEmbed(np, true)
	if e.Title != "Paused" || !strings.Contains(e.Description, "0:50/1:40") {
		t.Errorf("embed = %q %q", e.Title, e.Description)
	}
}

func TestBuildSearchAndJobsEmbeds(t *testing.T) {
	e := BuildSearchEmbed("q", []cache.SearchResult{{URL: "u1", Title: "One", Duration: 61}})
	if !strings.Contains(e.Description, "`1.` [One](u1) `[ 1:01 ]`") {
		t.Errorf("search = %q", e.Description)
	}
	if e := BuildSearchEmbed("q", nil); e.Description != "No results." {
		t.Errorf("empty search = %q", e.Description)
	}

	j := BuildJobsEmbed([]player.JobInfo{{ID: "id1", Sound: "horn.ogg", Min: 30 * time.Second, Max: 2 * time.Minute}})
	if !strings.Contains(j.Description, "every 0:30 to 2:00") {
		t.Errorf("jobs = %q", j.Description)
	}
}
