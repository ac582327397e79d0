package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/balaambot/internal/cache"
	"github.com/sonroyaalmerol/balaambot/internal/mixer"
	"github.com/sonroyaalmerol/balaambot/internal/player"
	"github.com/sonroyaalmerol/balaambot/internal/utils"
)

const maxDesc = 4096

func itemLink(it player.QueueItem) string {
	title := utils.EscapeMd(it.Title)
	if title == "" || it.Title == it.URL {
		return "<" + it.URL + ">"
	}
	return fmt.Sprintf("[%s](%s)", title, it.URL)
}

func runtimeStr(it player.QueueItem) string {
	if it.Runtime <= 0 {
		return "?"
	}
	return utils.PrettyTime(it.Runtime)
}

func BuildPlayingEmbed(np player.NowPlaying, ok bool) *discordgo.MessageEmbed {
	if !ok {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "No playing song found",
			Color:       0x992222,
		}
	}
	cur := np.Item
	button := "▶️"
	if np.State == mixer.StatePlaying {
		button = "⏹️"
	}
	progress := 0.0
	if cur.Runtime > 0 {
		progress = float64(np.Position) / float64(cur.Runtime)
	}
	elapsed := fmt.Sprintf("%s/%s", utils.PrettyTime(np.Position), runtimeStr(cur))

	color := 0x006400
	title := "Now Playing"
	if np.State != mixer.StatePlaying {
		color = 0x8B0000
		title = "Paused"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("**%s**\n\n%s %s `[ %s ]`", itemLink(cur), button, ProgressBar(10, progress), elapsed),
		Color:       color,
	}
}

// BuildQueueEmbed renders one page of the queue. items[0] is the head.
func BuildQueueEmbed(items []player.QueueItem, np player.NowPlaying, playing bool, page, pageSize int) (*discordgo.MessageEmbed, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("queue is empty")
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	upNext := items[1:]
	maxPage := max(1, (len(upNext)+pageSize-1)/pageSize)
	if page < 1 || page > maxPage {
		return nil, fmt.Errorf("the queue isn't that big")
	}

	cur := items[0]
	desc := fmt.Sprintf("**%s**\n", itemLink(cur))
	if playing {
		progress := 0.0
		if cur.Runtime > 0 {
			progress = float64(np.Position) / float64(cur.Runtime)
		}
		desc += fmt.Sprintf("%s `[ %s/%s ]`\n\n", ProgressBar(10, progress), utils.PrettyTime(np.Position), runtimeStr(cur))
	} else {
		desc += "Loading…\n\n"
	}

	begin := (page - 1) * pageSize
	end := min(len(upNext), begin+pageSize)
	if begin < end {
		desc += "**Up next:**\n"
		var lines strings.Builder
		shown := 0
		for idx, it := range upNext[begin:end] {
			cached := ""
			if it.Cached {
				cached = " 💾"
			}
			line := fmt.Sprintf("`%d.` %s `[ %s ]`%s\n", begin+idx+1, itemLink(it), runtimeStr(it), cached)
			if len(desc)+lines.Len()+len(line) > maxDesc-32 {
				break
			}
			lines.WriteString(line)
			shown++
		}
		desc += lines.String()
		if rest := end - begin - shown; rest > 0 {
			desc += fmt.Sprintf("…and %d more", rest)
		}
	}

	total := 0
	for _, it := range items {
		total += it.Runtime
	}

	return &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: desc,
		Color:       0x006400,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: queueInfo(len(upNext)), Inline: true},
			{Name: "Total length", Value: totalLenStr(total), Inline: true},
			{Name: "Page", Value: fmt.Sprintf("%d out of %d", page, maxPage), Inline: true},
		},
	}, nil
}

func BuildSearchEmbed(query string, results []cache.SearchResult) *discordgo.MessageEmbed {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "`%d.` [%s](%s) `[ %s ]`\n", i+1, utils.EscapeMd(r.Title), r.URL, utils.PrettyTime(r.Duration))
	}
	if b.Len() == 0 {
		b.WriteString("No results.")
	}
	return &discordgo.MessageEmbed{
		Title:       "Results for " + utils.EscapeMd(query),
		Description: b.String(),
		Color:       0x1E90FF,
	}
}

func BuildJobsEmbed(jobs []player.JobInfo) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&b, "`%s` **%s** every %s to %s\n", j.ID, utils.EscapeMd(j.Sound), shortDur(j.Min), shortDur(j.Max))
	}
	if b.Len() == 0 {
		b.WriteString("No sound effect jobs are running.")
	}
	return &discordgo.MessageEmbed{
		Title:       "Sound effect jobs",
		Description: b.String(),
		Color:       0x8A2BE2,
	}
}

func shortDur(d time.Duration) string {
	return utils.PrettyTime(int(d.Round(time.Second) / time.Second))
}

func queueInfo(n int) string {
	switch n {
	case 0:
		return "-"
	case 1:
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}

func totalLenStr(sec int) string {
	if sec <= 0 {
		return "-"
	}
	return utils.PrettyTime(sec)
}
