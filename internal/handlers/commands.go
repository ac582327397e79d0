package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/balaambot/internal/autocomplete"
	"github.com/sonroyaalmerol/balaambot/internal/cache"
	plib "github.com/sonroyaalmerol/balaambot/internal/player"
	"github.com/sonroyaalmerol/balaambot/internal/repository"
	"github.com/sonroyaalmerol/balaambot/internal/spotify"
	"github.com/sonroyaalmerol/balaambot/internal/ui"
	"github.com/sonroyaalmerol/balaambot/internal/utils"
)

const maxChoices = 25

// SettingsRepo is the part of the repository the config command edits.
type SettingsRepo interface {
	UpsertSettings(ctx context.Context, guild string) (*repository.Settings, error)
	UpdateSettings(ctx context.Context, s *repository.Settings) error
}

type CommandHandler struct {
	repo SettingsRepo
	pm   *plib.PlayerManager
	sp   *spotify.Client
}

func NewCommandHandler(repo SettingsRepo, pm *plib.PlayerManager, sp *spotify.Client) *CommandHandler {
	return &CommandHandler{repo: repo, pm: pm, sp: sp}
}

func commands() []*discordgo.ApplicationCommand {
	str := discordgo.ApplicationCommandOptionString
	sub := discordgo.ApplicationCommandOptionSubCommand
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song (YouTube URL, playlist, Spotify link or search)",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "query or URL", Type: str, Required: true, Autocomplete: true},
			},
		},
		{
			Name:        "search",
			Description: "Search YouTube without queueing",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "search text", Type: str, Required: true},
				{Name: "count", Description: "results to show [default: 5, max: 10]", Type: discordgo.ApplicationCommandOptionInteger},
			},
		},
		{Name: "skip", Description: "skip the current song"},
		{Name: "clear", Description: "clear the queue except the current song"},
		{Name: "stop", Description: "stop playback and clear the queue"},
		{Name: "shuffle", Description: "shuffle the upcoming songs"},
		{Name: "pause", Description: "pause the current song"},
		{Name: "resume", Description: "resume playback"},
		{Name: "now-playing", Description: "show the current song"},
		{
			Name:        "queue",
			Description: "show the current queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "page", Description: "page of queue to show [default: 1]", Type: discordgo.ApplicationCommandOptionInteger},
				{Name: "page-size", Description: "how many items per page [default: 10, max: 30]", Type: discordgo.ApplicationCommandOptionInteger},
			},
		},
		{Name: "disconnect", Description: "stop everything and leave voice"},
		{
			Name:        "sfx",
			Description: "Sound effects",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: sub, Name: "trigger", Description: "play a sound once", Options: []*discordgo.ApplicationCommandOption{
					{Name: "sound", Description: "sound file", Type: str, Required: true, Autocomplete: true},
				}},
				{Type: sub, Name: "add", Description: "play a sound at random intervals", Options: []*discordgo.ApplicationCommandOption{
					{Name: "sound", Description: "sound file", Type: str, Required: true, Autocomplete: true},
					{Name: "min", Description: "shortest wait, e.g. 30s or 2m", Type: str, Required: true},
					{Name: "max", Description: "longest wait, e.g. 5m", Type: str, Required: true},
				}},
				{Type: sub, Name: "remove", Description: "stop a sound effect job", Options: []*discordgo.ApplicationCommandOption{
					{Name: "id", Description: "job id", Type: str, Required: true, Autocomplete: true},
				}},
				{Type: sub, Name: "list", Description: "list running jobs"},
				{Type: sub, Name: "stop-all", Description: "stop every job in this server"},
				{Type: sub, Name: "sounds", Description: "list available sounds"},
			},
		},
		{
			Name:        "config",
			Description: "Configure bot settings",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: sub, Name: "get", Description: "show settings"},
				{Type: sub, Name: "set-wait-after-queue-empties", Description: "time to wait before leaving VC", Options: []*discordgo.ApplicationCommandOption{
					{Name: "delay", Description: "seconds (0 never leave)", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
				{Type: sub, Name: "set-leave-if-no-listeners", Description: "leave when no listeners", Options: []*discordgo.ApplicationCommandOption{
					{Name: "value", Description: "true/false", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
				}},
				{Type: sub, Name: "set-announce-tracks", Description: "announce each song as it starts", Options: []*discordgo.ApplicationCommandOption{
					{Name: "value", Description: "true/false", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
				}},
			},
		},
	}
}

// RegisterCommands overwrites the application's commands for guildID, or
// globally when guildID is empty.
func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	cmds := commands()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	slog.Info("finished registering commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		if i.GuildID == "" {
			h.reply(s, i, "this only works in a server", true)
			return
		}
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "play":
		h.cmdPlay(s, i)
	case "search":
		h.cmdSearch(s, i)
	case "skip":
		h.cmdSkip(s, i)
	case "clear":
		h.cmdClear(s, i)
	case "stop":
		h.cmdStop(s, i)
	case "shuffle":
		h.cmdShuffle(s, i)
	case "pause":
		h.cmdPause(s, i)
	case "resume":
		h.cmdResume(s, i)
	case "now-playing":
		h.cmdNowPlaying(s, i)
	case "queue":
		h.cmdQueue(s, i)
	case "disconnect":
		h.cmdDisconnect(s, i)
	case "sfx":
		h.cmdSFX(s, i)
	case "config":
		h.cmdConfig(s, i)
	default:
		slog.Debug("unknown command", "name", data.Name, "guildID", i.GuildID, "userID", userIDOf(i))
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := data.Options
	subName := ""
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		subName = opts[0].Name
		opts = opts[0].Options
	}
	var focused *discordgo.ApplicationCommandInteractionDataOption
	for _, o := range opts {
		if o.Focused {
			focused = o
			break
		}
	}
	if focused == nil {
		h.respondChoices(s, i, nil)
		return
	}
	typed := strings.TrimSpace(focused.StringValue())

	switch {
	case data.Name == "play":
		if typed == "" {
			h.respondChoices(s, i, nil)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
		defer cancel()
		choices, err := autocomplete.GetYouTubeAndSpotifySuggestions(ctx, typed, h.sp, 10)
		if err != nil {
			slog.Debug("autocomplete suggestions error", "guildID", i.GuildID, "err", err)
		}
		h.respondChoices(s, i, choices)

	case data.Name == "sfx" && focused.Name == "sound":
		sounds, err := h.pm.ListSounds()
		if err != nil {
			slog.Warn("list sounds", "err", err)
		}
		h.respondChoices(s, i, prefixChoices(sounds, typed))

	case data.Name == "sfx" && subName == "remove":
		var choices []*discordgo.ApplicationCommandOptionChoice
		for _, j := range h.pm.ListJobs(i.GuildID) {
			if strings.HasPrefix(j.ID, typed) || strings.Contains(strings.ToLower(j.Sound), strings.ToLower(typed)) {
				choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
					Name:  fmt.Sprintf("%s (%s)", j.Sound, j.ID[:8]),
					Value: j.ID,
				})
			}
		}
		h.respondChoices(s, i, choices[:min(len(choices), maxChoices)])

	default:
		h.respondChoices(s, i, nil)
	}
}

func (h *CommandHandler) respondChoices(s *discordgo.Session, i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		slog.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

// prefixChoices offers names that contain typed, prefix matches first.
func prefixChoices(names []string, typed string) []*discordgo.ApplicationCommandOptionChoice {
	typed = strings.ToLower(typed)
	var first, rest []*discordgo.ApplicationCommandOptionChoice
	for _, n := range names {
		l := strings.ToLower(n)
		c := &discordgo.ApplicationCommandOptionChoice{Name: n, Value: n}
		switch {
		case strings.HasPrefix(l, typed):
			first = append(first, c)
		case strings.Contains(l, typed):
			rest = append(rest, c)
		}
	}
	out := append(first, rest...)
	return out[:min(len(out), maxChoices)]
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	}); err != nil {
		slog.Warn("reply embed failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: flags,
		},
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	}); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func userInVoice(s *discordgo.Session, guildID, userID string) (channelID string, ok bool) {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		g, _ = s.Guild(guildID)
	}
	if g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

// joinCaller connects to the caller's voice channel. It returns a message
// for the caller on failure.
func (h *CommandHandler) joinCaller(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) (string, bool) {
	chID, ok := userInVoice(s, i.GuildID, userIDOf(i))
	if !ok {
		slog.Debug("user not in voice", "guildID", i.GuildID, "userID", userIDOf(i))
		return "gotta be in a voice channel", false
	}
	if _, err := h.pm.Connect(ctx, i.GuildID, chID, i.ChannelID); err != nil {
		slog.Warn("voice connect failed", "guildID", i.GuildID, "channelID", chID, "err", err)
		return "couldn't connect to channel", false
	}
	return "", true
}

// friendlyError maps errors to what the caller sees.
func friendlyError(err error) string {
	switch {
	case errors.Is(err, plib.ErrNotConnected):
		return "not connected to a voice channel"
	case errors.Is(err, plib.ErrNothingPlaying):
		return "nothing is playing"
	case errors.Is(err, plib.ErrJobNotFound):
		return "no sound effect job with that id"
	case errors.Is(err, plib.ErrAlreadyActive):
		return "that sound already has a job running here"
	case errors.Is(err, plib.ErrInvalidInterval):
		return "invalid interval: min must be at least 0 and max at least min"
	case errors.Is(err, plib.ErrUnknownSound):
		return "no such sound, see `/sfx sounds`"
	case errors.Is(err, plib.ErrNoResults):
		return "no results found"
	case errors.Is(err, cache.ErrNotImplemented):
		return "that source needs a login, which isn't supported"
	case errors.Is(err, context.DeadlineExceeded):
		return "that took too long, try again"
	}
	return "something went wrong: " + err.Error()
}

// addedMessage describes what a play command queued.
func addedMessage(res plib.Resolved, pos int, started bool) string {
	var msg string
	if len(res.URLs) == 1 {
		name := res.Title
		if name == "" {
			name = res.URLs[0]
		}
		name = utils.EscapeMd(name)
		if started {
			msg = fmt.Sprintf("**%s** is up next", name)
		} else {
			msg = fmt.Sprintf("**%s** added to the queue (position %d)", name, pos)
		}
	} else {
		msg = fmt.Sprintf("added %d songs to the queue", len(res.URLs))
		if res.Title != "" {
			msg = fmt.Sprintf("added %d songs from **%s** to the queue", len(res.URLs), utils.EscapeMd(res.Title))
		}
	}
	if res.Notice != "" {
		msg += " (" + res.Notice + ")"
	}
	return msg
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	query := i.ApplicationCommandData().Options[0].StringValue()
	h.deferReply(s, i, false)

	ctx := context.Background()
	if _, ok := userInVoice(s, i.GuildID, userIDOf(i)); !ok {
		h.editReply(s, i, "gotta be in a voice channel")
		return
	}

	// resolve before joining so a slow playlist cannot trip the idle timer
	res, err := h.pm.Resolve(ctx, query)
	if err != nil {
		slog.Debug("resolve query failed", "guildID", i.GuildID, "userID", userIDOf(i), "query", query, "err", err)
		h.editReply(s, i, friendlyError(err))
		return
	}
	if msg, ok := h.joinCaller(ctx, s, i); !ok {
		h.editReply(s, i, msg)
		return
	}
	pos, started := h.pm.AddMany(ctx, i.GuildID, res.URLs)
	slog.Info("cmd play", "guildID", i.GuildID, "userID", userIDOf(i), "query", query, "added", len(res.URLs), "started", started)
	h.editReply(s, i, addedMessage(res, pos, started))
}

func (h *CommandHandler) cmdSearch(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i.ApplicationCommandData().Options)
	query := opts["query"].StringValue()
	n := 5
	if o, ok := opts["count"]; ok {
		n = min(max(int(o.IntValue()), 1), 10)
	}
	h.deferReply(s, i, true)

	results, err := h.pm.Search(context.Background(), query, n)
	if err != nil {
		slog.Warn("search failed", "guildID", i.GuildID, "query", query, "err", err)
		h.editReply(s, i, friendlyError(err))
		return
	}
	h.editEmbed(s, i, ui.BuildSearchEmbed(query, results))
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.pm.Skip(i.GuildID); err != nil {
		h.reply(s, i, friendlyError(err), true)
		return
	}
	slog.Info("cmd skip", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "keep 'er movin'", false)
}

func (h *CommandHandler) cmdClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	n := h.pm.Clear(i.GuildID)
	slog.Info("cmd clear", "guildID", i.GuildID, "userID", userIDOf(i), "removed", n)
	h.reply(s, i, fmt.Sprintf("clearer than a field after a fresh harvest (%d removed)", n), false)
}

func (h *CommandHandler) cmdStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.pm.Stop(i.GuildID); err != nil {
		h.reply(s, i, friendlyError(err), true)
		return
	}
	slog.Info("cmd stop", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "u betcha, stopped", false)
}

func (h *CommandHandler) cmdShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	n := h.pm.Shuffle(i.GuildID)
	if n == 0 {
		h.reply(s, i, "not enough songs to shuffle", true)
		return
	}
	slog.Info("cmd shuffle", "guildID", i.GuildID, "userID", userIDOf(i), "count", n)
	h.reply(s, i, fmt.Sprintf("shuffled %d songs", n), false)
}

func (h *CommandHandler) cmdPause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	c := h.pm.Peek(i.GuildID)
	if c == nil {
		h.reply(s, i, friendlyError(plib.ErrNothingPlaying), true)
		return
	}
	if err := c.Pause(); err != nil {
		h.reply(s, i, friendlyError(err), true)
		return
	}
	slog.Info("cmd pause", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "the stop-and-go light is now red", false)
}

func (h *CommandHandler) cmdResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	c := h.pm.Peek(i.GuildID)
	if c == nil {
		h.reply(s, i, friendlyError(plib.ErrNothingPlaying), true)
		return
	}
	if err := c.Resume(); err != nil {
		h.reply(s, i, "nothing is paused", true)
		return
	}
	slog.Info("cmd resume", "guildID", i.GuildID, "userID", userIDOf(i))
	h.reply(s, i, "the stop-and-go light is now green", false)
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.replyEmbed(s, i, ui.BuildPlayingEmbed(h.pm.NowPlaying(i.GuildID)))
}

func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := optionMap(i.ApplicationCommandData().Options)
	page, pageSize := 1, 10
	if o, ok := opts["page"]; ok {
		page = int(o.IntValue())
	}
	if o, ok := opts["page-size"]; ok {
		pageSize = min(max(int(o.IntValue()), 1), 30)
	}

	items := h.pm.QueueDetails(i.GuildID)
	np, playing := h.pm.NowPlaying(i.GuildID)
	embed, err := ui.BuildQueueEmbed(items, np, playing, page, pageSize)
	if err != nil {
		slog.Debug("build queue embed failed", "guildID", i.GuildID, "page", page, "pageSize", pageSize, "err", err)
		h.reply(s, i, err.Error(), true)
		return
	}
	h.replyEmbed(s, i, embed)
}

func (h *CommandHandler) cmdDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.deferReply(s, i, false)
	if err := h.pm.Disconnect(i.GuildID); err != nil {
		h.editReply(s, i, friendlyError(err))
		return
	}
	slog.Info("cmd disconnect", "guildID", i.GuildID, "userID", userIDOf(i))
	h.editReply(s, i, "u betcha, disconnected")
}

// parseWait reads "90", "1m30s" and the like.
func parseWait(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	sec := utils.ParseDurationString(s)
	if sec == 0 && strings.Trim(strings.ToLower(s), "0hms") != "" {
		return 0, fmt.Errorf("can't read %q as a duration", s)
	}
	if sec < 0 {
		return 0, plib.ErrInvalidInterval
	}
	return time.Duration(sec) * time.Second, nil
}

func (h *CommandHandler) cmdSFX(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)
	ctx := context.Background()

	switch sub.Name {
	case "trigger":
		name := opts["sound"].StringValue()
		h.deferReply(s, i, true)
		if c := h.pm.Peek(i.GuildID); c == nil || !c.Connected() {
			if msg, ok := h.joinCaller(ctx, s, i); !ok {
				h.editReply(s, i, msg)
				return
			}
		}
		if _, err := h.pm.TriggerSFX(ctx, i.GuildID, name); err != nil {
			slog.Debug("sfx trigger failed", "guildID", i.GuildID, "sound", name, "err", err)
			h.editReply(s, i, friendlyError(err))
			return
		}
		slog.Info("cmd sfx trigger", "guildID", i.GuildID, "userID", userIDOf(i), "sound", name)
		h.editReply(s, i, "💥 "+utils.EscapeMd(name))

	case "add":
		name := opts["sound"].StringValue()
		minWait, err := parseWait(opts["min"].StringValue())
		if err != nil {
			h.reply(s, i, err.Error(), true)
			return
		}
		maxWait, err := parseWait(opts["max"].StringValue())
		if err != nil {
			h.reply(s, i, err.Error(), true)
			return
		}
		h.deferReply(s, i, false)
		if c := h.pm.Peek(i.GuildID); c == nil || !c.Connected() {
			if msg, ok := h.joinCaller(ctx, s, i); !ok {
				h.editReply(s, i, msg)
				return
			}
		}
		id, err := h.pm.AddJob(ctx, i.GuildID, name, minWait, maxWait)
		if err != nil {
			h.editReply(s, i, friendlyError(err))
			return
		}
		slog.Info("cmd sfx add", "guildID", i.GuildID, "userID", userIDOf(i), "sound", name, "job", id)
		h.editReply(s, i, fmt.Sprintf("playing **%s** every %s to %s (job `%s`)", utils.EscapeMd(name), minWait, maxWait, id))

	case "remove":
		id := strings.TrimSpace(opts["id"].StringValue())
		h.deferReply(s, i, false)
		if err := h.pm.RemoveJob(id); err != nil {
			h.editReply(s, i, friendlyError(err))
			return
		}
		slog.Info("cmd sfx remove", "guildID", i.GuildID, "userID", userIDOf(i), "job", id)
		h.editReply(s, i, fmt.Sprintf("job `%s` stopped", id))

	case "list":
		h.replyEmbed(s, i, ui.BuildJobsEmbed(h.pm.ListJobs(i.GuildID)))

	case "stop-all":
		h.deferReply(s, i, false)
		n := h.pm.StopAllJobs(i.GuildID)
		slog.Info("cmd sfx stop-all", "guildID", i.GuildID, "userID", userIDOf(i), "stopped", n)
		h.editReply(s, i, fmt.Sprintf("stopped %d jobs", n))

	case "sounds":
		sounds, err := h.pm.ListSounds()
		if err != nil {
			slog.Warn("list sounds", "err", err)
			h.reply(s, i, friendlyError(err), true)
			return
		}
		if len(sounds) == 0 {
			h.reply(s, i, "no sounds available", true)
			return
		}
		h.reply(s, i, "Sounds:\n- "+strings.Join(sounds, "\n- "), true)
	}
}

func (h *CommandHandler) cmdConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	set, err := h.repo.UpsertSettings(ctx, i.GuildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", i.GuildID, "err", err)
		h.reply(s, i, "failed to fetch config", true)
		return
	}
	sub := i.ApplicationCommandData().Options[0]
	var key string
	var val any
	switch sub.Name {
	case "get":
		slog.Debug("config get", "guildID", i.GuildID)
		h.reply(s, i, formatSettings(set), false)
		return
	case "set-wait-after-queue-empties":
		delay := int(sub.Options[0].IntValue())
		if delay < 0 {
			h.reply(s, i, "delay can't be negative", true)
			return
		}
		set.SecondsWaitAfterEmpty = delay
		key, val = "SecondsWaitAfterEmpty", delay
	case "set-leave-if-no-listeners":
		set.LeaveIfNoListeners = sub.Options[0].BoolValue()
		key, val = "LeaveIfNoListeners", set.LeaveIfNoListeners
	case "set-announce-tracks":
		set.AnnounceTracks = sub.Options[0].BoolValue()
		key, val = "AnnounceTracks", set.AnnounceTracks
	default:
		return
	}
	if err := h.repo.UpdateSettings(ctx, set); err != nil {
		slog.Error("update settings failed", "guildID", i.GuildID, "key", key, "err", err)
		h.reply(s, i, "failed to save config", true)
		return
	}
	slog.Info("config updated", "guildID", i.GuildID, "key", key, "value", val)
	h.reply(s, i, "👍 settings updated", false)
}

func formatSettings(set *repository.Settings) string {
	wait := "never leave"
	if set.SecondsWaitAfterEmpty > 0 {
		wait = fmt.Sprintf("%ds", set.SecondsWaitAfterEmpty)
	}
	return fmt.Sprintf(
		"Config\n- Wait before leaving after queue empty: %s\n- Leave if no listeners: %t\n- Announce tracks: %t",
		wait, set.LeaveIfNoListeners, set.AnnounceTracks,
	)
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i == nil || i.Member == nil || i.Member.User == nil {
		return ""
	}
	return i.Member.User.ID
}
