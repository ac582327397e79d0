package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/balaambot/internal/config"
	"github.com/sonroyaalmerol/balaambot/internal/player"
	"github.com/sonroyaalmerol/balaambot/internal/repository"
	"github.com/sonroyaalmerol/balaambot/internal/spotify"
)

type Bot struct {
	cfg  *config.Config
	repo *repository.Repo
	dg   *discordgo.Session
	pm   *player.PlayerManager
	cmd  *CommandHandler
}

// NewBot builds the gateway session and a PlayerManager whose voice joins
// and announcements go through it. deps.Join and deps.Announcer are
// filled in here.
func NewBot(cfg *config.Config, repo *repository.Repo, deps player.Deps, sp *spotify.Client) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	deps.Settings = repo
	deps.Join = NewJoiner(dg, cfg, deps.Metrics)
	deps.Announcer = channelAnnouncer{s: dg}
	if sp != nil {
		deps.Spotify = sp
	}
	pm := player.NewPlayerManager(cfg, deps)
	return &Bot{
		cfg:  cfg,
		repo: repo,
		dg:   dg,
		pm:   pm,
		cmd:  NewCommandHandler(repo, pm, sp),
	}, nil
}

func (b *Bot) PlayerManager() *player.PlayerManager { return b.pm }

// Run opens the gateway and blocks until ctx ends, then disconnects every
// guild.
func (b *Bot) Run(ctx context.Context) error {
	dg := b.dg

	// On ready: register commands depending on configuration
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username)
		appID := s.State.User.ID

		if b.cfg.RegisterCommandsOnBot {
			if err := b.cmd.RegisterCommands(s, appID, ""); err != nil {
				slog.Error("register global commands", "err", err)
			} else {
				slog.Info("registered global application commands")
			}
			return
		}

		var wg sync.WaitGroup
		for _, g := range s.State.Guilds {
			wg.Go(func() {
				if err := b.cmd.RegisterCommands(s, appID, g.ID); err != nil {
					slog.Error("register guild commands", "guild", g.ID, "err", err)
				}
			})
		}
		wg.Wait()

		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
			slog.Error("clear global commands", "err", err)
		} else {
			slog.Info("cleared global application commands")
		}
		slog.Info("registered commands on all guilds")
	})

	// If registering per-guild, register on new guilds too
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.cfg.RegisterCommandsOnBot {
			return
		}
		if err := b.cmd.RegisterCommands(s, s.State.User.ID, g.ID); err != nil {
			slog.Error("register guild commands on join", "guild", g.ID, "err", err)
		}
	})

	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.onVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	<-ctx.Done()
	b.pm.Shutdown()
	return nil
}

// onVoiceStateUpdate leaves when the bot was dropped from voice, or when
// nobody but bots remains and the guild wants that.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	gid := vs.GuildID
	c := b.pm.Peek(gid)
	if c == nil || !c.Connected() {
		return
	}

	if s.State.User != nil && vs.UserID == s.State.User.ID && vs.ChannelID == "" {
		slog.Info("removed from voice", "guildID", gid)
		_ = b.pm.Disconnect(gid)
		return
	}

	set := b.pm.Settings(context.Background(), gid)
	if !set.LeaveIfNoListeners {
		return
	}
	if getNonBotSize(s, gid, c.ChannelID()) == 0 {
		slog.Info("no listeners left, leaving", "guildID", gid)
		_ = b.pm.Disconnect(gid)
	}
}

func getNonBotSize(s *discordgo.Session, guildID, channelID string) int {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		return 0
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		if s.State.User != nil && vs.UserID == s.State.User.ID {
			continue
		}
		m := vs.Member
		if m == nil {
			m, _ = s.State.Member(guildID, vs.UserID)
		}
		// unknown members count as listeners
		if m != nil && m.User != nil && m.User.Bot {
			continue
		}
		n++
	}
	return n
}
