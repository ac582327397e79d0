package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/balaambot/internal/config"
	"github.com/sonroyaalmerol/balaambot/internal/observe"
	"github.com/sonroyaalmerol/balaambot/internal/player"
	"github.com/sonroyaalmerol/balaambot/internal/stream"
)

// voiceTransport is a joined voice channel with a running sender.
type voiceTransport struct {
	guildID string
	vc      *discordgo.VoiceConnection
	sender  *stream.Sender
}

func (t *voiceTransport) Close() error {
	t.sender.Stop()
	_ = t.vc.Speaking(false)
	return safeDisconnect(t.vc)
}

// safeDisconnect guards against discordgo panicking on a connection whose
// channels were already closed.
func safeDisconnect(vc *discordgo.VoiceConnection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("voice disconnect panic: %v", r)
		}
	}()
	return vc.Disconnect()
}

// NewJoiner returns a player.Joiner that joins voice through s and streams
// the connection's mixer as Opus.
func NewJoiner(s *discordgo.Session, cfg *config.Config, metrics *observe.Metrics) player.Joiner {
	return func(ctx context.Context, guildID, channelID string, src stream.ChunkSource) (player.Transport, error) {
		a := cfg.Audio
		enc, err := stream.NewOpusEncoder(a.SampleRate, a.Channels, a.OpusBitrate)
		if err != nil {
			return nil, err
		}
		vc, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
		if err != nil {
			return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
		}
		slog.Debug("voice joined", "guildID", guildID, "channelID", channelID)
		return &voiceTransport{
			guildID: guildID,
			vc:      vc,
			sender:  stream.StartSender(ctx, guildID, vc, src, enc, metrics),
		}, nil
	}
}

// channelAnnouncer posts scheduler announcements as plain messages.
type channelAnnouncer struct {
	s *discordgo.Session
}

func (a channelAnnouncer) Announce(channelID, text string) {
	if _, err := a.s.ChannelMessageSend(channelID, text); err != nil {
		slog.Warn("announce failed", "channelID", channelID, "err", err)
	}
}
