package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/sonroyaalmerol/balaambot/internal/mixer"
	"github.com/sonroyaalmerol/balaambot/internal/observe"
)

// ChunkSource is polled once per frame by the Sender.
type ChunkSource interface {
	ReadChunk() []byte
	State() mixer.State
}

type frameEncoder interface {
	Encode(pcm []byte) ([]byte, error)
}

// OpusEncoder encodes one 20 ms interleaved s16le frame per call.
type OpusEncoder struct {
	enc       *gopus.Encoder
	frameSize int // samples per channel per frame
	maxBytes  int
	shorts    []int16
}

func NewOpusEncoder(sampleRate, channels, bitrate int) (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	frameSize := sampleRate * int(mixer.ChunkDuration/time.Millisecond) / 1000
	return &OpusEncoder{
		enc:       enc,
		frameSize: frameSize,
		maxBytes:  4000,
		shorts:    make([]int16, frameSize*channels),
	}, nil
}

func (e *OpusEncoder) Encode(pcm []byte) ([]byte, error) {
	if len(pcm) != len(e.shorts)*2 {
		return nil, fmt.Errorf("opus encode: frame is %d bytes, want %d", len(pcm), len(e.shorts)*2)
	}
	for i := range e.shorts {
		j := i * 2
		e.shorts[i] = int16(pcm[j]) | int16(int8(pcm[j+1]))<<8
	}
	pkt, err := e.enc.Encode(e.shorts, e.frameSize, e.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return pkt, nil
}

// Sender pulls chunks from a ChunkSource every 20 ms, encodes them and
// pushes the packets to a voice connection.
type Sender struct {
	src     ChunkSource
	enc     frameEncoder
	out     chan<- []byte
	speak   func(bool) error
	ready   func() bool
	metrics *observe.Metrics
	guildID string

	cancel context.CancelFunc
	done   chan struct{}
}

// StartSender begins streaming src into vc until Stop or ctx ends.
func StartSender(ctx context.Context, guildID string, vc *discordgo.VoiceConnection, src ChunkSource, enc *OpusEncoder, metrics *observe.Metrics) *Sender {
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	return startSender(ctx, guildID, vc.OpusSend, vc.Speaking, func() bool { return vc.Ready }, src, enc, metrics)
}

func startSender(
	ctx context.Context,
	guildID string,
	out chan<- []byte,
	speak func(bool) error,
	ready func() bool,
	src ChunkSource,
	enc frameEncoder,
	metrics *observe.Metrics,
) *Sender {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	ctx, cancel := context.WithCancel(ctx)
	sd := &Sender{
		src:     src,
		enc:     enc,
		out:     out,
		speak:   speak,
		ready:   ready,
		metrics: metrics,
		guildID: guildID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go sd.loop(ctx)
	return sd
}

// Stop cancels the loop and waits for it to exit.
func (sd *Sender) Stop() {
	sd.cancel()
	<-sd.done
}

func (sd *Sender) waitReady(ctx context.Context) bool {
	deadline := time.Now().Add(5 * time.Second)
	for !sd.ready() {
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
	return true
}

func (sd *Sender) loop(ctx context.Context) {
	defer close(sd.done)

	if !sd.waitReady(ctx) {
		slog.Warn("voice connection not ready, sender exiting", "guildID", sd.guildID)
		return
	}

	speaking := false
	setSpeaking := func(v bool) {
		if speaking == v {
			return
		}
		speaking = v
		if err := sd.speak(v); err != nil {
			slog.Debug("speaking update failed", "guildID", sd.guildID, "speaking", v, "err", err)
		}
	}
	defer setSpeaking(false)

	ticker := time.NewTicker(mixer.ChunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if sd.src.State() == mixer.StateStopped {
			setSpeaking(false)
			continue
		}
		setSpeaking(true)

		pkt, err := sd.enc.Encode(sd.src.ReadChunk())
		if err != nil {
			slog.Error("encode frame", "guildID", sd.guildID, "err", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case sd.out <- pkt:
		case <-time.After(mixer.ChunkDuration):
			sd.metrics.LateChunks.Add(ctx, 1)
			slog.Debug("dropped opus frame", "guildID", sd.guildID)
		}
	}
}
