package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// PipeOutput makes ffmpeg write to stdout.
const PipeOutput = "pipe:1"

// TranscodeOptions enumerates every flag the transcoder supports. Output is
// always signed 16-bit little-endian PCM.
type TranscodeOptions struct {
	Input      string
	Output     string
	SampleRate int
	Channels   int
	// Quiet limits ffmpeg's stderr to errors.
	Quiet bool
}

func (o TranscodeOptions) Validate() error {
	switch {
	case o.Input == "":
		return fmt.Errorf("%w: missing input", ErrBadOptions)
	case o.Output == "":
		return fmt.Errorf("%w: missing output", ErrBadOptions)
	case o.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrBadOptions, o.SampleRate)
	case o.Channels != 1 && o.Channels != 2:
		return fmt.Errorf("%w: channels %d", ErrBadOptions, o.Channels)
	}
	return nil
}

func (o TranscodeOptions) Args() []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	if o.Quiet {
		args = append(args, "-loglevel", "error")
	}
	return append(args,
		"-i", o.Input,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(o.Channels),
		"-ar", strconv.Itoa(o.SampleRate),
		o.Output,
	)
}

// Transcoder converts an audio file into raw PCM.
type Transcoder interface {
	Transcode(ctx context.Context, opts TranscodeOptions) error
	Decode(ctx context.Context, input string, sampleRate, channels int) ([]byte, error)
}

type FFmpeg struct {
	Bin  string
	pool *Pool
}

func NewFFmpeg(pool *Pool) *FFmpeg {
	return &FFmpeg{Bin: "ffmpeg", pool: pool}
}

// Transcode writes opts.Output. On failure the partial output is left for the
// caller to remove.
func (f *FFmpeg) Transcode(ctx context.Context, opts TranscodeOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return f.pool.Do(ctx, "ffmpeg", func(ctx context.Context) error {
		return runCaptured(ctx, "ffmpeg", f.Bin, opts.Args(), io.Discard)
	})
}

// Decode transcodes input and returns the PCM bytes from stdout.
func (f *FFmpeg) Decode(ctx context.Context, input string, sampleRate, channels int) ([]byte, error) {
	opts := TranscodeOptions{
		Input:      input,
		Output:     PipeOutput,
		SampleRate: sampleRate,
		Channels:   channels,
		Quiet:      true,
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	err := f.pool.Do(ctx, "ffmpeg", func(ctx context.Context) error {
		return runCaptured(ctx, "ffmpeg", f.Bin, opts.Args(), &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// runCaptured runs bin with stderr captured and converts a failed run into a
// *SubprocessError.
func runCaptured(ctx context.Context, name, bin string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return &SubprocessError{Name: name, Args: args, ExitCode: code, Stderr: stderr.String(), Err: err}
}
