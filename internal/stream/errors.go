package stream

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoOutput means the downloader exited cleanly but the expected file
	// is missing.
	ErrNoOutput = errors.New("downloader produced no output file")

	ErrBadOptions = errors.New("invalid transcode options")
)

// SubprocessError is returned for any non-zero exit of yt-dlp or ffmpeg and
// carries the captured stderr.
type SubprocessError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SubprocessError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 512 {
		msg = "..." + msg[len(msg)-512:]
	}
	if msg == "" {
		return fmt.Sprintf("%s failed (exit %d): %v", e.Name, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s failed (exit %d): %s", e.Name, e.ExitCode, msg)
}

func (e *SubprocessError) Unwrap() error { return e.Err }
