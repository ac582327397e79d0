package ui

import "strings"

const (
	barTrack = "▬"
	barKnob  = "🔘"
)

// ProgressBar draws width cells with the knob at progress (clamped to
// [0,1]).
func ProgressBar(width int, progress float64) string {
	if width <= 0 {
		return ""
	}
	progress = min(max(progress, 0), 1)
	knob := min(int(float64(width)*progress), width-1)
	return strings.Repeat(barTrack, knob) + barKnob + strings.Repeat(barTrack, width-knob-1)
}
