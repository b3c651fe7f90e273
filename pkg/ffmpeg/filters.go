package ffmpeg

import (
	"math"
	"strconv"
)

// PitchScale converts a semitone offset into a frequency ratio.
func PitchScale(semitones float64) float64 {
	return math.Pow(2, semitones/12)
}

// RubberbandFilter represents the rubberband pitch filter.
type RubberbandFilter struct {
	Pitch float64 // Frequency ratio, 1.0 leaves pitch unchanged
}

// String returns the ffmpeg filter string.
func (r RubberbandFilter) String() string {
	return "rubberband=pitch=" + strconv.FormatFloat(r.Pitch, 'f', -1, 64)
}

// Rubberband shifts pitch by scale without changing tempo.
func Rubberband(scale float64) Option {
	return AudioFilter(RubberbandFilter{Pitch: scale}.String())
}

