package ffmpeg

import (
	"path/filepath"
	"strings"
)

// Preset bundles combine common option combinations.

// PresetMP3 returns options for high quality VBR mp3 encoding.
func PresetMP3() []Option {
	return []Option{
		NoVideo,
		AudioCodec("libmp3lame"),
		AudioQuality(2),
	}
}

// PresetWAV returns options for 16-bit PCM output.
func PresetWAV() []Option {
	return []Option{
		NoVideo,
		AudioCodec("pcm_s16le"),
	}
}

// PresetAAC returns options for AAC audio encoding.
func PresetAAC() []Option {
	return []Option{
		NoVideo,
		AudioCodec("aac"),
		AudioBitrate("192k"),
		AudioChannels(2),
	}
}

// PresetFLAC returns options for lossless FLAC output.
func PresetFLAC() []Option {
	return []Option{
		NoVideo,
		AudioCodec("flac"),
	}
}

// AudioPresetForExt returns encoder options matching an output extension.
// Unknown extensions fall back to mp3.
func AudioPresetForExt(path string) []Option {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return PresetWAV()
	case ".m4a", ".aac":
		return PresetAAC()
	case ".flac":
		return PresetFLAC()
	default:
		return PresetMP3()
	}
}

// Flatten merges multiple option slices into one.
func Flatten(groups ...[]Option) []Option {
	var all []Option
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}
