package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"thirdcoast.systems/sonicstream/internal/toolexec"
)

// ProbeResult contains media file metadata.
type ProbeResult struct {
	// Audio properties
	AudioCodec      string // Audio codec name (mp3, aac, pcm_s16le, etc.)
	AudioChannels   int    // Number of audio channels
	AudioSampleRate int    // Audio sample rate in Hz

	// File properties
	Duration   float64 // Duration in seconds
	Bitrate    int64   // Total bitrate in bits per second
	Size       int64   // File size in bytes
	FormatName string  // Container format (mp3, wav, etc.)

	// Stream counts
	VideoStreams int
	AudioStreams int

	// Raw JSON from ffprobe (complete output)
	RawJSON json.RawMessage
}

// ffprobeOutput matches ffprobe JSON output structure.
type ffprobeOutput struct {
	Format struct {
		Filename   string `json:"filename"`
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`

		// Audio properties
		SampleRate    string `json:"sample_rate"`
		Channels      int    `json:"channels"`
		ChannelLayout string `json:"channel_layout"`
	} `json:"streams"`
}

// Probe runs ffprobe on a file and returns metadata.
func (t *Tool) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	res, err := t.runner().Run(ctx, toolexec.Command{
		Name:     t.ffprobePath(),
		Args:     args,
		Env:      t.Env,
		Timeout:  t.Timeout,
		Contract: toolexec.Contract{Structured: true},
	})
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}

	return parseProbe(res.Document)
}

func parseProbe(doc json.RawMessage) (*ProbeResult, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(doc, &output); err != nil {
		return nil, fmt.Errorf("ffprobe: failed to parse output: %w", err)
	}

	result := &ProbeResult{
		RawJSON: doc,
	}

	// Parse format metadata
	if output.Format.Duration != "" {
		result.Duration, _ = strconv.ParseFloat(output.Format.Duration, 64)
	}
	if output.Format.BitRate != "" {
		result.Bitrate, _ = strconv.ParseInt(output.Format.BitRate, 10, 64)
	}
	if output.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(output.Format.Size, 10, 64)
	}
	result.FormatName = output.Format.FormatName

	// Parse streams
	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			// Cover art embedded by yt-dlp shows up as a video stream.
			result.VideoStreams++

		case "audio":
			result.AudioStreams++
			// Only take first audio stream metadata
			if result.AudioCodec == "" {
				result.AudioCodec = stream.CodecName
				result.AudioChannels = stream.Channels
				if stream.SampleRate != "" {
					result.AudioSampleRate, _ = strconv.Atoi(stream.SampleRate)
				}
			}
		}
	}

	return result, nil
}

// ProbeDuration is a convenience function that returns just the duration.
func (t *Tool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	result, err := t.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.Duration, nil
}
