package ffmpeg

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/toolexec"
)

func TestCommandBuild(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		output   string
		opts     []Option
		wantArgs []string
	}{
		{
			name:   "pitch shift up an octave",
			input:  "in/source.mp3",
			output: "out/pitched.mp3",
			opts:   Flatten([]Option{Rubberband(PitchScale(12))}, PresetMP3()),
			wantArgs: []string{
				"-hide_banner", "-nostdin", "-y",
				"-i", "in/source.mp3",
				"-vn",
				"-c:a", "libmp3lame",
				"-q:a", "2",
				"-af", "rubberband=pitch=2",
				"out/pitched.mp3",
			},
		},
		{
			name:   "audio filters are combined",
			input:  "input.wav",
			output: "output.m4a",
			opts: []Option{
				AudioFilter("volume=0.5"),
				Rubberband(0.5),
				AudioCodec("aac"),
			},
			wantArgs: []string{
				"-hide_banner", "-nostdin", "-y",
				"-i", "input.wav",
				"-c:a", "aac",
				"-af", "volume=0.5,rubberband=pitch=0.5",
				"-movflags", "+faststart",
				"output.m4a",
			},
		},
		{
			name:   "log level goes first",
			input:  "input.mp3",
			output: "output.wav",
			opts: []Option{
				MapStream("0:a:0"),
				LogLevel("error"),
				AudioChannels(2),
				Metadata("title", "My Song"),
			},
			wantArgs: []string{
				"-hide_banner", "-nostdin", "-y",
				"-loglevel", "error",
				"-i", "input.mp3",
				"-map", "0:a:0",
				"-ac", "2",
				"-metadata", "title=My Song",
				"output.wav",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCommand(tt.input, tt.output, tt.opts...)
			assert.Equal(t, tt.wantArgs, cmd.Build())
			assert.Equal(t, tt.output, cmd.Output())
		})
	}
}

func TestPitchScale(t *testing.T) {
	tests := []struct {
		semitones float64
		want      float64
	}{
		{0, 1.0},
		{12, 2.0},
		{-12, 0.5},
		{24, 4.0},
		{7, 1.4983070768766815},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, PitchScale(tt.semitones), 1e-9, "semitones=%v", tt.semitones)
	}
}

func TestRubberbandFilter(t *testing.T) {
	assert.Equal(t, "rubberband=pitch=1", RubberbandFilter{Pitch: 1}.String())
	assert.Equal(t, "rubberband=pitch=0.5", RubberbandFilter{Pitch: 0.5}.String())
	assert.Equal(t, "rubberband=pitch=1.5", RubberbandFilter{Pitch: 1.5}.String())
}

func TestAudioPresetForExt(t *testing.T) {
	codec := func(opts []Option) string {
		args := NewCommand("i", "o", opts...).Build()
		for i, a := range args {
			if a == "-c:a" {
				return args[i+1]
			}
		}
		return ""
	}
	assert.Equal(t, "libmp3lame", codec(AudioPresetForExt("x.mp3")))
	assert.Equal(t, "libmp3lame", codec(AudioPresetForExt("x.ogg")))
	assert.Equal(t, "pcm_s16le", codec(AudioPresetForExt("x.WAV")))
	assert.Equal(t, "aac", codec(AudioPresetForExt("x.m4a")))
	assert.Equal(t, "flac", codec(AudioPresetForExt("x.flac")))
}

func TestParseProbe(t *testing.T) {
	doc := json.RawMessage(`{
		"format": {"format_name": "mp3", "duration": "12.345", "size": "197520", "bit_rate": "128000"},
		"streams": [
			{"index": 0, "codec_type": "audio", "codec_name": "mp3", "sample_rate": "44100", "channels": 2},
			{"index": 1, "codec_type": "video", "codec_name": "mjpeg"}
		]
	}`)

	p, err := parseProbe(doc)
	require.NoError(t, err)
	assert.Equal(t, "mp3", p.FormatName)
	assert.InDelta(t, 12.345, p.Duration, 1e-9)
	assert.Equal(t, int64(197520), p.Size)
	assert.Equal(t, int64(128000), p.Bitrate)
	assert.Equal(t, 1, p.AudioStreams)
	assert.Equal(t, 1, p.VideoStreams)
	assert.Equal(t, "mp3", p.AudioCodec)
	assert.Equal(t, 2, p.AudioChannels)
	assert.Equal(t, 44100, p.AudioSampleRate)

	_, err = parseProbe(json.RawMessage(`[]`))
	require.Error(t, err)
}

func fakeTool(t *testing.T, exec toolexec.ExecFunc) *Tool {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0o755))
	}
	runner := toolexec.NewRunner(dir)
	runner.Exec = exec
	return New(runner)
}

func TestToolRun_ProducesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "pitched.mp3")
	var got toolexec.Process
	tool := fakeTool(t, func(ctx context.Context, p toolexec.Process) (int, error) {
		got = p
		return 0, os.WriteFile(p.Args[len(p.Args)-1], []byte("ID3"), 0o600)
	})

	_, err := tool.Run(context.Background(), NewCommand("in.mp3", out, Rubberband(PitchScale(-12))))
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", filepath.Base(got.Path))
	assert.Contains(t, got.Args, "rubberband=pitch=0.5")
	assert.FileExists(t, out)
}

func TestToolRun_MissingOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "pitched.mp3")
	tool := fakeTool(t, func(ctx context.Context, p toolexec.Process) (int, error) {
		return 0, nil
	})

	_, err := tool.Run(context.Background(), NewCommand("in.mp3", out))
	require.ErrorIs(t, err, faults.ErrOutputMissing)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Command(), "in.mp3")
}

func TestToolRun_FailureCarriesStderr(t *testing.T) {
	tool := fakeTool(t, func(ctx context.Context, p toolexec.Process) (int, error) {
		_, _ = io.WriteString(p.Stderr, "line1\nline2\nline3\nNo such filter: 'rubberband'\n")
		return 1, nil
	})

	_, err := tool.Run(context.Background(), NewCommand("in.mp3", "out.mp3", Rubberband(2)))
	require.ErrorIs(t, err, faults.ErrToolFailed)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.ExitCode)
	assert.Contains(t, fe.FullStderr(), "line1")
	assert.Contains(t, fe.Error(), "No such filter")
	assert.NotContains(t, fe.Error(), "line1")
}

func TestToolProbe_UsesStructuredOutput(t *testing.T) {
	tool := fakeTool(t, func(ctx context.Context, p toolexec.Process) (int, error) {
		if filepath.Base(p.Path) != "ffprobe" {
			return 1, nil
		}
		_, _ = io.WriteString(p.Stdout, `{"format":{"duration":"3.5"},"streams":[{"codec_type":"audio","codec_name":"pcm_s16le"}]}`)
		return 0, nil
	})

	d, err := tool.ProbeDuration(context.Background(), "x.wav")
	require.NoError(t, err)
	assert.InDelta(t, 3.5, d, 1e-9)

	bad := fakeTool(t, func(ctx context.Context, p toolexec.Process) (int, error) {
		_, _ = io.WriteString(p.Stdout, "not json")
		return 0, nil
	})
	_, err = bad.Probe(context.Background(), "x.wav")
	require.ErrorIs(t, err, faults.ErrOutputMalformed)
}

// =============================================================================
// Integration tests - require ffmpeg to be installed
// =============================================================================

func requireFFmpeg(t *testing.T) *Tool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if _, err := toolexec.LookPath(name, toolexec.DefaultSearchPath); err != nil {
			t.Skipf("%s not installed", name)
		}
	}
	return New(toolexec.NewRunner(""))
}

func TestIntegration_EncodeAndProbe(t *testing.T) {
	tool := requireFFmpeg(t)
	dir := t.TempDir()
	output := filepath.Join(dir, "tone.wav")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := NewCommand("sine=frequency=440:duration=1:sample_rate=44100", output,
		OptionFunc(func(cmd *Command) {
			cmd.preInput = append(cmd.preInput, "-f", "lavfi")
		}),
		AudioCodec("pcm_s16le"),
	)
	_, err := tool.Run(ctx, cmd)
	require.NoError(t, err)

	p, err := tool.Probe(ctx, output)
	require.NoError(t, err)
	assert.Equal(t, 1, p.AudioStreams)
	assert.InDelta(t, 1.0, p.Duration, 0.1)
	assert.Equal(t, 44100, p.AudioSampleRate)
}

func TestIntegration_PitchShift(t *testing.T) {
	tool := requireFFmpeg(t)
	dir := t.TempDir()
	source := filepath.Join(dir, "tone.wav")
	output := filepath.Join(dir, "tone_pitch+2.wav")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := tool.Run(ctx, NewCommand("sine=frequency=440:duration=1", source,
		OptionFunc(func(cmd *Command) {
			cmd.preInput = append(cmd.preInput, "-f", "lavfi")
		}),
	))
	require.NoError(t, err)

	_, err = tool.Run(ctx, NewCommand(source, output, Flatten([]Option{Rubberband(PitchScale(2))}, PresetWAV())...))
	if err != nil && strings.Contains(err.Error(), "rubberband") {
		t.Skip("ffmpeg built without librubberband")
	}
	require.NoError(t, err)
	assert.FileExists(t, output)
}
