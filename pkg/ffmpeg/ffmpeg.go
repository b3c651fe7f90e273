// Package ffmpeg provides a composable API for building and executing ffmpeg commands.
package ffmpeg

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"thirdcoast.systems/sonicstream/internal/toolexec"
)

// Command represents an ffmpeg command being built.
type Command struct {
	input        string
	output       string
	preInput     []string // args before -i (like -ss for input seeking)
	postInput    []string // args after -i
	audioFilters []string // collected -af filters
}

// Option modifies a Command. Options are composable and order-independent
// (ffmpeg will receive args in correct order regardless of option order).
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc is a function that implements Option.
type OptionFunc func(cmd *Command)

// Apply implements Option.
func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand creates a command with input/output and applies options.
func NewCommand(input, output string, opts ...Option) *Command {
	cmd := &Command{
		input:  input,
		output: output,
	}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// Output returns the output path the command writes.
func (c *Command) Output() string { return c.output }

// Build returns the complete ffmpeg argument list.
func (c *Command) Build() []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}

	// Pre-input args (seeking)
	args = append(args, c.preInput...)

	// Input
	args = append(args, "-i", c.input)

	// Post-input args
	args = append(args, c.postInput...)

	// Combine audio filters
	if len(c.audioFilters) > 0 {
		args = append(args, "-af", strings.Join(c.audioFilters, ","))
	}

	// Auto-apply faststart for MP4/M4A outputs
	ext := strings.ToLower(filepath.Ext(c.output))
	if ext == ".mp4" || ext == ".m4a" || ext == ".mov" {
		args = append(args, "-movflags", "+faststart")
	}

	// Output
	args = append(args, c.output)

	return args
}

// Tool runs ffmpeg and ffprobe through a toolexec.Runner.
type Tool struct {
	// FFmpegPath defaults to "ffmpeg".
	FFmpegPath string
	// FFprobePath defaults to "ffprobe".
	FFprobePath string
	// Env is passed to every invocation.
	Env     []string
	Timeout time.Duration
	Runner  *toolexec.Runner
}

func New(runner *toolexec.Runner) *Tool {
	return &Tool{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", Runner: runner}
}

func (t *Tool) ffmpegPath() string {
	if strings.TrimSpace(t.FFmpegPath) == "" {
		return "ffmpeg"
	}
	return t.FFmpegPath
}

func (t *Tool) ffprobePath() string {
	if strings.TrimSpace(t.FFprobePath) == "" {
		return "ffprobe"
	}
	return t.FFprobePath
}

func (t *Tool) runner() *toolexec.Runner {
	if t.Runner != nil {
		return t.Runner
	}
	return toolexec.NewRunner("")
}

// Run executes cmd. The output path is part of the run's contract, so a zero
// exit that leaves no output is reported as a missing-output failure.
func (t *Tool) Run(ctx context.Context, cmd *Command) (*toolexec.Result, error) {
	args := cmd.Build()
	res, err := t.runner().Run(ctx, toolexec.Command{
		Name:     t.ffmpegPath(),
		Args:     args,
		Env:      t.Env,
		Timeout:  t.Timeout,
		Contract: toolexec.Contract{Paths: []string{cmd.output}},
	})
	if err != nil {
		return res, newError(args, res, err)
	}
	return res, nil
}

// --- Audio Codec Options ---

// AudioCodec sets the audio codec (-c:a).
func AudioCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:a", codec)
	})
}

// AudioBitrate sets the audio bitrate (-b:a).
func AudioBitrate(bitrate string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-b:a", bitrate)
	})
}

// AudioQuality sets the variable bitrate quality (-q:a).
func AudioQuality(q int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-q:a", itoa(q))
	})
}

// AudioChannels sets the number of audio channels (-ac).
func AudioChannels(n int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-ac", itoa(n))
	})
}

// NoVideo drops video streams, including embedded cover art (-vn).
var NoVideo Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-vn")
})

// --- Filter Options ---

// AudioFilter adds an audio filter to the filter chain.
func AudioFilter(f string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.audioFilters = append(cmd.audioFilters, f)
	})
}

// --- Metadata ---

// Metadata sets a metadata key-value pair.
func Metadata(key, value string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-metadata", key+"="+value)
	})
}

// MapStream maps a specific stream (-map {spec}).
func MapStream(spec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-map", spec)
	})
}

// --- Misc ---

// LogLevel sets the logging level.
func LogLevel(level string) Option {
	return OptionFunc(func(cmd *Command) {
		// Insert at beginning of preInput so it's early in args
		cmd.preInput = append([]string{"-loglevel", level}, cmd.preInput...)
	})
}

// --- Utility ---

func itoa(n int) string {
	return strconv.Itoa(n)
}
