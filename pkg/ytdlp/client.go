// Package ytdlp fetches remote media metadata and audio with yt-dlp.
package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"thirdcoast.systems/sonicstream/internal/toolexec"
)

type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	msg := fmt.Sprintf("ytdlp: command failed: %s", cmdline)
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("ytdlp: command failed (exit %d): %s", e.ExitCode, cmdline)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Cause }

type Client struct {
	// Path to yt-dlp executable. Defaults to "yt-dlp" (resolved against the
	// runner's search path).
	Path string

	// Cookies is the cookies.txt content for authentication. When set, a
	// temporary cookies file is created for each command.
	Cookies string

	// ExtraArgs are always prepended before per-call args.
	ExtraArgs []string

	// Env is passed to every invocation in addition to the runner's base
	// environment.
	Env []string

	// Timeout bounds each invocation. Zero uses the runner default.
	Timeout time.Duration

	// LogCallback is called for each line of stdout/stderr output.
	LogCallback func(stream string, line string)

	Runner *toolexec.Runner
}

func New(runner *toolexec.Runner) *Client {
	return &Client{Path: "yt-dlp", Runner: runner}
}

// PathOrDefault returns the configured path or "yt-dlp" if unset.
func (c *Client) PathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "yt-dlp"
	}
	return c.Path
}

func (c *Client) runner() *toolexec.Runner {
	if c.Runner != nil {
		return c.Runner
	}
	return toolexec.NewRunner("")
}

func (c *Client) exec(ctx context.Context, contract toolexec.Contract, args ...string) (*toolexec.Result, error) {
	fullArgs := make([]string, 0, len(c.ExtraArgs)+len(args)+3)
	fullArgs = append(fullArgs, c.ExtraArgs...)

	if c.Cookies != "" {
		cookiesFile, err := createTempCookiesFile(c.Cookies)
		if err != nil {
			slog.Error("ytdlp: failed to create temp cookies file", "error", err)
			return nil, fmt.Errorf("failed to create temp cookies file: %w", err)
		}
		defer os.Remove(cookiesFile)
		fullArgs = append(fullArgs, "--cookies", cookiesFile)
	}

	fullArgs = append(fullArgs, args...)

	res, err := c.runner().Run(ctx, toolexec.Command{
		Name:     c.PathOrDefault(),
		Args:     fullArgs,
		Env:      c.Env,
		Timeout:  c.Timeout,
		Contract: contract,
		OnLine:   c.LogCallback,
	})
	if err != nil {
		return res, wrapExecError(c.PathOrDefault(), args, res, err)
	}
	return res, nil
}

// Version returns `yt-dlp --version`.
func (c *Client) Version(ctx context.Context) (string, error) {
	res, err := c.exec(ctx, toolexec.Contract{}, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Info models the parts of yt-dlp's JSON output the pipeline uses. The full
// document is preserved in Raw.
type Info struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	WebpageURL     string            `json:"webpage_url"`
	Extractor      string            `json:"extractor"`
	ExtractorKey   string            `json:"extractor_key"`
	Uploader       string            `json:"uploader"`
	Duration       float64           `json:"duration"`
	DurationString string            `json:"duration_string"`
	Thumbnail      string            `json:"thumbnail"`
	Entries        []json.RawMessage `json:"entries,omitempty"`
	Raw            json.RawMessage   `json:"-"`
}

// GetInfo runs yt-dlp in metadata-only mode and parses its JSON output.
// It uses: --dump-single-json --skip-download --no-playlist
func (c *Client) GetInfo(ctx context.Context, url string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}

	args := []string{"--dump-single-json", "--skip-download", "--no-playlist", "--no-colors", "--", url}

	res, err := c.exec(ctx, toolexec.Contract{Structured: true}, args...)
	if err != nil {
		return nil, err
	}

	info := &Info{Raw: append(json.RawMessage(nil), res.Document...)}
	if err := json.Unmarshal(res.Document, info); err != nil {
		return nil, fmt.Errorf("ytdlp: parse json: %w", err)
	}
	if len(info.Entries) > 0 {
		return nil, fmt.Errorf("ytdlp: %s is a playlist with %d entries", url, len(info.Entries))
	}
	return info, nil
}

// Update runs `yt-dlp -U` to update to the latest version.
func (c *Client) Update(ctx context.Context) error {
	_, err := c.exec(ctx, toolexec.Contract{}, "-U")
	return err
}

func wrapExecError(cmd string, args []string, res *toolexec.Result, cause error) error {
	var te *toolexec.ToolError
	if !errors.As(cause, &te) {
		return cause
	}
	exitCode := 0
	if res != nil {
		exitCode = res.ExitCode
	}
	return &ExecError{
		Cmd:      cmd,
		Args:     args,
		ExitCode: exitCode,
		Stderr:   te.Stderr,
		Cause:    cause,
	}
}

// createTempCookiesFile creates a temporary file with the cookies content
func createTempCookiesFile(content string) (string, error) {
	tmpFile, err := os.CreateTemp("", "ytdlp-cookies-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	if _, err := tmpFile.WriteString(content); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}

	return tmpFile.Name(), nil
}
