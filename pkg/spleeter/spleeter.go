// Package spleeter runs stem separation with the spleeter CLI.
package spleeter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/toolexec"
)

// DefaultModel separates vocals, drums, bass, piano and other.
const DefaultModel = "spleeter:5stems"

// Models lists the pretrained configurations the separator accepts.
var Models = []string{
	"spleeter:2stems",
	"spleeter:2stems-16kHz",
	"spleeter:4stems",
	"spleeter:4stems-16kHz",
	"spleeter:5stems",
	"spleeter:5stems-16kHz",
}

// ValidateModel returns the model to use, applying the default for "".
func ValidateModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return DefaultModel, nil
	}
	if !slices.Contains(Models, model) {
		return "", faults.BadRequest("spleeter", fmt.Sprintf("unknown model %q (want one of %s)", model, strings.Join(Models, ", ")))
	}
	return model, nil
}

type Client struct {
	// Path to the spleeter executable. Defaults to "spleeter".
	Path string
	// ModelPath is exported to the tool as MODEL_PATH, where pretrained
	// models are cached.
	ModelPath string
	// Env is passed to every invocation.
	Env     []string
	Timeout time.Duration
	// LogCallback is called for each line of stdout/stderr output.
	LogCallback func(stream string, line string)

	Runner *toolexec.Runner
}

func New(runner *toolexec.Runner, modelPath string) *Client {
	return &Client{Path: "spleeter", ModelPath: modelPath, Runner: runner}
}

// PathOrDefault returns the configured path or "spleeter" if unset.
func (c *Client) PathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "spleeter"
	}
	return c.Path
}

func (c *Client) runner() *toolexec.Runner {
	if c.Runner != nil {
		return c.Runner
	}
	return toolexec.NewRunner("")
}

// Result describes a separation run.
type Result struct {
	// Dir holds the produced stems.
	Dir string
	// Stems are the .wav file names in Dir, sorted.
	Stems []string
}

// Paths returns the absolute path of every stem.
func (r *Result) Paths() []string {
	out := make([]string, len(r.Stems))
	for i, s := range r.Stems {
		out[i] = filepath.Join(r.Dir, s)
	}
	return out
}

// OutputDir is where spleeter writes the stems of input under outputDir.
func OutputDir(outputDir, input string) string {
	base := filepath.Base(input)
	return filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Separate runs `spleeter separate -p <model> -o <outputDir> <input>`.
// A run that produces no .wav files fails with faults.ErrNoStemsProduced.
func (c *Client) Separate(ctx context.Context, input, outputDir, model string) (*Result, error) {
	model, err := ValidateModel(model)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input) == "" || strings.TrimSpace(outputDir) == "" {
		return nil, faults.BadRequest("spleeter", "input and output directory are required")
	}

	stemDir := OutputDir(outputDir, input)
	env := append([]string{}, c.Env...)
	if c.ModelPath != "" {
		env = append(env, "MODEL_PATH="+c.ModelPath)
	}

	args := []string{"separate", "-p", model, "-o", outputDir, input}
	if _, err := c.runner().Run(ctx, toolexec.Command{
		Name:     c.PathOrDefault(),
		Args:     args,
		Env:      env,
		Timeout:  c.Timeout,
		Contract: toolexec.Contract{Paths: []string{stemDir}},
		OnLine:   c.LogCallback,
	}); err != nil {
		return nil, fmt.Errorf("spleeter: %w", err)
	}

	stems, err := ListStems(stemDir)
	if err != nil {
		return nil, err
	}
	if len(stems) == 0 {
		return nil, faults.Wrap(faults.ErrNoStemsProduced, "spleeter", "separate", fmt.Sprintf("no .wav files in %s", stemDir), nil)
	}
	return &Result{Dir: stemDir, Stems: stems}, nil
}

// ListStems returns the sorted .wav file names directly inside dir.
func ListStems(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("spleeter: read %s: %w", dir, err)
	}
	var stems []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			stems = append(stems, e.Name())
		}
	}
	sort.Strings(stems)
	return stems, nil
}
