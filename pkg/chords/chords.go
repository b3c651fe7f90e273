// Package chords runs the chord extraction script and parses its output.
package chords

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/toolexec"
)

// Segment is one chord held over [Start, End) seconds.
type Segment struct {
	Chord string  `json:"chord"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Document is the full chord sequence of an asset.
type Document []Segment

type Client struct {
	// Python is the interpreter. Defaults to "python3".
	Python string
	// Script is the extractor script passed as the first argument.
	Script string
	// Env is passed to every invocation.
	Env     []string
	Timeout time.Duration

	Runner *toolexec.Runner
}

func New(runner *toolexec.Runner, script string) *Client {
	return &Client{Python: "python3", Script: script, Runner: runner}
}

func (c *Client) python() string {
	if strings.TrimSpace(c.Python) == "" {
		return "python3"
	}
	return c.Python
}

func (c *Client) runner() *toolexec.Runner {
	if c.Runner != nil {
		return c.Runner
	}
	return toolexec.NewRunner("")
}

// Extract runs `<python> <script> <input>` and parses stdout as a Document.
func (c *Client) Extract(ctx context.Context, input string) (Document, error) {
	if strings.TrimSpace(c.Script) == "" {
		return nil, fmt.Errorf("chords: extractor script is not configured")
	}
	if strings.TrimSpace(input) == "" {
		return nil, faults.BadRequest("chords", "input is required")
	}

	res, err := c.runner().Run(ctx, toolexec.Command{
		Name:     c.python(),
		Args:     []string{c.Script, input},
		Env:      c.Env,
		Timeout:  c.Timeout,
		Contract: toolexec.Contract{Structured: true},
	})
	if err != nil {
		return nil, fmt.Errorf("chords: %w", err)
	}
	return Parse(res.Document)
}

// Parse decodes and validates an extractor document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, faults.Wrap(faults.ErrOutputMalformed, "chords", "parse", "expected an array of chord segments", err)
	}
	if doc == nil {
		return nil, faults.Wrap(faults.ErrOutputMalformed, "chords", "parse", "document is null", nil)
	}
	for i, s := range doc {
		if err := s.validate(); err != nil {
			return nil, faults.Wrap(faults.ErrOutputMalformed, "chords", "parse", fmt.Sprintf("segment %d", i), err)
		}
	}
	return doc, nil
}

func (s Segment) validate() error {
	switch {
	case strings.TrimSpace(s.Chord) == "":
		return fmt.Errorf("chord is empty")
	case math.IsNaN(s.Start) || math.IsNaN(s.End) || s.Start < 0:
		return fmt.Errorf("invalid start %v", s.Start)
	case s.End < s.Start:
		return fmt.Errorf("end %v before start %v", s.End, s.Start)
	}
	return nil
}

// Duration is the end time of the last segment.
func (d Document) Duration() float64 {
	if len(d) == 0 {
		return 0
	}
	return d[len(d)-1].End
}

// Distinct returns chord names in order of first appearance.
func (d Document) Distinct() []string {
	seen := make(map[string]bool, len(d))
	var out []string
	for _, s := range d {
		if !seen[s.Chord] {
			seen[s.Chord] = true
			out = append(out, s.Chord)
		}
	}
	return out
}
