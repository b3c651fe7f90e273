package chords

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/toolexec"
)

func newFakeClient(t *testing.T, stdout string, exit int) (*Client, *toolexec.Process) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "python3"), []byte("#!/bin/sh\n"), 0o755))
	runner := toolexec.NewRunner(dir)
	got := &toolexec.Process{}
	runner.Exec = func(ctx context.Context, p toolexec.Process) (int, error) {
		*got = p
		_, _ = io.WriteString(p.Stdout, stdout)
		return exit, nil
	}
	return New(runner, "/opt/sonicstream/chord_extractor.py"), got
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Document
		wantErr bool
	}{
		{
			name: "segments",
			in:   `[{"chord":"C","start":0,"end":1.5},{"chord":"Am","start":1.5,"end":3.02}]`,
			want: Document{{Chord: "C", Start: 0, End: 1.5}, {Chord: "Am", Start: 1.5, End: 3.02}},
		},
		{name: "empty array", in: `[]`, want: Document{}},
		{name: "error object", in: `{"error":"boom"}`, wantErr: true},
		{name: "null", in: `null`, wantErr: true},
		{name: "missing chord", in: `[{"start":0,"end":1}]`, wantErr: true},
		{name: "end before start", in: `[{"chord":"G","start":2,"end":1}]`, wantErr: true},
		{name: "negative start", in: `[{"chord":"G","start":-1,"end":1}]`, wantErr: true},
		{name: "wrong type", in: `[{"chord":"G","start":"0","end":1}]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			if tt.wantErr {
				require.ErrorIs(t, err, faults.ErrOutputMalformed)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDocumentHelpers(t *testing.T) {
	d := Document{{"C", 0, 1}, {"G", 1, 2}, {"C", 2, 3.5}}
	require.InDelta(t, 3.5, d.Duration(), 1e-9)
	require.Equal(t, []string{"C", "G"}, d.Distinct())
	require.Zero(t, Document{}.Duration())
}

func TestExtract_RunsScript(t *testing.T) {
	c, got := newFakeClient(t, `[{"chord":"D","start":0,"end":0.5}]`, 0)

	doc, err := c.Extract(context.Background(), "/staging/run/input/song.mp3")
	require.NoError(t, err)
	require.Equal(t, Document{{Chord: "D", Start: 0, End: 0.5}}, doc)
	require.Equal(t, []string{"/opt/sonicstream/chord_extractor.py", "/staging/run/input/song.mp3"}, got.Args)
}

func TestExtract_NonJSON(t *testing.T) {
	c, _ := newFakeClient(t, "Traceback (most recent call last):", 0)

	_, err := c.Extract(context.Background(), "/in/song.mp3")
	require.ErrorIs(t, err, faults.ErrOutputMalformed)
}

func TestExtract_ToolFailure(t *testing.T) {
	c, _ := newFakeClient(t, "", 1)

	_, err := c.Extract(context.Background(), "/in/song.mp3")
	require.ErrorIs(t, err, faults.ErrToolFailed)
}

func TestExtract_RequiresScript(t *testing.T) {
	c, _ := newFakeClient(t, "[]", 0)
	c.Script = ""

	_, err := c.Extract(context.Background(), "/in/song.mp3")
	require.Error(t, err)
}
