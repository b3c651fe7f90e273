package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/faults"
)

type cliTestEnv struct {
	dataDir    string
	stagingDir string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	base := t.TempDir()
	env := &cliTestEnv{
		dataDir:    filepath.Join(base, "data"),
		stagingDir: filepath.Join(base, "staging"),
	}
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("DATA_DIR", env.dataDir)
	t.Setenv("STAGING_DIR", env.stagingDir)
	t.Setenv("SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("TOOL_SEARCH_PATH", filepath.Join(base, "bin"))
	t.Setenv("LOG_LEVEL", "error")
	return env
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{faults.BadRequest("test", "bad"), 2},
		{faults.Wrap(faults.ErrAssetNotFound, "test", "get", "", nil), 3},
		{faults.Wrap(faults.ErrNamingExhausted, "test", "reserve", "", nil), 4},
		{fmt.Errorf("ingest: %w", faults.ErrToolFailed), 5},
		{faults.ErrToolTimedOut, 6},
		{faults.ErrOutputMissing, 7},
		{faults.ErrOutputMalformed, 7},
		{faults.ErrNoStemsProduced, 8},
		{faults.ErrPublishFailed, 9},
		{faults.ErrStoreUnavailable, 10},
		{context.Canceled, exitCanceled},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, exitCode(tc.err), "error: %v", tc.err)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{
		{"ingest"}, {"separate"}, {"pitch"}, {"chords"}, {"delete"}, {"list"},
		{"url", "stream"}, {"url", "thumbnail"}, {"url", "stem"},
		{"inspect"}, {"staging", "list"}, {"staging", "clean"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, "path %v", path)
		require.NotNil(t, cmd.RunE, "path %v", path)
	}
}

func TestListEmptyLibrary(t *testing.T) {
	setupCLITestEnv(t)

	out, err := runCLI(t, "list")
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Empty(t, records)
}

func TestStreamURLMissingAsset(t *testing.T) {
	setupCLITestEnv(t)

	_, err := runCLI(t, "url", "stream", "nothing.mp3")
	require.Error(t, err)
	require.Equal(t, 3, exitCode(err))
}

func TestPitchRejectsNonNumericSemitones(t *testing.T) {
	setupCLITestEnv(t)

	_, err := runCLI(t, "pitch", "song.mp3", "up")
	require.Error(t, err)
	require.Equal(t, 2, exitCode(err))
}

func TestPitchAcceptsNegativeSemitones(t *testing.T) {
	setupCLITestEnv(t)

	// The offset reaches the pipeline, which reports the missing source.
	_, err := runCLI(t, "pitch", "song.mp3", "-2")
	require.Error(t, err)
	require.ErrorIs(t, err, faults.ErrAssetNotFound)
	require.Equal(t, 3, exitCode(err))

	_, err = runCLI(t, "pitch", "song.mp3", "-1.5")
	require.ErrorIs(t, err, faults.ErrAssetNotFound)
}

func TestSeparateRejectsUnknownModel(t *testing.T) {
	setupCLITestEnv(t)

	_, err := runCLI(t, "separate", "song.mp3", "--model", "spleeter:9stems")
	require.Error(t, err)
	require.Equal(t, 2, exitCode(err))
}

func TestInspectWithoutYtdlp(t *testing.T) {
	setupCLITestEnv(t)

	_, err := runCLI(t, "inspect", "https://youtu.be/abc123")
	require.Error(t, err)
	require.Equal(t, 5, exitCode(err))
}

func TestMissingSigningKeyFailsConfig(t *testing.T) {
	setupCLITestEnv(t)
	t.Setenv("SIGNING_KEY", "")

	_, err := runCLI(t, "list")
	require.Error(t, err)
	require.Contains(t, err.Error(), "SIGNING_KEY")
}

func TestStagingCleanRemovesOldRuns(t *testing.T) {
	env := setupCLITestEnv(t)

	old := filepath.Join(env.stagingDir, "old-run")
	fresh := filepath.Join(env.stagingDir, "fresh-run")
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	out, err := runCLI(t, "staging", "clean", "--max-age", "1h")
	require.NoError(t, err)
	require.Contains(t, out, "Removed: 1")
	require.NoDirExists(t, old)
	require.DirExists(t, fresh)

	out, err = runCLI(t, "staging", "list")
	require.NoError(t, err)
	require.Contains(t, out, "fresh-run")
}
