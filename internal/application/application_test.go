package application

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/config"
	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/toolexec"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		StorageBackend: config.StorageLocal,
		Local: config.LocalConfig{
			DataDir:       filepath.Join(dir, "data"),
			PublicBaseURL: "http://localhost:8080/files/",
			SigningKey:    "0123456789abcdef0123456789abcdef",
		},
		Staging: config.StagingConfig{StagingDir: filepath.Join(dir, "staging"), StagingMaxAge: time.Hour},
		Tools: config.ToolsConfig{
			SearchPath:       dir,
			Timeout:          time.Minute,
			OutputLimitBytes: 1 << 20,
			YtdlpPath:        "yt-dlp",
			FFmpegPath:       "ffmpeg",
			FFprobePath:      "ffprobe",
			SpleeterPath:     "spleeter",
			PythonPath:       "python3",
		},
		Naming:            config.NamingConfig{NamingStyle: "counter", NamingMaxAttempts: 10},
		Retry:             config.RetryConfig{RetryAttempts: 1, RetryBaseDelay: time.Millisecond},
		Log:               config.LogConfig{LogLevel: "info", LogFormat: "text"},
		SignedURLTTL:      time.Minute,
		UploadConcurrency: 2,
	}
}

func TestNew_LocalBackend(t *testing.T) {
	cfg := localConfig(t)

	app, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })

	require.NotNil(t, app.Pipeline)
	require.NotNil(t, app.Staging)
	require.DirExists(t, filepath.Join(cfg.Local.DataDir, localLocksDir))
	require.FileExists(t, filepath.Join(cfg.Local.DataDir, localDBFile))

	records, err := app.Pipeline.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)

	_, err = app.Pipeline.StreamURL(context.Background(), "missing.mp3")
	require.ErrorIs(t, err, faults.ErrAssetNotFound)
}

func TestNew_LocalBackendMissingToolFails(t *testing.T) {
	cfg := localConfig(t)

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	// The search path is an empty temp dir, so yt-dlp cannot resolve.
	_, err = app.Pipeline.Inspect(context.Background(), "https://www.youtube.com/watch?v=abc123")
	require.ErrorIs(t, err, faults.ErrToolFailed)
}

func TestNew_RedisLocks(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := localConfig(t)
	cfg.LockBackend = config.LockRedis
	cfg.Redis = config.RedisConfig{Addr: mr.Addr(), LockPrefix: "test:", LockTTL: time.Minute}

	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, app.Close())
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := localConfig(t)
	cfg.LockBackend = config.LockRedis
	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1", LockTTL: time.Minute}

	app, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	require.Nil(t, app)
}

func TestNew_UnreadableCookiesFailsCleanly(t *testing.T) {
	cfg := localConfig(t)
	cfg.Tools.YtdlpCookiesFile = filepath.Join(t.TempDir(), "missing-cookies.txt")

	app, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	require.Nil(t, app)
	require.Contains(t, err.Error(), "cookies")

	// The SQLite handle from the failed start was released, so a fresh start
	// on the same data dir works.
	cfg.Tools.YtdlpCookiesFile = ""
	app, err = New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, app.Close())
}

func TestAppClose_ReverseOrder(t *testing.T) {
	var order []string
	app := &App{}
	app.onClose(func() error { order = append(order, "db"); return nil })
	app.onClose(func() error { order = append(order, "redis"); return errors.New("redis: already closed") })

	err := app.Close()
	require.EqualError(t, err, "redis: already closed")
	require.Equal(t, []string{"redis", "db"}, order)

	require.NoError(t, app.Close())
	require.Len(t, order, 2)
}

func TestNew_UnknownStorage(t *testing.T) {
	cfg := localConfig(t)
	cfg.StorageBackend = "tape"

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewToolRunner(t *testing.T) {
	runner := NewToolRunner(config.ToolsConfig{
		SearchPath:       "/opt/tools/bin",
		Home:             "/var/lib/sonicstream",
		Timeout:          time.Minute,
		OutputLimitBytes: 4096,
	}, nil)

	require.Equal(t, time.Minute, runner.DefaultTimeout)
	require.Equal(t, int64(4096), runner.MaxOutput)

	env := runner.Environ(toolexec.Command{Name: "ffmpeg"})
	require.Contains(t, env, "PATH=/opt/tools/bin")
	require.Contains(t, env, "HOME=/var/lib/sonicstream")
}

func TestReadCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte("# Netscape HTTP Cookie File\n"), 0o600))

	got, err := readCookies(path)
	require.NoError(t, err)
	require.Contains(t, got, "Netscape")

	_, err = readCookies(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNewLogger_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := NewLogger(&buf, config.LogConfig{LogLevel: "warn", LogFormat: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
}
