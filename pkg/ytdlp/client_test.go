package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/faults"
	"thirdcoast.systems/sonicstream/internal/toolexec"
)

func TestGetInfo_ParsesJSON(t *testing.T) {
	f := &fakeRun{stdout: `{"id":"abc","title":"hello","webpage_url":"https://example.com","duration":12,"thumbnail":"https://i.example.com/t.jpg","uploader":"someone"}`}
	c := newFakeClient(t, f)

	info, err := c.GetInfo(context.Background(), "https://example.com/watch?v=abc")
	require.NoError(t, err)
	require.Equal(t, "abc", info.ID)
	require.Equal(t, "hello", info.Title)
	require.Equal(t, "https://i.example.com/t.jpg", info.Thumbnail)
	require.Equal(t, "someone", info.Uploader)
	require.InDelta(t, 12.0, info.Duration, 0.001)
	require.NotEmpty(t, info.Raw)

	require.Equal(t, []string{"--dump-single-json", "--skip-download", "--no-playlist", "--no-colors", "--", "https://example.com/watch?v=abc"}, f.got.Args)
}

func TestGetInfo_RejectsPlaylist(t *testing.T) {
	c := newFakeClient(t, &fakeRun{stdout: `{"id":"pl","entries":[{"id":"a"},{"id":"b"}]}`})

	_, err := c.GetInfo(context.Background(), "https://example.com/playlist")
	require.Error(t, err)
	require.Contains(t, err.Error(), "playlist")
}

func TestGetInfo_MalformedOutput(t *testing.T) {
	c := newFakeClient(t, &fakeRun{stdout: "not json"})

	_, err := c.GetInfo(context.Background(), "https://example.com")
	require.ErrorIs(t, err, faults.ErrOutputMalformed)
}

func TestGetInfo_WrapsExecError(t *testing.T) {
	c := newFakeClient(t, &fakeRun{stdout: "out", stderr: "ERROR: unsupported url\n", exit: 1})

	_, err := c.GetInfo(context.Background(), "https://example.com")
	require.Error(t, err)

	var ee *ExecError
	require.True(t, errors.As(err, &ee), "expected ExecError, got %T", err)
	require.Equal(t, 1, ee.ExitCode)
	require.Contains(t, ee.Stderr, "unsupported url")
	require.ErrorIs(t, err, faults.ErrToolFailed)

	var te *toolexec.ToolError
	require.ErrorAs(t, err, &te)
}

func TestGetInfo_RequiresURL(t *testing.T) {
	c := newFakeClient(t, &fakeRun{})
	_, err := c.GetInfo(context.Background(), "  ")
	require.Error(t, err)
}

func TestVersion_TrimsOutput(t *testing.T) {
	c := newFakeClient(t, &fakeRun{stdout: "2025.01.01\n"})

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2025.01.01", v)
}

func TestExec_PrependsExtraArgsAndCookies(t *testing.T) {
	f := &fakeRun{stdout: "1\n"}
	c := newFakeClient(t, f)
	c.ExtraArgs = []string{"--proxy", "socks5://127.0.0.1:9050"}
	c.Cookies = "cookie-data"
	c.Env = []string{"HOME=/var/empty"}

	var cookiesPath string
	f.do = func(p toolexec.Process) {
		for i, a := range p.Args {
			if a == "--cookies" {
				cookiesPath = p.Args[i+1]
				b, err := os.ReadFile(cookiesPath)
				require.NoError(t, err)
				require.Equal(t, "cookie-data", string(b))
			}
		}
	}

	_, err := c.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"--proxy", "socks5://127.0.0.1:9050"}, f.got.Args[:2])
	require.Equal(t, "--version", f.got.Args[len(f.got.Args)-1])
	require.Contains(t, f.got.Env, "HOME=/var/empty")

	require.NotEmpty(t, cookiesPath)
	_, err = os.Stat(cookiesPath)
	require.True(t, os.IsNotExist(err), "cookies file should be removed after the run")
}

func TestDownloadAudio_WritesFixedTemplate(t *testing.T) {
	dest := t.TempDir()
	f := &fakeRun{}
	f.do = func(p toolexec.Process) {
		var tmpl string
		for i, a := range p.Args {
			if a == "-o" {
				tmpl = p.Args[i+1]
			}
		}
		require.Equal(t, filepath.Join(dest, "source.%(ext)s"), tmpl)
		base := strings.TrimSuffix(tmpl, ".%(ext)s")
		require.NoError(t, os.WriteFile(base+".mp3", []byte("ID3"), 0o600))
		require.NoError(t, os.WriteFile(base+".webp", []byte("RIFF"), 0o600))
	}
	c := newFakeClient(t, f)

	dl, err := c.DownloadAudio(context.Background(), "https://youtu.be/abc", dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "source.mp3"), dl.AudioPath)
	require.Equal(t, filepath.Join(dest, "source.webp"), dl.ThumbnailPath)

	require.Contains(t, f.got.Args, "--extract-audio")
	require.Contains(t, f.got.Args, "--write-thumbnail")
	require.Equal(t, "https://youtu.be/abc", f.got.Args[len(f.got.Args)-1])
	require.Equal(t, "--", f.got.Args[len(f.got.Args)-2])
}

func TestDownloadAudio_MissingOutput(t *testing.T) {
	c := newFakeClient(t, &fakeRun{})

	_, err := c.DownloadAudio(context.Background(), "https://youtu.be/abc", t.TempDir())
	require.ErrorIs(t, err, faults.ErrOutputMissing)
}

func TestDownloadAudio_NoThumbnail(t *testing.T) {
	dest := t.TempDir()
	c := newFakeClient(t, &fakeRun{do: func(p toolexec.Process) {
		_ = os.WriteFile(filepath.Join(dest, "source.mp3"), []byte("ID3"), 0o600)
	}})

	dl, err := c.DownloadAudio(context.Background(), "https://youtu.be/abc", dest)
	require.NoError(t, err)
	require.Empty(t, dl.ThumbnailPath)
}
