package derive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/namelock"
	"thirdcoast.systems/sonicstream/internal/staging"
	"thirdcoast.systems/sonicstream/internal/testsupport"
	"thirdcoast.systems/sonicstream/internal/toolexec"
	"thirdcoast.systems/sonicstream/pkg/chords"
	"thirdcoast.systems/sonicstream/pkg/ffmpeg"
	"thirdcoast.systems/sonicstream/pkg/spleeter"
	"thirdcoast.systems/sonicstream/pkg/ytdlp"
)

type fakeFetcher struct {
	mu          sync.Mutex
	title       string
	thumbExt    string
	infoErr     error
	downloadErr error
	calls       int
}

func (f *fakeFetcher) GetInfo(ctx context.Context, url string) (*ytdlp.Info, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &ytdlp.Info{ID: "abc", Title: f.title, Thumbnail: "https://i.example.com/t.jpg", Duration: 61.5, Uploader: "someone", WebpageURL: url}, nil
}

func (f *fakeFetcher) DownloadAudio(ctx context.Context, url, destDir string) (*ytdlp.Download, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	audio := filepath.Join(destDir, ytdlp.SourceBase+".mp3")
	if err := os.WriteFile(audio, []byte("ID3 audio"), 0o600); err != nil {
		return nil, err
	}
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	dl := &ytdlp.Download{AudioPath: audio}
	if f.thumbExt != "" {
		thumb := filepath.Join(destDir, ytdlp.SourceBase+f.thumbExt)
		if err := os.WriteFile(thumb, []byte("image"), 0o600); err != nil {
			return nil, err
		}
		dl.ThumbnailPath = thumb
	}
	return dl, nil
}

type fakeSeparator struct {
	stems []string
	err   error
	model string
}

func (f *fakeSeparator) Separate(ctx context.Context, input, outputDir, model string) (*spleeter.Result, error) {
	f.model = model
	if f.err != nil {
		return nil, f.err
	}
	dir := spleeter.OutputDir(outputDir, input)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	for _, s := range f.stems {
		if err := os.WriteFile(filepath.Join(dir, s), []byte("RIFF"), 0o600); err != nil {
			return nil, err
		}
	}
	return &spleeter.Result{Dir: dir, Stems: f.stems}, nil
}

type fakeTranscoder struct {
	args         []string
	runErr       error
	extraFile    bool
	audioStreams int
}

func (f *fakeTranscoder) Run(ctx context.Context, cmd *ffmpeg.Command) (*toolexec.Result, error) {
	f.args = cmd.Build()
	if f.runErr != nil {
		return nil, f.runErr
	}
	if err := os.WriteFile(cmd.Output(), []byte("ID3 shifted"), 0o600); err != nil {
		return nil, err
	}
	if f.extraFile {
		if err := os.WriteFile(filepath.Join(filepath.Dir(cmd.Output()), "extra.wav"), []byte("x"), 0o600); err != nil {
			return nil, err
		}
	}
	return &toolexec.Result{Tool: "ffmpeg"}, nil
}

func (f *fakeTranscoder) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	n := f.audioStreams
	if n == 0 {
		n = 1
	}
	return &ffmpeg.ProbeResult{AudioStreams: n, Duration: 61.5}, nil
}

type fakeChords struct {
	doc chords.Document
	err error
}

func (f *fakeChords) Extract(ctx context.Context, input string) (chords.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type harness struct {
	p           *Pipeline
	objects     *testsupport.Objects
	records     *testsupport.Records
	groups      *testsupport.Groups
	locks       *namelock.Local
	fetcher     *fakeFetcher
	separator   *fakeSeparator
	transcoder  *fakeTranscoder
	chords      *fakeChords
	stagingRoot string

	mu   sync.Mutex
	runs []*Run
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		objects:     testsupport.NewObjects(),
		records:     testsupport.NewRecords(),
		groups:      testsupport.NewGroups(),
		locks:       namelock.NewLocal(),
		fetcher:     &fakeFetcher{title: "My Song!!", thumbExt: ".jpg"},
		separator:   &fakeSeparator{stems: []string{"bass.wav", "drums.wav", "vocals.wav"}},
		transcoder:  &fakeTranscoder{},
		chords:      &fakeChords{doc: chords.Document{{Chord: "C", Start: 0, End: 1.5}, {Chord: "Am", Start: 1.5, End: 3}}},
		stagingRoot: t.TempDir(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := staging.NewManager(h.stagingRoot, logger)
	require.NoError(t, err)

	h.p, err = New(Dependencies{
		Objects:    h.objects,
		Records:    h.records,
		Groups:     h.groups,
		Locks:      h.locks,
		Staging:    mgr,
		Fetcher:    h.fetcher,
		Separator:  h.separator,
		Transcoder: h.transcoder,
		Chords:     h.chords,
		Logger:     logger,
	}, Options{
		RetryBaseDelay: time.Millisecond,
		Now:            func() time.Time { return time.UnixMilli(1_700_000_000_000) },
		OnRun: func(r *Run) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.runs = append(h.runs, r)
		},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) lastRun(t *testing.T) *Run {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.runs)
	return h.runs[len(h.runs)-1]
}

func (h *harness) runCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}

// seed publishes an asset the way Ingest would.
func (h *harness) seed(t *testing.T, rec *asset.Record) {
	t.Helper()
	if rec.Path == "" {
		rec.Path = asset.AudioKey(rec.Name)
	}
	if rec.Stems == nil {
		rec.Stems = []string{}
	}
	require.NoError(t, h.records.Create(context.Background(), rec))
	h.objects.Seed(asset.AudioKey(rec.Name), []byte("ID3 audio"))
	if rec.ImageURL != "" {
		h.objects.Seed(asset.ThumbnailKey(rec.ImageURL), []byte("image"))
	}
}

// requireStagingEmpty asserts no run directory survived.
func (h *harness) requireStagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.stagingRoot)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// requireUnlocked asserts nothing still holds name's lock.
func (h *harness) requireUnlocked(t *testing.T, name string) {
	t.Helper()
	release, ok, err := h.locks.TryLock(context.Background(), name)
	require.NoError(t, err)
	require.True(t, ok, "lock on %s still held", name)
	release()
}
