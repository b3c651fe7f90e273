package localdb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/asset"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "sonicstream.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonicstream.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRecords_CRUD(t *testing.T) {
	ctx := context.Background()
	records := openStore(t).Records()

	semis := 2.0
	rec := &asset.Record{
		Name:           "My_Song_pitch+2.mp3",
		Path:           "audio/My_Song_pitch+2.mp3",
		ImageURL:       "My_Song.jpg",
		DerivedFrom:    "My_Song.mp3",
		PitchSemitones: &semis,
	}
	require.NoError(t, records.Create(ctx, rec))
	require.False(t, rec.CreatedAt.IsZero())

	got, err := records.Get(ctx, rec.Name)
	require.NoError(t, err)
	require.Equal(t, "audio/My_Song_pitch+2.mp3", got.Path)
	require.Equal(t, "My_Song.jpg", got.ImageURL)
	require.Equal(t, []string{}, got.Stems)
	require.NotNil(t, got.PitchSemitones)
	require.InDelta(t, 2.0, *got.PitchSemitones, 1e-9)
	require.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)

	ok, err := records.Exists(ctx, rec.Name)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = records.Exists(ctx, "missing.mp3")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = records.Get(ctx, "missing.mp3")
	require.ErrorIs(t, err, asset.ErrNotFound)

	require.NoError(t, records.Delete(ctx, rec.Name))
	require.ErrorIs(t, records.Delete(ctx, rec.Name), asset.ErrNotFound)
}

func TestRecords_CreateNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	records := openStore(t).Records()

	require.NoError(t, records.Create(ctx, &asset.Record{Name: "x.mp3", Path: "audio/x.mp3", Title: "first"}))
	err := records.Create(ctx, &asset.Record{Name: "x.mp3", Path: "audio/other.mp3", Title: "second"})
	require.ErrorIs(t, err, asset.ErrExists)

	got, err := records.Get(ctx, "x.mp3")
	require.NoError(t, err)
	require.Equal(t, "first", got.Title)
}

func TestRecords_ConcurrentCreateExactlyOnce(t *testing.T) {
	ctx := context.Background()
	records := openStore(t).Records()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- records.Create(ctx, &asset.Record{Name: "race.mp3", Path: "audio/race.mp3"})
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, asset.ErrExists)
	}
	require.Equal(t, 1, created)
}

func TestRecords_UpdateMergesAndSetReplaces(t *testing.T) {
	ctx := context.Background()
	records := openStore(t).Records()

	require.NoError(t, records.Create(ctx, &asset.Record{Name: "x.mp3", Path: "audio/x.mp3", ImageURL: "x.jpg"}))

	hasStems := true
	folder := "x"
	got, err := records.Update(ctx, "x.mp3", asset.Patch{HasStems: &hasStems, StemFolder: &folder, Stems: []string{"vocals.wav", "drums.wav"}})
	require.NoError(t, err)
	require.True(t, got.HasStems)
	require.Equal(t, "x.jpg", got.ImageURL)

	got, err = records.Get(ctx, "x.mp3")
	require.NoError(t, err)
	require.True(t, got.HasStems)
	require.Equal(t, "x", got.StemFolder)
	require.Equal(t, []string{"vocals.wav", "drums.wav"}, got.Stems)

	_, err = records.Update(ctx, "none.mp3", asset.Patch{HasStems: &hasStems})
	require.ErrorIs(t, err, asset.ErrNotFound)

	got.Title = "replaced"
	require.NoError(t, records.Set(ctx, got))
	again, err := records.Get(ctx, "x.mp3")
	require.NoError(t, err)
	require.Equal(t, "replaced", again.Title)

	list, err := records.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestGroups_CRUDAndReferenceRemoval(t *testing.T) {
	ctx := context.Background()
	groups := openStore(t).Groups()

	a := &asset.Group{Name: "favorites", Files: []string{"a.mp3", "b.mp3", "a.mp3"}}
	b := &asset.Group{Name: "practice", Files: []string{"b.mp3"}}
	c := &asset.Group{Name: "empty"}
	for _, g := range []*asset.Group{a, b, c} {
		require.NoError(t, groups.Create(ctx, g))
		require.NotEmpty(t, g.ID)
	}
	require.Equal(t, []string{"a.mp3", "b.mp3"}, a.Files)

	n, err := groups.RemoveAssetReference(ctx, "b.mp3")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := groups.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a.mp3"}, got.Files)

	got, err = groups.Get(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, []string{}, got.Files)

	n, err = groups.RemoveAssetReference(ctx, "b.mp3")
	require.NoError(t, err)
	require.Zero(t, n)

	name := "faves"
	got, err = groups.Update(ctx, a.ID, asset.GroupPatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "faves", got.Name)
	require.Equal(t, []string{"a.mp3"}, got.Files)

	list, err := groups.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	require.NoError(t, groups.Delete(ctx, c.ID))
	require.ErrorIs(t, groups.Delete(ctx, c.ID), asset.ErrNotFound)
	_, err = groups.Get(ctx, c.ID)
	require.ErrorIs(t, err, asset.ErrNotFound)
	_, err = groups.Update(ctx, c.ID, asset.GroupPatch{Name: &name})
	require.ErrorIs(t, err, asset.ErrNotFound)
}
