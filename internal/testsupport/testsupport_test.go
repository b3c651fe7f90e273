package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"thirdcoast.systems/sonicstream/internal/asset"
	"thirdcoast.systems/sonicstream/internal/objectstore"
)

func TestObjects(t *testing.T) {
	ctx := context.Background()
	o := NewObjects()

	src := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(src, []byte("ID3"), 0o600))
	require.NoError(t, o.Put(ctx, "audio/a.mp3", src))
	require.NoError(t, o.PutBytes(ctx, "stems/a/vocals.wav", []byte("RIFF"), "audio/wav"))
	require.NoError(t, o.PutBytes(ctx, "stems/a/drums.wav", []byte("RIFF"), "audio/wav"))

	dst := filepath.Join(t.TempDir(), "x", "a.mp3")
	require.NoError(t, o.Get(ctx, "audio/a.mp3", dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "ID3", string(b))

	n, err := o.DeletePrefix(ctx, "stems/a/")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"audio/a.mp3"}, o.Keys())

	_, err = o.GetBytes(ctx, "audio/missing.mp3")
	require.ErrorIs(t, err, objectstore.ErrNotExist)
	_, err = o.SignedReadURL(ctx, "audio/missing.mp3", 0)
	require.ErrorIs(t, err, objectstore.ErrNotExist)

	require.NoError(t, o.Delete(ctx, "audio/a.mp3"))
	require.NoError(t, o.Delete(ctx, "audio/a.mp3"))
	require.False(t, o.Has("audio/a.mp3"))
}

func TestRecords_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewRecords()

	require.NoError(t, s.Create(ctx, &asset.Record{Name: "a.mp3", Title: "first"}))
	err := s.Create(ctx, &asset.Record{Name: "a.mp3", Title: "second"})
	require.ErrorIs(t, err, asset.ErrExists)

	r, err := s.Get(ctx, "a.mp3")
	require.NoError(t, err)
	require.Equal(t, "first", r.Title)

	yes := true
	r, err = s.Update(ctx, "a.mp3", asset.Patch{HasStems: &yes, Stems: []string{"vocals.wav"}})
	require.NoError(t, err)
	require.True(t, r.HasStems)

	require.NoError(t, s.Delete(ctx, "a.mp3"))
	require.ErrorIs(t, s.Delete(ctx, "a.mp3"), asset.ErrNotFound)
}

func TestGroups_RemoveAssetReference(t *testing.T) {
	ctx := context.Background()
	s := NewGroups()

	g1 := &asset.Group{Name: "one", Files: []string{"a.mp3", "b.mp3", "a.mp3"}}
	g2 := &asset.Group{Name: "two", Files: []string{"b.mp3"}}
	require.NoError(t, s.Create(ctx, g1))
	require.NoError(t, s.Create(ctx, g2))
	require.NotEmpty(t, g1.ID)

	n, err := s.RemoveAssetReference(ctx, "a.mp3")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.Get(ctx, g1.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"b.mp3"}, got.Files)
}
