package casc

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brecky/casc/blte"
	"github.com/brecky/casc/common"
	"github.com/brecky/casc/internal/fixture"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installFiles() []fixture.File {
	return []fixture.File{
		{Name: "units/human/footman.mdx", Data: bytes.Repeat([]byte("MDLX"), 300), Mode: blte.ModeZlib, Blocks: 3},
		{Name: "sound/music/mainscreen.mp3", Data: []byte("ID3 music"), Mode: blte.ModeLZ4, Archive: 1},
		{Name: "scripts/common.j", Data: []byte("native GetUnitX takes unit whichUnit returns real"), ReverseBlocks: true, Blocks: 2},
	}
}

func TestLocalExplorer(t *testing.T) {
	for _, product := range []string{"War3", "WoW", "Hero"} {
		t.Run(product, func(t *testing.T) {
			s := fixture.NewStorage(fixture.Local)
			files := installFiles()
			for _, f := range files {
				s.AddFile(t, f)
			}
			dir := t.TempDir()
			s.WriteInstall(t, dir, product, "1.2.3.4567")

			// an older generation of every bucket points to stale locations
			stale := map[uint8][]common.IndexEntry{}
			for _, e := range s.Data {
				e.Offset += 7
				stale[fixture.Bucket(e.Key)] = append(stale[fixture.Bucket(e.Key)], e)
			}
			for b, entries := range stale {
				fixture.WriteIdx(t, dir, b, 0, entries)
			}

			var opts []Option
			if product == "WoW" {
				listfile := filepath.Join(t.TempDir(), "listfile.txt")
				require.NoError(t, os.WriteFile(listfile, s.Listfile(), 0o644))
				opts = append(opts, WithListfile(listfile))
			}
			e, err := NewLocalExplorer(context.Background(), dir, opts...)
			require.NoError(t, err)
			defer e.Close()

			assert.Equal(t, product, e.App())
			assert.Equal(t, "1.2.3.4567", e.Version())
			assert.Equal(t, []string{"scripts/common.j", "sound/music/mainscreen.mp3", "units/human/footman.mdx"}, e.Files())
			for _, f := range files {
				b, err := e.Extract(f.Name)
				require.NoError(t, err, f.Name)
				assert.Equal(t, f.Data, b, f.Name)
			}
			h, err := e.Header(Name("units/human/footman.mdx"))
			require.NoError(t, err)
			assert.Equal(t, []byte("MDLX"), h.Bytes())
		})
	}
}

func TestLocalExplorerDiablo3(t *testing.T) {
	s := fixture.NewStorage(fixture.Local)
	files := installFiles()
	for _, f := range files {
		s.AddFile(t, f)
	}
	dir := t.TempDir()
	s.WriteInstall(t, dir, "Diablo3", "2.7.6.90000")

	e, err := NewLocalExplorer(context.Background(), dir)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "Diablo3", e.App())
	assert.Equal(t, []string{
		"scripts", "scripts/common.j",
		"sound", "sound/music/mainscreen.mp3",
		"units", "units/human/footman.mdx",
	}, e.Files())
	for _, f := range files {
		b, err := e.Extract(f.Name)
		require.NoError(t, err, f.Name)
		assert.Equal(t, f.Data, b, f.Name)
	}
	manifest, err := e.Extract("units")
	require.NoError(t, err)
	assert.Equal(t, s.Diablo3Directories()[2].Manifest(), manifest)
}

func TestLocalExplorerErrors(t *testing.T) {
	_, err := NewLocalExplorer(context.Background(), t.TempDir())
	assert.Error(t, err)

	// archives removed after install
	s := fixture.NewStorage(fixture.Local)
	s.AddFile(t, fixture.File{Name: "a.txt", Data: []byte("a"), Archive: 2})
	dir := t.TempDir()
	s.WriteInstall(t, dir, "War3", "1.0")
	require.NoError(t, os.Remove(filepath.Join(dir, "Data", "data", "data.002")))
	e, err := NewLocalExplorer(context.Background(), dir)
	require.NoError(t, err)
	defer e.Close()
	_, err = e.Extract("a.txt")
	assert.Equal(t, StageArchive, notFoundStage(t, err))

	// encoding manifest missing from the indices
	s = fixture.NewStorage(fixture.Local)
	s.AddFile(t, fixture.File{Name: "a.txt", Data: []byte("a")})
	dir = t.TempDir()
	s.WriteInstall(t, dir, "War3", "1.0")
	idx, err := filepath.Glob(filepath.Join(dir, "Data", "data", "*.idx"))
	require.NoError(t, err)
	for _, p := range idx {
		require.NoError(t, os.Remove(p))
	}
	_, err = NewLocalExplorer(context.Background(), dir)
	assert.Equal(t, StageIndex, notFoundStage(t, err))
}

func TestLocalExplorerCanceled(t *testing.T) {
	s := fixture.NewStorage(fixture.Local)
	s.AddFile(t, fixture.File{Name: "a.txt", Data: []byte("a")})
	dir := t.TempDir()
	s.WriteInstall(t, dir, "War3", "1.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalExplorer(ctx, dir)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestActiveVersion(t *testing.T) {
	v, err := activeVersion([]common.Version{{Name: "old"}, {Name: "new", Active: true}})
	require.NoError(t, err)
	assert.Equal(t, "new", v.Name)
	_, err = activeVersion([]common.Version{{Name: "old"}})
	assert.Error(t, err)
}
