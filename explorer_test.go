package casc

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brecky/casc/blte"
	"github.com/brecky/casc/common"
	"github.com/brecky/casc/internal/fixture"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	BlockSource
	reads atomic.Int64
}

func (c *countingSource) ReadBlock(entry common.IndexEntry) ([]byte, error) {
	c.reads.Add(1)
	return c.BlockSource.ReadBlock(entry)
}

func testSource(s *fixture.Storage) *countingSource {
	return &countingSource{BlockSource: NewArchiveSource(MemoryArchives(s.Archives), s.HeaderSize())}
}

func testIndices(s *fixture.Storage) Indices {
	return Indices{
		Root:     NewRootIndex(s.Root, s.Names),
		Encoding: NewEncodingIndex(s.Encoding),
		Data:     NewDataIndex(s.Data),
	}
}

func testExplorer(t *testing.T, s *fixture.Storage, opts ...Option) *Explorer {
	t.Helper()
	e, err := NewExplorer(testSource(s), testIndices(s), opts...)
	require.NoError(t, err)
	return e
}

func notFoundStage(t *testing.T, err error) Stage {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound), "%+v", err)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	return nf.Stage
}

func TestResolve(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	for _, layout := range []fixture.Layout{fixture.Local, fixture.CDN} {
		for _, mode := range []blte.Mode{blte.ModeRaw, blte.ModeZlib, blte.ModeLZ4, blte.ModeFrame} {
			s := fixture.NewStorage(layout)
			s.AddFile(t, fixture.File{Name: "single.bin", Data: data, Mode: mode})
			s.AddFile(t, fixture.File{Name: "multi.bin", Data: data[:9999], Mode: mode, Blocks: 5, Archive: 1})
			s.AddFile(t, fixture.File{Name: "reversed.bin", Data: data[1:], Mode: mode, Blocks: 3, ReverseBlocks: true})
			e := testExplorer(t, s)

			b, err := e.Extract("single.bin")
			require.NoError(t, err, "%v %v", layout, mode)
			assert.Equal(t, data, b)
			b, err = e.Resolve(Name("MULTI.BIN"))
			require.NoError(t, err, "%v %v", layout, mode)
			assert.Equal(t, data[:9999], b)
			b, err = e.Resolve(Hash(common.FilenameHash("reversed.bin")))
			require.NoError(t, err, "%v %v", layout, mode)
			assert.Equal(t, data[1:], b)
		}
	}
}

func TestResolveIdempotent(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	s.AddFile(t, fixture.File{Name: "a.txt", Data: []byte("hello world"), Mode: blte.ModeZlib, Blocks: 2})
	e := testExplorer(t, s)

	first, err := e.Resolve(Name("a.txt"))
	require.NoError(t, err)
	second, err := e.Resolve(Name("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	r, err := e.Open(Name("a.txt"))
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), b)
}

func TestNotFoundStages(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	s.AddFile(t, fixture.File{Name: "ok.txt", Data: []byte("ok")})

	// root entry without an encoding entry
	orphan := common.FilenameHash("orphan.txt")
	s.Root = append(s.Root, common.RootEntry{NameHash: orphan, Checksum: common.ContentChecksum{9}, Locale: common.LocaleAll})

	// encoding entry whose block is not indexed
	unindexed := s.AddFile(t, fixture.File{Name: "unindexed.txt", Data: []byte("nowhere")})
	var entry common.EncodingEntry
	for _, e := range s.Encoding {
		if e.Checksum == unindexed {
			entry = e
		}
	}

	// indexed block in an archive that does not exist
	s.AddFile(t, fixture.File{Name: "lost.txt", Data: []byte("lost"), Archive: 5})
	delete(s.Archives, 5)

	var data []common.IndexEntry
	for _, ie := range s.Data {
		if ie.Key != entry.Keys[0] {
			data = append(data, ie)
		}
	}

	indices := testIndices(s)
	indices.Data = NewDataIndex(data)
	e, err := NewExplorer(testSource(s), indices)
	require.NoError(t, err)

	_, err = e.Resolve(Name("missing.txt"))
	assert.Equal(t, StageRoot, notFoundStage(t, err))
	assert.False(t, IsFormatError(err))

	_, err = e.Resolve(Hash(orphan))
	assert.Equal(t, StageEncoding, notFoundStage(t, err))
	assert.False(t, e.IsFileAvailable(Hash(orphan)))

	_, err = e.Resolve(Name("unindexed.txt"))
	assert.Equal(t, StageIndex, notFoundStage(t, err))
	assert.False(t, e.IsFileAvailable(Name("unindexed.txt")))

	_, err = e.Resolve(Name("lost.txt"))
	assert.Equal(t, StageArchive, notFoundStage(t, err))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	// the chain itself is complete, only the archive is missing
	assert.True(t, e.IsFileAvailable(Name("lost.txt")))

	assert.True(t, e.IsFileAvailable(Name("ok.txt")))
	assert.False(t, e.IsFileAvailable(Name("missing.txt")))
}

func TestEncodingShortCircuit(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	orphan := common.FilenameHash("orphan.txt")
	s.Root = append(s.Root, common.RootEntry{NameHash: orphan, Checksum: common.ContentChecksum{9}, Locale: common.LocaleAll})
	src := testSource(s)
	e, err := NewExplorer(src, testIndices(s))
	require.NoError(t, err)

	_, err = e.Resolve(Hash(orphan))
	assert.Equal(t, StageEncoding, notFoundStage(t, err))
	_, err = e.Header(Hash(orphan))
	assert.Equal(t, StageEncoding, notFoundStage(t, err))
	assert.Zero(t, src.reads.Load())
}

func TestInvalidHash(t *testing.T) {
	e := testExplorer(t, fixture.NewStorage(fixture.CDN))
	for _, ref := range []Ref{Hash(0), Hash(common.EmptyHash), Name("")} {
		_, err := e.Resolve(ref)
		assert.True(t, errors.Is(err, ErrInvalidHash), "%v", ref)
		assert.Equal(t, StageRoot, notFoundStage(t, err))
		assert.False(t, e.IsFileAvailable(ref))
	}
}

func TestIntegrity(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	data := []byte("the quick brown fox jumps over the lazy dog")

	multi := s.AddContent(t, common.ContentChecksum{1}, fixture.File{Data: data, Blocks: 3})
	multi.Size++
	single := s.AddContent(t, common.ContentChecksum{2}, fixture.File{Data: data})
	single.Size--
	huge := s.AddContent(t, common.ContentChecksum{3}, fixture.File{Data: data, Blocks: 2})
	huge.Size = 1<<40 - 1
	s.Encoding = append(s.Encoding, multi, single, huge)
	s.Root = append(s.Root,
		common.RootEntry{NameHash: common.FilenameHash("multi"), Checksum: multi.Checksum, Locale: common.LocaleAll},
		common.RootEntry{NameHash: common.FilenameHash("single"), Checksum: single.Checksum, Locale: common.LocaleAll},
		common.RootEntry{NameHash: common.FilenameHash("huge"), Checksum: huge.Checksum, Locale: common.LocaleAll})
	e := testExplorer(t, s)

	_, err := e.Resolve(Name("huge"))
	assert.True(t, errors.Is(err, ErrIntegrity), "%+v", err)

	_, err = e.Resolve(Name("multi"))
	assert.True(t, errors.Is(err, ErrIntegrity), "%+v", err)
	assert.True(t, IsFormatError(err))
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = e.Resolve(Name("single"))
	assert.True(t, errors.Is(err, blte.ErrSizeMismatch), "%+v", err)
	assert.True(t, IsFormatError(err))
}

func TestLocaleSelection(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	s.AddFile(t, fixture.File{Name: "speech.ogg", Data: []byte("hello"), Locale: common.LocaleEnUS})
	s.AddFile(t, fixture.File{Name: "speech.ogg", Data: []byte("bonjour"), Locale: common.LocaleFrFR})

	b, err := testExplorer(t, s).Extract("speech.ogg")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	b, err = testExplorer(t, s, WithLocale(common.LocaleFrFR)).Extract("speech.ogg")
	require.NoError(t, err)
	assert.Equal(t, []byte("bonjour"), b)

	b, err = testExplorer(t, s, WithLocale(common.LocaleDeDE)).Extract("speech.ogg")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)
}

func TestHeader(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	s.AddFile(t, fixture.File{Name: "model.m2", Data: []byte("MD21 model data"), Mode: blte.ModeZlib})
	s.AddFile(t, fixture.File{Name: "split.blp", Data: []byte("BLP2 texture"), Blocks: 6, Mode: blte.ModeLZ4})
	s.AddFile(t, fixture.File{Name: "tiny", Data: []byte("ab")})
	src := testSource(s)
	e, err := NewExplorer(src, testIndices(s))
	require.NoError(t, err)

	h, err := e.Header(Name("model.m2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("MD21"), h.Bytes())
	assert.Equal(t, "4d443231", h.String())

	h, err = e.Header(Name("split.blp"))
	require.NoError(t, err)
	assert.Equal(t, []byte("BLP2"), h.Bytes())
	// two bytes per block, the remaining blocks are not read
	assert.Equal(t, int64(3), src.reads.Load())

	h, err = e.Header(Name("tiny"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), h.Bytes())

	reads := src.reads.Load()
	h, err = e.Header(Name("model.m2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("MD21"), h.Bytes())
	assert.Equal(t, reads, src.reads.Load())
}

func TestHeaderConcurrent(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	s.AddFile(t, fixture.File{Name: "shared.bin", Data: []byte("WAVE shared"), Mode: blte.ModeZlib})
	src := testSource(s)
	e, err := NewExplorer(src, testIndices(s))
	require.NoError(t, err)

	var wg sync.WaitGroup
	headers := make([]FileHeader, 32)
	errs := make([]error, len(headers))
	for i := range headers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			headers[i], errs[i] = e.Header(Name("shared.bin"))
		}()
	}
	wg.Wait()
	for i := range headers {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("WAVE"), headers[i].Bytes())
	}
	assert.Equal(t, int64(1), src.reads.Load())
}

func TestFiles(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	s.AddFile(t, fixture.File{Name: "b/second.txt", Data: []byte("second")})
	s.AddFile(t, fixture.File{Name: "a/first.txt", Data: []byte("first")})
	e := testExplorer(t, s)

	assert.Equal(t, []string{"a/first.txt", "b/second.txt"}, e.Files())
	f, err := e.File(Hash(common.FilenameHash("a/first.txt")))
	require.NoError(t, err)
	assert.Equal(t, "a/first.txt", f.Name)
	assert.Equal(t, []byte("firs"), f.Header.Bytes())

	r, err := e.FileReader(f)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), b)

	assert.Len(t, e.RootEntries(), 2)
	assert.Len(t, e.EncodingEntries(), 2)
	assert.Len(t, e.IndexEntries(), 2)
}

func TestListfile(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	s.AddFile(t, fixture.File{Name: "interface/icon.blp", Data: []byte("BLP2")})
	s.AddFile(t, fixture.File{Name: "world/map.wdt", Data: []byte("MVER")})
	listfile := filepath.Join(t.TempDir(), "listfile.csv")
	require.NoError(t, os.WriteFile(listfile, append(s.Listfile(), "1234;not/stored.txt\n"...), 0o644))

	// binary roots carry no names
	indices := testIndices(s)
	indices.Root = NewRootIndex(s.Root, nil)
	e, err := NewExplorer(testSource(s), indices)
	require.NoError(t, err)
	assert.Empty(t, e.Files())
	f, err := e.File(Hash(common.FilenameHash("world/map.wdt")))
	require.NoError(t, err)
	assert.Empty(t, f.Name)
	f, err = e.File(Name("World/Map.wdt"))
	require.NoError(t, err)
	assert.Equal(t, "World/Map.wdt", f.Name)

	e, err = NewExplorer(testSource(s), indices, WithListfile(listfile))
	require.NoError(t, err)
	assert.Equal(t, []string{"interface/icon.blp", "world/map.wdt"}, e.Files())
	f, err = e.File(Hash(common.FilenameHash("world/map.wdt")))
	require.NoError(t, err)
	assert.Equal(t, "world/map.wdt", f.Name)

	_, err = NewExplorer(testSource(s), indices, WithListfile(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}

func TestBlockReader(t *testing.T) {
	s := fixture.NewStorage(fixture.Local)
	data := bytes.Repeat([]byte("block"), 500)
	ckey := s.AddFile(t, fixture.File{Name: "f", Data: data, Mode: blte.ModeZlib})
	e := testExplorer(t, s)

	entry, ok := e.indices.Encoding.Lookup(ckey)
	require.True(t, ok)
	ie, ok := e.indices.Data.Lookup(entry.Keys[0])
	require.True(t, ok)
	r, err := e.BlockReader(ie)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, b)
}

func TestNewExplorerNilSource(t *testing.T) {
	_, err := NewExplorer(nil, Indices{})
	assert.Error(t, err)

	e, err := NewExplorer(emptySource{}, Indices{})
	require.NoError(t, err)
	assert.Empty(t, e.Files())
	assert.NoError(t, e.Close())
}

type emptySource struct{}

func (emptySource) ReadBlock(common.IndexEntry) ([]byte, error) {
	return nil, nil
}
