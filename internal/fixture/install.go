package fixture

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/brecky/casc/blte"
	"github.com/brecky/casc/common"
	"github.com/stretchr/testify/require"
)

// Install is a storage written to disk.
type Install struct {
	Dir         string
	BuildConfig common.ContentChecksum
	CdnConfig   common.ContentChecksum
	// EncodingKey is the encoded key of the encoding manifest block.
	EncodingKey common.ContentChecksum
}

// finish stores the root and encoding manifests and returns the build
// config content and the encoding manifest key.
func (s *Storage) finish(t testing.TB, product, version string) ([]byte, common.ContentChecksum) {
	t.Helper()
	var root []byte
	switch product {
	case "WoW":
		root = WoWRoot(s.Root)
	case "Diablo3":
		var listed []Diablo3File
		for _, d := range s.Diablo3Directories() {
			manifest := d.Manifest()
			ckey := common.ContentChecksum(md5.Sum(manifest))
			s.Encoding = append(s.Encoding, s.AddContent(t, ckey, File{Data: manifest}))
			listed = append(listed, Diablo3File{Name: d.Name, Checksum: ckey})
		}
		root = Diablo3Root(listed)
	default:
		root = s.TextRoot()
	}
	rootKey := common.ContentChecksum(md5.Sum(root))
	s.Encoding = append(s.Encoding, s.AddContent(t, rootKey, File{Data: root, Mode: blte.ModeZlib}))

	encoding := s.EncodingManifest(t)
	encodingKey := common.ContentChecksum(md5.Sum(encoding))
	encodingEKey := s.AddBlock(0, BLTE(t, encoding, blte.ModeZlib, 4096))
	return BuildConfig(rootKey, encodingKey, encodingEKey, product, version), encodingEKey
}

// WriteInstall writes the storage as a local game install under dir.
func (s *Storage) WriteInstall(t testing.TB, dir, product, version string) Install {
	t.Helper()
	require.Equal(t, Local, s.Layout)
	buildConfig, encodingKey := s.finish(t, product, version)
	in := Install{Dir: dir, BuildConfig: md5.Sum(buildConfig), EncodingKey: encodingKey}

	data := filepath.Join(dir, "Data")
	writeHashFile(t, data, common.PathTypeConfig, in.BuildConfig[:], false, buildConfig)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".build.info"),
		BuildInfo(in.BuildConfig, in.CdnConfig, version, product), 0o644))

	dataDir := filepath.Join(data, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	for n, archive := range s.Archives {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, fmt.Sprintf("data.%03d", n)), archive, 0o644))
	}
	buckets := map[uint8][]common.IndexEntry{}
	for _, e := range s.Data {
		b := Bucket(e.Key)
		buckets[b] = append(buckets[b], e)
	}
	for b, entries := range buckets {
		WriteIdx(t, dir, b, 1, entries)
	}
	return in
}

// WriteIdx writes a local index file of the given bucket and version.
func WriteIdx(t testing.TB, dir string, bucket uint8, version int, entries []common.IndexEntry) {
	t.Helper()
	name := filepath.Join(dir, "Data", "data", fmt.Sprintf("%02x%08x.idx", bucket, version))
	require.NoError(t, os.WriteFile(name, Idx(bucket, entries), 0o644))
}

// WriteMirror writes the storage as a CDN mirror under dir.
func (s *Storage) WriteMirror(t testing.TB, dir, product, version string) Install {
	t.Helper()
	require.Equal(t, CDN, s.Layout)
	buildConfig, encodingKey := s.finish(t, product, version)
	in := Install{Dir: dir, BuildConfig: md5.Sum(buildConfig), EncodingKey: encodingKey}

	byArchive := map[int][]common.IndexEntry{}
	for _, e := range s.Data {
		byArchive[e.Archive] = append(byArchive[e.Archive], e)
	}
	archives := make([]common.ContentChecksum, len(s.Archives))
	for n := range archives {
		archive, ok := s.Archives[n]
		require.True(t, ok, "archive numbers must be contiguous, %d missing", n)
		archives[n] = md5.Sum(archive)
		writeHashFile(t, dir, common.PathTypeData, archives[n][:], false, archive)
		writeHashFile(t, dir, common.PathTypeData, archives[n][:], true, s.ArchiveIndex(byArchive[n]))
	}
	cdnConfig := CdnConfig(archives)
	in.CdnConfig = md5.Sum(cdnConfig)
	writeHashFile(t, dir, common.PathTypeConfig, in.BuildConfig[:], false, buildConfig)
	writeHashFile(t, dir, common.PathTypeConfig, in.CdnConfig[:], false, cdnConfig)
	return in
}

func writeHashFile(t testing.TB, dir, pathType string, hash []byte, index bool, data []byte) {
	t.Helper()
	p, err := common.HashPath(dir, pathType, hash, index)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}
