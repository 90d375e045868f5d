package common_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/brecky/casc/common"
	"github.com/brecky/casc/internal/fixture"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdx(t *testing.T) {
	entries := []common.IndexEntry{
		{Key: common.FileKey{1, 2, 3, 4, 5, 6, 7, 8, 9}, Archive: 0, Offset: 0, Size: 100},
		{Key: common.FileKey{9, 8, 7, 6, 5, 4, 3, 2, 1}, Archive: 3, Offset: 1<<30 - 1, Size: 0xffffffff},
		{Key: common.FileKey{0xff}, Archive: 1023, Offset: 12345, Size: 30},
	}
	h, got, err := common.ParseIdx(bytes.NewReader(fixture.Idx(5, entries)))
	require.NoError(t, err)
	assert.Equal(t, uint8(5), h.BucketIndex)
	assert.Equal(t, uint16(7), h.Version)
	assert.Equal(t, entries, got)
}

func TestParseIdxErrors(t *testing.T) {
	idx := fixture.Idx(0, []common.IndexEntry{{Key: common.FileKey{1}, Size: 1}})
	_, _, err := common.ParseIdx(bytes.NewReader(idx[:20]))
	assert.Error(t, err)
	_, _, err = common.ParseIdx(bytes.NewReader(idx[:len(idx)-1]))
	assert.Error(t, err)

	bad := append([]byte{}, idx...)
	bad[14] = 4 // key bytes
	_, _, err = common.ParseIdx(bytes.NewReader(bad))
	assert.True(t, errors.Is(err, common.ErrFormat))
}

func encodingStorage(t *testing.T, files int) *fixture.Storage {
	s := fixture.NewStorage(fixture.CDN)
	for i := 0; i < files; i++ {
		s.AddFile(t, fixture.File{
			Name:   fmt.Sprintf("file%04d.txt", i),
			Data:   []byte(fmt.Sprintf("content of file %d", i)),
			Blocks: 1 + i%3,
		})
	}
	return s
}

func TestParseEncoding(t *testing.T) {
	// enough entries to fill several pages
	s := encodingStorage(t, 200)
	entries, err := common.ParseEncoding(bytes.NewReader(s.EncodingManifest(t)))
	require.NoError(t, err)
	require.Len(t, entries, len(s.Encoding))

	want := map[common.ContentChecksum]common.EncodingEntry{}
	for _, e := range s.Encoding {
		want[e.Checksum] = e
	}
	for i, e := range entries {
		if i > 0 {
			assert.Negative(t, bytes.Compare(entries[i-1].Checksum[:], e.Checksum[:]))
		}
		assert.Equal(t, want[e.Checksum], e)
	}
}

func TestParseEncodingErrors(t *testing.T) {
	manifest := encodingStorage(t, 3).EncodingManifest(t)

	bad := append([]byte{}, manifest...)
	bad[0] = 'X'
	_, err := common.ParseEncoding(bytes.NewReader(bad))
	assert.True(t, errors.Is(err, common.ErrFormat))

	bad = append([]byte{}, manifest...)
	bad[len(bad)-1] ^= 0xff // page padding, covered by the page checksum
	_, err = common.ParseEncoding(bytes.NewReader(bad))
	assert.True(t, errors.Is(err, common.ErrFormat))

	_, err = common.ParseEncoding(bytes.NewReader(manifest[:len(manifest)-10]))
	assert.Error(t, err)
}

func TestParseArchiveIndex(t *testing.T) {
	s := fixture.NewStorage(fixture.CDN)
	for i := 0; i < 300; i++ {
		s.AddBlock(2, []byte(fmt.Sprintf("block %d", i)))
	}
	index := s.ArchiveIndex(s.Data)
	got, err := common.ParseArchiveIndex(bytes.NewReader(index), 7)
	require.NoError(t, err)
	require.Len(t, got, len(s.Data))

	want := map[common.FileKey]common.IndexEntry{}
	for _, e := range s.Data {
		e.Archive = 7
		want[e.Key] = e
	}
	for _, e := range got {
		assert.Equal(t, want[e.Key], e)
	}

	empty, err := common.ParseArchiveIndex(bytes.NewReader(s.ArchiveIndex(nil)), 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = common.ParseArchiveIndex(bytes.NewReader(index[:10]), 0)
	assert.True(t, errors.Is(err, common.ErrFormat))

	bad := append([]byte{}, index...)
	bad[len(bad)-28+13] = 3 // size bytes
	_, err = common.ParseArchiveIndex(bytes.NewReader(bad), 0)
	assert.True(t, errors.Is(err, common.ErrFormat))
}
