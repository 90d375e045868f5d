package wow

import (
	"testing"

	"github.com/brecky/casc/common"
	"github.com/brecky/casc/internal/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []common.RootEntry {
	return []common.RootEntry{
		{NameHash: common.FilenameHash("Interface/Icons/a.blp"), Checksum: common.ContentChecksum{1}, Locale: common.LocaleAll, FileDataID: 10},
		{NameHash: common.FilenameHash("Interface/Icons/b.blp"), Checksum: common.ContentChecksum{2}, Locale: common.LocaleAll, FileDataID: 12},
		{NameHash: common.FilenameHash("Sound/intro.ogg"), Checksum: common.ContentChecksum{3}, Locale: common.LocaleEnUS, Content: common.ContentLoadOnWindows, FileDataID: 100},
		{NameHash: common.FilenameHash("Sound/intro.ogg"), Checksum: common.ContentChecksum{4}, Locale: common.LocaleFrFR, FileDataID: 100},
	}
}

func TestClassicRoot(t *testing.T) {
	entries := testEntries()
	m, err := NewRoot(fixture.WoWRoot(entries))
	require.NoError(t, err)
	assert.Equal(t, entries, m.Entries)
	assert.Empty(t, m.Names)
}

func TestTSFMRoot(t *testing.T) {
	entries := testEntries()
	for _, version := range []int{0, 1, 2} {
		m, err := NewRoot(fixture.WoWRootTSFM(entries, version))
		require.NoError(t, err, "version %d", version)
		assert.Equal(t, entries, m.Entries, "version %d", version)
	}
}

func TestTSFMRootWithoutNames(t *testing.T) {
	entries := testEntries()
	entries[1].Content = common.ContentNoNameHash

	m, err := NewRoot(fixture.WoWRootTSFM(entries, 2))
	require.NoError(t, err)
	require.Len(t, m.Entries, 4)
	assert.Zero(t, m.Entries[1].NameHash)
	assert.Equal(t, common.ContentNoNameHash, m.Entries[1].Content)
	assert.Equal(t, entries[2].NameHash, m.Entries[2].NameHash)
}

func TestTruncatedRoot(t *testing.T) {
	data := fixture.WoWRoot(testEntries())
	_, err := NewRoot(data[:len(data)-5])
	assert.ErrorIs(t, err, common.ErrFormat)

	data = fixture.WoWRootTSFM(testEntries(), 1)
	_, err = NewRoot(data[:len(data)-5])
	assert.ErrorIs(t, err, common.ErrFormat)
}

func TestEmptyRoot(t *testing.T) {
	m, err := NewRoot(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Entries)
}
