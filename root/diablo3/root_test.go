package diablo3_test

import (
	"crypto/md5"
	"testing"

	"github.com/brecky/casc/common"
	"github.com/brecky/casc/internal/fixture"
	"github.com/brecky/casc/root/diablo3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoot(t *testing.T) {
	base := fixture.Diablo3Directory{Name: "Base", Files: []fixture.Diablo3File{
		{Name: `Sound\Music.ogg`, Checksum: common.ContentChecksum{1}},
		{Name: "CoreTOC.dat", Checksum: common.ContentChecksum{2}},
	}}
	manifest := base.Manifest()
	baseKey := common.ContentChecksum(md5.Sum(manifest))
	windows := common.ContentChecksum{9}
	root := fixture.Diablo3Root([]fixture.Diablo3File{
		{Name: "Base", Checksum: baseKey},
		{Name: "Windows", Checksum: windows},
	})

	fetched := map[common.ContentChecksum]int{}
	fetch := func(ckey common.ContentChecksum) ([]byte, error) {
		fetched[ckey]++
		if ckey == baseKey {
			return manifest, nil
		}
		return nil, errors.Wrapf(common.ErrUnavailable, "%s", ckey)
	}
	m, err := diablo3.NewRoot(root, fetch)
	require.NoError(t, err)
	assert.Equal(t, map[common.ContentChecksum]int{baseKey: 1, windows: 1}, fetched)

	require.Len(t, m.Entries, 4)
	names := map[string]common.ContentChecksum{}
	for _, e := range m.Entries {
		names[m.Names[e.NameHash]] = e.Checksum
		assert.Equal(t, common.LocaleAll, e.Locale)
	}
	assert.Equal(t, map[string]common.ContentChecksum{
		"Base":                 baseKey,
		"Windows":              windows,
		"Base/Sound/Music.ogg": {1},
		"Base/CoreTOC.dat":     {2},
	}, names)
	assert.Equal(t, common.FilenameHash(`base\sound\music.ogg`), m.Entries[1].NameHash)
}

func TestNewRootWithoutFetcher(t *testing.T) {
	root := fixture.Diablo3Root([]fixture.Diablo3File{{Name: "Base", Checksum: common.ContentChecksum{1}}})
	m, err := diablo3.NewRoot(root, nil)
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "Base", m.Names[m.Entries[0].NameHash])
}

func TestNewRootErrors(t *testing.T) {
	valid := fixture.Diablo3Root([]fixture.Diablo3File{{Name: "Base", Checksum: common.ContentChecksum{1}}})
	failing := errors.New("disk failure")

	tests := []struct {
		name  string
		root  []byte
		fetch common.ContentFetcher
		want  error
	}{
		{"short", []byte{0xC4, 0xD0}, nil, common.ErrFormat},
		{"signature", []byte{1, 2, 3, 4, 0, 0, 0, 0}, nil, common.ErrFormat},
		{"truncated name", valid[:len(valid)-1], nil, common.ErrFormat},
		{"truncated count", valid[:6], nil, common.ErrFormat},
		{"fetch error", valid, func(common.ContentChecksum) ([]byte, error) { return nil, failing }, failing},
		{"bad directory", valid, func(common.ContentChecksum) ([]byte, error) { return []byte{0, 0, 0, 0, 5, 0, 0, 0}, nil }, common.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := diablo3.NewRoot(tt.root, tt.fetch)
			assert.True(t, errors.Is(err, tt.want), "%+v", err)
		})
	}
}
