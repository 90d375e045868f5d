package warcraft3

import (
	"testing"

	"github.com/brecky/casc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoot(t *testing.T) {
	root := "War3.mpq:Units\\HumanUnitFunc.txt|0123456789abcdef0123456789abcdef\r\n" +
		"\n" +
		"enus-war3local.mpq:sound/dialogue.flac|fedcba9876543210fedcba9876543210|enUS\n"

	m, err := NewRoot([]byte(root))
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)

	first := m.Entries[0]
	assert.Equal(t, common.FilenameHash("War3.mpq:Units/HumanUnitFunc.txt"), first.NameHash)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", first.Checksum.String())
	assert.Equal(t, common.LocaleAll, first.Locale)
	assert.Equal(t, "War3.mpq:Units/HumanUnitFunc.txt", m.Names[first.NameHash])

	assert.Equal(t, common.LocaleEnUS, m.Entries[1].Locale)
}

func TestNewRootInvalid(t *testing.T) {
	_, err := NewRoot([]byte("no separator\n"))
	assert.ErrorIs(t, err, common.ErrFormat)

	_, err = NewRoot([]byte("name|nothex\n"))
	assert.ErrorIs(t, err, common.ErrFormat)
}
