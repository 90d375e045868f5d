package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashLittle2(t *testing.T) {
	const fourScore = "Four score and seven years ago"
	tests := []struct {
		in     string
		pc, pb uint32
		c, b   uint32
	}{
		{"", 0, 0, 0xdeadbeef, 0xdeadbeef},
		{"", 0, 0xdeadbeef, 0xbd5b7dde, 0xdeadbeef},
		{"", 0xdeadbeef, 0xdeadbeef, 0x9c093ccd, 0xbd5b7dde},
		{fourScore, 0, 0, 0x17770551, 0xce7226e6},
		{fourScore, 0, 1, 0xe3607cae, 0xbd371de4},
		{fourScore, 1, 0, 0xcd628161, 0x6cbea4b3},
	}
	for _, tt := range tests {
		c, b := HashLittle2([]byte(tt.in), tt.pc, tt.pb)
		assert.Equal(t, tt.c, c, "%q pc=%x pb=%x", tt.in, tt.pc, tt.pb)
		assert.Equal(t, tt.b, b, "%q pc=%x pb=%x", tt.in, tt.pc, tt.pb)
	}
}

func TestFilenameHash(t *testing.T) {
	assert.Equal(t, EmptyHash, FilenameHash(""))
	assert.False(t, ValidHash(FilenameHash("")))
	assert.False(t, ValidHash(0))

	h := FilenameHash("Interface/Icons/INV_Misc_QuestionMark.blp")
	assert.True(t, ValidHash(h))
	assert.Equal(t, h, FilenameHash(`INTERFACE\ICONS\INV_MISC_QUESTIONMARK.BLP`))
	assert.Equal(t, h, FilenameHash("interface/icons/inv_misc_questionmark.blp"))
	assert.NotEqual(t, h, FilenameHash("Interface/Icons/INV_Misc_QuestionMark.bl"))

	c, b := HashLittle2([]byte(`A\B.TXT`), 0, 0)
	assert.Equal(t, uint64(c)<<32|uint64(b), FilenameHash("a/b.txt"))

	// primary result in the high half, secondary in the low half
	assert.Equal(t, uint64(0x0d87602a3b4143c9), FilenameHash("Interface/FrameXML/UIParent.lua"))
	assert.Equal(t, uint64(0x19a3c4cbc40e9fa2), FilenameHash(`World\Maps\Azeroth\Azeroth.wdt`))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, `WORLD\MAPS\AZEROTH.WDT`, NormalizePath("world/maps/Azeroth.wdt"))
	assert.Equal(t, `UNITS\?LF.MDX`, NormalizePath("units/élf.mdx"))
	assert.Equal(t, "", NormalizePath(""))
}
