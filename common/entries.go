package common

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RootEntry associates a filename hash with the checksum of a file's content
// for one locale variant.
type RootEntry struct {
	NameHash   uint64
	Checksum   ContentChecksum
	Locale     LocaleFlags
	Content    ContentFlags
	FileDataID uint32
}

// EncodingEntry lists the blocks making up a file's content, in the order
// they must be concatenated.
type EncodingEntry struct {
	Checksum ContentChecksum
	Size     int64
	Keys     []FileKey
}

// MultiBlock reports whether the content is split over several blocks.
func (e EncodingEntry) MultiBlock() bool {
	return len(e.Keys) > 1
}

// IndexEntry locates a stored block inside an archive.
type IndexEntry struct {
	Key     FileKey
	Archive int
	Offset  int64
	Size    uint32
}

// LocaleFlags selects regional variants of a file.
type LocaleFlags uint32

// https://wowdev.wiki/TACT#Root
const (
	LocaleEnUS LocaleFlags = 0x2
	LocaleKoKR LocaleFlags = 0x4
	LocaleFrFR LocaleFlags = 0x10
	LocaleDeDE LocaleFlags = 0x20
	LocaleZhCN LocaleFlags = 0x40
	LocaleEsES LocaleFlags = 0x80
	LocaleZhTW LocaleFlags = 0x100
	LocaleEnGB LocaleFlags = 0x200
	LocaleEnCN LocaleFlags = 0x400
	LocaleEnTW LocaleFlags = 0x800
	LocaleEsMX LocaleFlags = 0x1000
	LocaleRuRU LocaleFlags = 0x2000
	LocalePtBR LocaleFlags = 0x4000
	LocaleItIT LocaleFlags = 0x8000
	LocalePtPT LocaleFlags = 0x10000
	LocaleAll  LocaleFlags = 0xFFFFFFFF
)

var localeNames = []struct {
	flag LocaleFlags
	name string
}{
	{LocaleEnUS, "enUS"},
	{LocaleKoKR, "koKR"},
	{LocaleFrFR, "frFR"},
	{LocaleDeDE, "deDE"},
	{LocaleZhCN, "zhCN"},
	{LocaleEsES, "esES"},
	{LocaleZhTW, "zhTW"},
	{LocaleEnGB, "enGB"},
	{LocaleEnCN, "enCN"},
	{LocaleEnTW, "enTW"},
	{LocaleEsMX, "esMX"},
	{LocaleRuRU, "ruRU"},
	{LocalePtBR, "ptBR"},
	{LocaleItIT, "itIT"},
	{LocalePtPT, "ptPT"},
}

// Has reports whether l and other share at least one locale.
func (l LocaleFlags) Has(other LocaleFlags) bool {
	return l&other != 0
}

func (l LocaleFlags) String() string {
	if l == LocaleAll {
		return "all"
	}
	var names []string
	for _, n := range localeNames {
		if l&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("0x%x", uint32(l))
	}
	return strings.Join(names, "|")
}

// ParseLocale parses a locale name such as "enUS". "all" and the empty
// string select every locale.
func ParseLocale(name string) (LocaleFlags, error) {
	if name == "" || strings.EqualFold(name, "all") {
		return LocaleAll, nil
	}
	for _, n := range localeNames {
		if strings.EqualFold(n.name, name) {
			return n.flag, nil
		}
	}
	return 0, errors.Errorf("unknown locale %q", name)
}

// ContentFlags are the secondary root block flags.
type ContentFlags uint32

const (
	ContentLoadOnWindows ContentFlags = 0x8
	ContentLoadOnMacOS   ContentFlags = 0x10
	ContentLowViolence   ContentFlags = 0x80
	ContentDoNotLoad     ContentFlags = 0x100
	ContentUpdatePlugin  ContentFlags = 0x800
	ContentEncrypted     ContentFlags = 0x8000000
	ContentNoNameHash    ContentFlags = 0x10000000
	ContentUncommonRes   ContentFlags = 0x20000000
	ContentBundle        ContentFlags = 0x40000000
	ContentNoCompression ContentFlags = 0x80000000
)

// RootManifest is the decoded content of a root manifest. Names maps the
// hashes of the paths a text manifest spells out, binary manifests leave it
// empty.
type RootManifest struct {
	Entries []RootEntry
	Names   map[uint64]string
}

// ContentFetcher reads the decoded content of a checksum. Root manifests
// split over several files use it to read the parts.
type ContentFetcher func(ckey ContentChecksum) ([]byte, error)
