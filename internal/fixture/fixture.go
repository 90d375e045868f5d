// Package fixture builds CASC storages in memory and on disk for tests.
package fixture

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/brecky/casc/blte"
	"github.com/brecky/casc/common"
	"github.com/stretchr/testify/require"
)

// LocalBlockHeaderSize is the size of the header preceding every block in
// the data.NNN archives of a local install.
const LocalBlockHeaderSize = 30

// Layout selects how blocks are stored in archives.
type Layout int

const (
	// Local archives prefix every block with a 30 byte header.
	Local Layout = iota
	// CDN archives store bare blocks.
	CDN
)

// File describes a file added to a Storage.
type File struct {
	Name string
	Data []byte
	// Locale defaults to common.LocaleAll.
	Locale common.LocaleFlags
	// Blocks is the number of blocks the content is split in, at least one.
	Blocks int
	// Mode defaults to blte.ModeRaw.
	Mode    blte.Mode
	Archive int
	// ReverseBlocks stores the blocks in reverse physical order.
	ReverseBlocks bool
}

// Storage accumulates blocks and the index entries locating them.
type Storage struct {
	Layout   Layout
	Archives map[int][]byte
	Root     []common.RootEntry
	Encoding []common.EncodingEntry
	Data     []common.IndexEntry
	Names    map[uint64]string

	// full 16 byte encoded keys, CDN indices and the encoding manifest
	// store them whole
	keys map[common.FileKey]common.ContentChecksum
}

func NewStorage(layout Layout) *Storage {
	return &Storage{
		Layout:   layout,
		Archives: map[int][]byte{},
		Names:    map[uint64]string{},
		keys:     map[common.FileKey]common.ContentChecksum{},
	}
}

// HeaderSize is the block header size the layout's archives use.
func (s *Storage) HeaderSize() int {
	if s.Layout == Local {
		return LocalBlockHeaderSize
	}
	return 0
}

// EncodedKey returns the 16 byte key a block was stored under.
func (s *Storage) EncodedKey(key common.FileKey) common.ContentChecksum {
	return s.keys[key]
}

// AddBlock appends an encoded block to an archive, registers its data index
// entry and returns its key.
func (s *Storage) AddBlock(archive int, encoded []byte) common.ContentChecksum {
	ekey := common.ContentChecksum(md5.Sum(encoded))
	s.keys[ekey.FileKey()] = ekey
	offset := len(s.Archives[archive])
	var block []byte
	if s.Layout == Local {
		block = LocalBlock(ekey, encoded)
	} else {
		block = encoded
	}
	s.Archives[archive] = append(s.Archives[archive], block...)
	s.Data = append(s.Data, common.IndexEntry{
		Key:     ekey.FileKey(),
		Archive: archive,
		Offset:  int64(offset),
		Size:    uint32(len(block)),
	})
	return ekey
}

// AddFile splits f in blocks, stores them and registers the root and
// encoding entries of the file. It returns the content checksum.
func (s *Storage) AddFile(t testing.TB, f File) common.ContentChecksum {
	t.Helper()
	ckey := common.ContentChecksum(md5.Sum(f.Data))
	locale := f.Locale
	if locale == 0 {
		locale = common.LocaleAll
	}
	hash := common.FilenameHash(f.Name)
	s.Root = append(s.Root, common.RootEntry{NameHash: hash, Checksum: ckey, Locale: locale})
	if _, ok := s.Names[hash]; !ok {
		s.Names[hash] = f.Name
	}
	for _, e := range s.Encoding {
		if e.Checksum == ckey {
			return ckey
		}
	}
	s.Encoding = append(s.Encoding, s.AddContent(t, ckey, f))
	return ckey
}

// AddContent stores the blocks of f and returns the encoding entry listing
// them without registering it.
func (s *Storage) AddContent(t testing.TB, ckey common.ContentChecksum, f File) common.EncodingEntry {
	t.Helper()
	mode := f.Mode
	if mode == 0 {
		mode = blte.ModeRaw
	}
	parts := Split(f.Data, f.Blocks)
	encoded := make([][]byte, len(parts))
	for i, p := range parts {
		encoded[i] = BLTE(t, p, mode, 0)
	}
	keys := make([]common.FileKey, len(parts))
	order := make([]int, len(parts))
	for i := range order {
		order[i] = i
		if f.ReverseBlocks {
			order[i] = len(parts) - 1 - i
		}
	}
	for _, i := range order {
		keys[i] = s.AddBlock(f.Archive, encoded[i]).FileKey()
	}
	return common.EncodingEntry{Checksum: ckey, Size: int64(len(f.Data)), Keys: keys}
}

// Split cuts data in n parts of similar size. n < 1 is treated as 1.
func Split(data []byte, n int) [][]byte {
	if n < 1 {
		n = 1
	}
	parts := make([][]byte, 0, n)
	size := (len(data) + n - 1) / n
	for i := 0; i < n; i++ {
		lo, hi := i*size, (i+1)*size
		if lo > len(data) {
			lo = len(data)
		}
		if hi > len(data) {
			hi = len(data)
		}
		parts = append(parts, data[lo:hi])
	}
	return parts
}

// BLTE encodes data, failing the test on error.
func BLTE(t testing.TB, data []byte, mode blte.Mode, chunkSize int) []byte {
	t.Helper()
	b, err := blte.Encode(data, mode, chunkSize)
	require.NoError(t, err)
	return b
}

// LocalBlock prefixes encoded with the header of a local archive block.
func LocalBlock(ekey common.ContentChecksum, encoded []byte) []byte {
	b := make([]byte, LocalBlockHeaderSize, LocalBlockHeaderSize+len(encoded))
	for i := range ekey {
		b[15-i] = ekey[i]
	}
	binary.LittleEndian.PutUint32(b[16:], uint32(LocalBlockHeaderSize+len(encoded)))
	return append(b, encoded...)
}

// EncodingManifest serialises entries as an "EN" encoding manifest with
// 4 KiB content key pages.
func (s *Storage) EncodingManifest(t testing.TB) []byte {
	t.Helper()
	entries := append([]common.EncodingEntry{}, s.Encoding...)
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Checksum[:], entries[j].Checksum[:]) < 0
	})

	const pageSize = 4 * 1024
	espec := []byte("n\x00")
	var pages [][]byte
	var firstKeys []common.ContentChecksum
	page := []byte{}
	for _, e := range entries {
		rec := []byte{byte(len(e.Keys))}
		size := uint64(e.Size)
		rec = append(rec, byte(size>>32), byte(size>>24), byte(size>>16), byte(size>>8), byte(size))
		rec = append(rec, e.Checksum[:]...)
		for _, k := range e.Keys {
			ekey, ok := s.keys[k]
			require.True(t, ok, "unknown block key %s", k)
			rec = append(rec, ekey[:]...)
		}
		require.LessOrEqual(t, len(rec), pageSize)
		if len(page)+len(rec) > pageSize {
			pages = append(pages, page)
			page = []byte{}
		}
		if len(page) == 0 {
			firstKeys = append(firstKeys, e.Checksum)
		}
		page = append(page, rec...)
	}
	if len(page) > 0 {
		pages = append(pages, page)
	}

	buf := &bytes.Buffer{}
	buf.WriteString("EN")
	buf.Write([]byte{1, common.ContentChecksumSize, common.ContentChecksumSize})
	binary.Write(buf, binary.BigEndian, uint16(pageSize/1024))
	binary.Write(buf, binary.BigEndian, uint16(pageSize/1024))
	binary.Write(buf, binary.BigEndian, uint32(len(pages)))
	binary.Write(buf, binary.BigEndian, uint32(0))
	buf.WriteByte(0)
	binary.Write(buf, binary.BigEndian, uint32(len(espec)))
	buf.Write(espec)
	for i, p := range pages {
		padded := make([]byte, pageSize)
		copy(padded, p)
		pages[i] = padded
		sum := md5.Sum(padded)
		buf.Write(firstKeys[i][:])
		buf.Write(sum[:])
	}
	for _, p := range pages {
		buf.Write(p)
	}
	return buf.Bytes()
}

// TextRoot serialises the root entries as a "name|ckey" root.
func (s *Storage) TextRoot() []byte {
	buf := &bytes.Buffer{}
	for _, e := range s.Root {
		buf.WriteString(s.Names[e.NameHash])
		buf.WriteString("|")
		buf.WriteString(e.Checksum.String())
		if e.Locale != common.LocaleAll {
			buf.WriteString("|" + e.Locale.String())
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// Listfile returns the names of every file added, one per line.
func (s *Storage) Listfile() []byte {
	names := make([]string, 0, len(s.Names))
	for _, n := range s.Names {
		names = append(names, n)
	}
	sort.Strings(names)
	buf := &bytes.Buffer{}
	for _, n := range names {
		buf.WriteString(n + "\n")
	}
	return buf.Bytes()
}
