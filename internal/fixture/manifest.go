package fixture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/brecky/casc/common"
)

// WoWRoot serialises entries in the classic World of Warcraft root layout,
// one block per run of entries sharing their flags.
func WoWRoot(entries []common.RootEntry) []byte {
	buf := &bytes.Buffer{}
	for _, block := range blocks(entries) {
		binary.Write(buf, binary.LittleEndian, uint32(len(block)))
		binary.Write(buf, binary.LittleEndian, uint32(block[0].Content))
		binary.Write(buf, binary.LittleEndian, uint32(block[0].Locale))
		writeDeltas(buf, block)
		for _, e := range block {
			buf.Write(e.Checksum[:])
			binary.Write(buf, binary.LittleEndian, e.NameHash)
		}
	}
	return buf.Bytes()
}

// WoWRootTSFM serialises entries in the "TSFM" root layout. version 0 is
// the 8.2 layout without header size and version fields. Blocks flagged
// with common.ContentNoNameHash omit their name hashes.
func WoWRootTSFM(entries []common.RootEntry, version int) []byte {
	named := 0
	for _, e := range entries {
		if e.Content&common.ContentNoNameHash == 0 {
			named++
		}
	}
	buf := &bytes.Buffer{}
	buf.WriteString("TSFM")
	if version > 0 {
		binary.Write(buf, binary.LittleEndian, []uint32{0x18, uint32(version), uint32(len(entries)), uint32(named), 0})
	} else {
		binary.Write(buf, binary.LittleEndian, []uint32{uint32(len(entries)), uint32(named)})
	}
	for _, block := range blocks(entries) {
		binary.Write(buf, binary.LittleEndian, uint32(len(block)))
		content := uint32(block[0].Content)
		if version < 2 {
			binary.Write(buf, binary.LittleEndian, content)
			binary.Write(buf, binary.LittleEndian, uint32(block[0].Locale))
		} else {
			binary.Write(buf, binary.LittleEndian, uint32(block[0].Locale))
			binary.Write(buf, binary.LittleEndian, content&^(0xff<<17))
			binary.Write(buf, binary.LittleEndian, uint32(0))
			buf.WriteByte(byte(content >> 17))
		}
		writeDeltas(buf, block)
		for _, e := range block {
			buf.Write(e.Checksum[:])
		}
		if block[0].Content&common.ContentNoNameHash == 0 || named == len(entries) {
			for _, e := range block {
				binary.Write(buf, binary.LittleEndian, e.NameHash)
			}
		}
	}
	return buf.Bytes()
}

func blocks(entries []common.RootEntry) [][]common.RootEntry {
	var out [][]common.RootEntry
	for i, e := range entries {
		if i == 0 || e.Locale != entries[i-1].Locale || e.Content != entries[i-1].Content ||
			e.FileDataID <= entries[i-1].FileDataID {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], e)
	}
	return out
}

func writeDeltas(buf *bytes.Buffer, block []common.RootEntry) {
	var next uint32
	for _, e := range block {
		binary.Write(buf, binary.LittleEndian, int32(e.FileDataID-next))
		next = e.FileDataID + 1
	}
}

// Idx serialises entries as a local .idx bucket file with the usual
// 9 byte keys, 5 byte locations split at 30 bits and 4 byte sizes.
func Idx(bucket uint8, entries []common.IndexEntry) []byte {
	const entrySize = 18
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(0x10)) // HeaderHashSize
	binary.Write(buf, binary.LittleEndian, uint32(0))    // HeaderHash
	binary.Write(buf, binary.LittleEndian, uint16(7))    // Version
	buf.Write([]byte{bucket, 0, 4, 5, common.FileKeySize, 30})
	binary.Write(buf, binary.LittleEndian, uint64(1<<30))
	buf.Write(make([]byte, 8))
	binary.Write(buf, binary.LittleEndian, uint32(len(entries)*entrySize))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	for _, e := range entries {
		buf.Write(e.Key[:])
		location := uint64(e.Archive)<<30 | uint64(e.Offset)
		buf.Write([]byte{byte(location >> 32), byte(location >> 24), byte(location >> 16), byte(location >> 8), byte(location)})
		binary.Write(buf, binary.LittleEndian, e.Size)
	}
	return buf.Bytes()
}

// Bucket returns the local index bucket a key belongs to.
func Bucket(key common.FileKey) uint8 {
	var i byte
	for _, b := range key {
		i ^= b
	}
	return (i & 0xf) ^ (i >> 4)
}

// ArchiveIndex serialises entries as the .index file of a CDN archive.
func (s *Storage) ArchiveIndex(entries []common.IndexEntry) []byte {
	const blockSize = 4 * 1024
	const entrySize = common.ContentChecksumSize + 8
	sorted := append([]common.IndexEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key[:], sorted[j].Key[:]) < 0
	})
	buf := &bytes.Buffer{}
	block := make([]byte, 0, blockSize)
	flush := func() {
		buf.Write(block)
		buf.Write(make([]byte, blockSize-len(block)))
		block = block[:0]
	}
	for _, e := range sorted {
		if len(block)+entrySize > blockSize {
			flush()
		}
		ekey := s.keys[e.Key]
		block = append(block, ekey[:]...)
		block = binary.BigEndian.AppendUint32(block, e.Size)
		block = binary.BigEndian.AppendUint32(block, uint32(e.Offset))
	}
	if len(block) > 0 {
		flush()
	}
	buf.Write(make([]byte, 8)) // toc hash
	buf.Write([]byte{1, 0, 0, blockSize / 1024, 4, 4, common.ContentChecksumSize, 8})
	binary.Write(buf, binary.LittleEndian, uint32(len(sorted)))
	buf.Write(make([]byte, 8)) // footer hash
	return buf.Bytes()
}

// BuildConfig serialises a build config.
func BuildConfig(root, encodingContent, encodingKey common.ContentChecksum, product, name string) []byte {
	return []byte(fmt.Sprintf("# Build Configuration\n\nroot = %s\nencoding = %s %s\nencoding-size = 0 0\nbuild-name = %s\nbuild-product = %s\n",
		root, encodingContent, encodingKey, name, product))
}

// CdnConfig serialises a CDN config listing archives.
func CdnConfig(archives []common.ContentChecksum) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("# CDN Configuration\n\narchives =")
	for _, a := range archives {
		buf.WriteString(" " + a.String())
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

// BuildInfo serialises a .build.info file with a single active row.
func BuildInfo(buildConfig, cdnConfig common.ContentChecksum, version, product string) []byte {
	return []byte(fmt.Sprintf("Branch!STRING:0|Active!DEC:1|Build Key!HEX:16|CDN Key!HEX:16|Install Key!HEX:16|IM Size!DEC:4|CDN Path!STRING:0|CDN Hosts!STRING:0|Tags!STRING:0|Armadillo!STRING:0|Last Activated!STRING:0|Version!STRING:0|Product!STRING:0\n"+
		"us|1|%s|%s||||||||%s|%s\n", buildConfig, cdnConfig, version, product))
}

// Diablo3Directory is a directory manifest of a Diablo III root.
type Diablo3Directory struct {
	Name  string
	Files []Diablo3File
}

// Diablo3File is a named entry of a Diablo III manifest.
type Diablo3File struct {
	Name     string
	Checksum common.ContentChecksum
}

// Diablo3Root serialises a Diablo III root listing the directories by
// content checksum.
func Diablo3Root(dirs []Diablo3File) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(0x8007D0C4))
	writeNamed(buf, dirs)
	return buf.Bytes()
}

// Manifest serialises the directory with one asset and one asset index
// entry ahead of its named entries.
func (d Diablo3Directory) Manifest() []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(0xEAF1FE87))
	binary.Write(buf, binary.LittleEndian, uint32(1))
	buf.Write(make([]byte, common.ContentChecksumSize))
	binary.Write(buf, binary.LittleEndian, uint32(100))
	binary.Write(buf, binary.LittleEndian, uint32(1))
	buf.Write(make([]byte, common.ContentChecksumSize))
	binary.Write(buf, binary.LittleEndian, []uint32{101, 2})
	writeNamed(buf, d.Files)
	return buf.Bytes()
}

func writeNamed(buf *bytes.Buffer, files []Diablo3File) {
	binary.Write(buf, binary.LittleEndian, uint32(len(files)))
	for _, f := range files {
		buf.Write(f.Checksum[:])
		buf.WriteString(f.Name)
		buf.WriteByte(0)
	}
}

// Diablo3Directories groups the root entries by the first component of
// their name, sorted by directory.
func (s *Storage) Diablo3Directories() []Diablo3Directory {
	byName := map[string]*Diablo3Directory{}
	var names []string
	for _, e := range s.Root {
		dir, file, ok := strings.Cut(s.Names[e.NameHash], "/")
		if !ok {
			continue
		}
		d, ok := byName[dir]
		if !ok {
			d = &Diablo3Directory{Name: dir}
			byName[dir] = d
			names = append(names, dir)
		}
		d.Files = append(d.Files, Diablo3File{Name: strings.ReplaceAll(file, "/", "\\"), Checksum: e.Checksum})
	}
	sort.Strings(names)
	dirs := make([]Diablo3Directory, len(names))
	for i, n := range names {
		dirs[i] = *byName[n]
	}
	return dirs
}
