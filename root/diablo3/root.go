// Package diablo3 decodes the root manifest of Diablo III.
// https://wowdev.wiki/TACT#Diablo_III
package diablo3

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/brecky/casc/common"
	"github.com/pkg/errors"
)

// Signature starts the root manifest and every directory manifest.
const Signature = 0x8007D0C4

type namedEntry struct {
	checksum common.ContentChecksum
	name     string
}

// NewRoot decodes a Diablo III root. The root lists directories, each a
// manifest of its own read through fetch. Directories fetch reports as
// common.ErrUnavailable are skipped. With a nil fetch only the directories
// themselves are listed.
func NewRoot(root []byte, fetch common.ContentFetcher) (common.RootManifest, error) {
	m := common.RootManifest{Names: map[uint64]string{}}
	r := bufio.NewReader(bytes.NewReader(root))
	var sig uint32
	if err := binary.Read(r, binary.LittleEndian, &sig); err != nil {
		return m, errors.Wrap(common.ErrFormat, "diablo3 root signature")
	}
	if sig != Signature {
		return m, errors.Wrapf(common.ErrFormat, "invalid Diablo III root signature %x", sig)
	}
	dirs, err := readNamedEntries(r)
	if err != nil {
		return m, errors.Wrap(err, "diablo3 root")
	}

	for _, dir := range dirs {
		add(&m, dir.name, dir.checksum)
		if fetch == nil {
			continue
		}
		b, err := fetch(dir.checksum)
		if err != nil {
			if errors.Is(err, common.ErrUnavailable) {
				continue
			}
			return m, errors.Wrapf(err, "diablo3 directory %s", dir.name)
		}
		files, err := readDirectory(b)
		if err != nil {
			return m, errors.Wrapf(err, "diablo3 directory %s", dir.name)
		}
		for _, f := range files {
			add(&m, dir.name+"/"+f.name, f.checksum)
		}
	}
	return m, nil
}

func add(m *common.RootManifest, name string, checksum common.ContentChecksum) {
	name = common.CleanPath(name)
	hash := common.FilenameHash(name)
	if !common.ValidHash(hash) {
		return
	}
	if _, ok := m.Names[hash]; !ok {
		m.Names[hash] = name
	}
	m.Entries = append(m.Entries, common.RootEntry{NameHash: hash, Checksum: checksum, Locale: common.LocaleAll})
}

// readDirectory returns the named entries of a directory manifest. Asset
// entries are keyed by SNO id and have no path, they are skipped.
func readDirectory(b []byte) ([]namedEntry, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var sig uint32
	if err := binary.Read(r, binary.LittleEndian, &sig); err != nil {
		return nil, errors.Wrap(common.ErrFormat, "directory signature")
	}
	// asset entries: ckey, SNO id
	if err := skipEntries(r, common.ContentChecksumSize+4); err != nil {
		return nil, err
	}
	// asset index entries: ckey, SNO id, file index
	if err := skipEntries(r, common.ContentChecksumSize+8); err != nil {
		return nil, err
	}
	return readNamedEntries(r)
}

func skipEntries(r *bufio.Reader, size int) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return errors.Wrap(common.ErrFormat, "entry count")
	}
	n, err := io.CopyN(io.Discard, r, int64(count)*int64(size))
	if err != nil {
		return errors.Wrapf(common.ErrFormat, "%d entries of %d bytes, %d bytes left", count, size, n)
	}
	return nil
}

func readNamedEntries(r *bufio.Reader) ([]namedEntry, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, errors.Wrap(common.ErrFormat, "named entry count")
	}
	var entries []namedEntry
	for i := uint32(0); i < count; i++ {
		e := namedEntry{}
		if _, err := io.ReadFull(r, e.checksum[:]); err != nil {
			return nil, errors.Wrapf(common.ErrFormat, "named entry %d of %d", i, count)
		}
		name, err := r.ReadString(0)
		if err != nil {
			return nil, errors.Wrapf(common.ErrFormat, "named entry %d: unterminated name", i)
		}
		e.name = name[:len(name)-1]
		entries = append(entries, e)
	}
	return entries, nil
}
