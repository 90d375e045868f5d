package wow

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/brecky/casc/common"
	"github.com/pkg/errors"
)

const (
	rootMagic      = 0x4D465354 // "TSFM"
	rootHeaderSize = 0x18
)

type BlockHeader struct {
	Count        uint32
	ContentFlags uint32
	LocaleFlags  uint32
}

type Record struct {
	ContentHash [0x10]byte
	NameHash    uint64 // Jenkins96 (lookup3) hash of the file's path
}

// NewRoot decodes a World of Warcraft root manifest, either the classic
// layout or the "TSFM" layout introduced in 8.2.
// https://wowdev.wiki/TACT#Root
func NewRoot(root []byte) (common.RootManifest, error) {
	if len(root) >= 4 && binary.LittleEndian.Uint32(root) == rootMagic {
		return parseTSFM(root)
	}
	return parseClassic(root)
}

func parseClassic(root []byte) (common.RootManifest, error) {
	r := bytes.NewReader(root)
	m := common.RootManifest{}
	for {
		blockHeader := BlockHeader{}
		if err := binary.Read(r, binary.LittleEndian, &blockHeader); err != nil {
			if err == io.EOF {
				break
			}
			return m, errors.Wrap(common.ErrFormat, "truncated root block header")
		}
		if err := checkCount(r, blockHeader.Count, 4+16+8); err != nil {
			return m, err
		}
		ids, err := readFileDataIDs(r, blockHeader.Count)
		if err != nil {
			return m, err
		}
		records := make([]Record, blockHeader.Count)
		if err := binary.Read(r, binary.LittleEndian, &records); err != nil {
			return m, errors.Wrap(common.ErrFormat, "truncated root records")
		}
		for i, rec := range records {
			m.Entries = append(m.Entries, common.RootEntry{
				NameHash:   rec.NameHash,
				Checksum:   rec.ContentHash,
				Locale:     common.LocaleFlags(blockHeader.LocaleFlags),
				Content:    common.ContentFlags(blockHeader.ContentFlags),
				FileDataID: ids[i],
			})
		}
	}
	return m, nil
}

func parseTSFM(root []byte) (common.RootManifest, error) {
	r := bytes.NewReader(root)
	var header struct {
		Magic      uint32
		HeaderSize uint32
		Version    uint32
	}
	m := common.RootManifest{}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return m, errors.Wrap(common.ErrFormat, "truncated root header")
	}
	var totalFiles, namedFiles uint32
	version := header.Version
	headerSize := header.HeaderSize
	if headerSize != rootHeaderSize {
		// 8.2 layout: magic, total count, named count
		totalFiles, namedFiles = header.HeaderSize, header.Version
		version, headerSize = 0, 12
	} else {
		if version != 1 && version != 2 {
			return m, errors.Wrapf(common.ErrFormat, "unknown root version %d", version)
		}
		if err := binary.Read(r, binary.LittleEndian, &totalFiles); err != nil {
			return m, errors.Wrap(common.ErrFormat, "truncated root header")
		}
		if err := binary.Read(r, binary.LittleEndian, &namedFiles); err != nil {
			return m, errors.Wrap(common.ErrFormat, "truncated root header")
		}
	}
	if _, err := r.Seek(int64(headerSize), io.SeekStart); err != nil {
		return m, errors.WithStack(err)
	}
	allowNameless := totalFiles != namedFiles

	for r.Len() > 0 {
		var count, contentFlags, localeFlags uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return m, errors.Wrap(common.ErrFormat, "truncated root block header")
		}
		if version < 2 {
			var flags [2]uint32
			if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
				return m, errors.Wrap(common.ErrFormat, "truncated root block header")
			}
			contentFlags, localeFlags = flags[0], flags[1]
		} else {
			var flags struct {
				Locale uint32
				C1, C2 uint32
				C3     uint8
			}
			if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
				return m, errors.Wrap(common.ErrFormat, "truncated root block header")
			}
			localeFlags = flags.Locale
			contentFlags = flags.C1 | flags.C2 | uint32(flags.C3)<<17
		}
		if err := checkCount(r, count, 4+16); err != nil {
			return m, err
		}
		ids, err := readFileDataIDs(r, count)
		if err != nil {
			return m, err
		}
		checksums := make([]common.ContentChecksum, count)
		if err := binary.Read(r, binary.LittleEndian, &checksums); err != nil {
			return m, errors.Wrap(common.ErrFormat, "truncated root content keys")
		}
		var nameHashes []uint64
		if !(allowNameless && common.ContentFlags(contentFlags)&common.ContentNoNameHash != 0) {
			nameHashes = make([]uint64, count)
			if err := binary.Read(r, binary.LittleEndian, &nameHashes); err != nil {
				return m, errors.Wrap(common.ErrFormat, "truncated root name hashes")
			}
		}
		for i := range checksums {
			e := common.RootEntry{
				Checksum:   checksums[i],
				Locale:     common.LocaleFlags(localeFlags),
				Content:    common.ContentFlags(contentFlags),
				FileDataID: ids[i],
			}
			if nameHashes != nil {
				e.NameHash = nameHashes[i]
			}
			m.Entries = append(m.Entries, e)
		}
	}
	return m, nil
}

// checkCount rejects record counts the remaining data cannot hold before
// anything is allocated for them.
func checkCount(r *bytes.Reader, count uint32, minRecordSize int64) error {
	if int64(count)*minRecordSize > int64(r.Len()) {
		return errors.Wrapf(common.ErrFormat, "root block of %d records exceeds manifest", count)
	}
	return nil
}

// readFileDataIDs expands the delta encoded file data ids of a block.
func readFileDataIDs(r io.Reader, count uint32) ([]uint32, error) {
	deltas := make([]int32, count)
	if err := binary.Read(r, binary.LittleEndian, &deltas); err != nil {
		return nil, errors.Wrap(common.ErrFormat, "truncated root file data ids")
	}
	ids := make([]uint32, count)
	var next uint32
	for i, d := range deltas {
		ids[i] = next + uint32(d)
		next = ids[i] + 1
	}
	return ids, nil
}
