package common

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ArchiveIndexFooter closes a CDN archive .index file.
type ArchiveIndexFooter struct {
	TocHash      [8]uint8
	Version      uint8
	Unk1         uint8
	Unk2         uint8
	BlockSizeKB  uint8
	OffsetBytes  uint8
	SizeBytes    uint8
	KeySize      uint8
	ChecksumSize uint8
	NumElements  uint32
	FooterHash   [8]uint8
}

const archiveIndexFooterSize = 28

// ParseArchiveIndex parses the .index file of a CDN archive. archive is the
// number the returned entries are attributed to.
func ParseArchiveIndex(r io.ReadSeeker, archive int) ([]IndexEntry, error) {
	length, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if length < archiveIndexFooterSize {
		return nil, errors.Wrap(ErrFormat, "archive index too short")
	}
	if _, err := r.Seek(-archiveIndexFooterSize, io.SeekEnd); err != nil {
		return nil, errors.WithStack(err)
	}
	footer := ArchiveIndexFooter{}
	if err := binary.Read(r, binary.LittleEndian, &footer); err != nil {
		return nil, errors.WithStack(err)
	}
	if footer.KeySize < FileKeySize || footer.SizeBytes != 4 || footer.OffsetBytes != 4 || footer.BlockSizeKB == 0 {
		return nil, errors.Wrapf(ErrFormat, "unsupported archive index layout %+v", footer)
	}
	entrySize := int64(footer.KeySize) + 8
	if int64(footer.NumElements)*entrySize > length {
		return nil, errors.Wrap(ErrFormat, "archive index invalid length")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WithStack(err)
	}

	blockSize := int(footer.BlockSizeKB) * 1024
	block := make([]byte, blockSize)
	zero := make([]byte, footer.KeySize)
	indices := make([]IndexEntry, 0, footer.NumElements)
	for uint32(len(indices)) < footer.NumElements {
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, errors.WithStack(err)
		}
		for b := block; len(b) >= int(entrySize) && uint32(len(indices)) < footer.NumElements; b = b[entrySize:] {
			key := b[:footer.KeySize]
			if bytes.Equal(key, zero) {
				break // rest of the block is padding
			}
			fileKey, err := NewFileKey(key)
			if err != nil {
				return nil, err
			}
			indices = append(indices, IndexEntry{
				Key:     fileKey,
				Archive: archive,
				Size:    binary.BigEndian.Uint32(b[footer.KeySize:]),
				Offset:  int64(binary.BigEndian.Uint32(b[footer.KeySize+4:])),
			})
		}
	}
	return indices, nil
}
