package common

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// IdxHeader is the header of a local Data/data/*.idx bucket file.
type IdxHeader struct {
	HeaderHashSize          uint32
	HeaderHash              uint32
	Version                 uint16
	BucketIndex             uint8
	Unk1                    uint8
	EntrySizeBytes          uint8
	EntryOffsetBytes        uint8
	EntryKeyBytes           uint8
	ArchiveFileHeaderBytes  uint8 // number of bits of the packed location used by the offset
	ArchiveTotalSizeMaximum uint64
	Padding                 [8]uint8
	EntriesSize             uint32
	EntriesHash             uint32
}

const defaultOffsetBits = 30

// ParseIdx parses a local index file and returns its entries in file order.
func ParseIdx(r io.Reader) (IdxHeader, []IndexEntry, error) {
	h := IdxHeader{}
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, nil, errors.WithStack(err)
	}
	if h.EntryKeyBytes < FileKeySize || h.EntryOffsetBytes == 0 || h.EntryOffsetBytes > 8 ||
		h.EntrySizeBytes == 0 || h.EntrySizeBytes > 4 {
		return h, nil, errors.Wrapf(ErrFormat, "unsupported idx entry layout key=%d offset=%d size=%d",
			h.EntryKeyBytes, h.EntryOffsetBytes, h.EntrySizeBytes)
	}
	offsetBits := uint(h.ArchiveFileHeaderBytes)
	if offsetBits == 0 || offsetBits >= 64 {
		offsetBits = defaultOffsetBits
	}

	entrySize := int(h.EntrySizeBytes) + int(h.EntryOffsetBytes) + int(h.EntryKeyBytes)
	numberOfEntries := int(h.EntriesSize) / entrySize
	data := make([]byte, numberOfEntries*entrySize)
	if _, err := io.ReadFull(r, data); err != nil {
		return h, nil, errors.WithStack(err)
	}

	entries := make([]IndexEntry, 0, numberOfEntries)
	for i := 0; i < numberOfEntries; i++ {
		b := data[i*entrySize : (i+1)*entrySize]
		key, err := NewFileKey(b[:h.EntryKeyBytes])
		if err != nil {
			return h, nil, err
		}
		b = b[h.EntryKeyBytes:]

		// big endian packed location:
		// top bits = name of the archive: data.XXX ; bottom offsetBits = offset in that archive.
		var location uint64
		for _, c := range b[:h.EntryOffsetBytes] {
			location = location<<8 | uint64(c)
		}
		b = b[h.EntryOffsetBytes:]

		var size uint32
		for j := int(h.EntrySizeBytes) - 1; j >= 0; j-- { // little endian
			size = size<<8 | uint32(b[j])
		}

		entries = append(entries, IndexEntry{
			Key:     key,
			Archive: int(location >> offsetBits),
			Offset:  int64(location & (1<<offsetBits - 1)),
			Size:    size,
		})
	}
	return h, entries, nil
}
