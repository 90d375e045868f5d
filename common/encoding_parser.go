package common

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

type EncodingPageIndex struct {
	FirstKey []uint8
	Checksum [0x10]uint8
}

type EncodingHeader struct {
	Signature      uint16
	Version        uint8
	CHashSize      uint8
	EHashSize      uint8
	CPageSize      uint16 // in KiB
	EPageSize      uint16 // in KiB
	CPageCount     uint32
	EPageCount     uint32
	Unknown        uint8
	EspecBlockSize uint32
}

const encodingSignature = 0x454e // "EN"

// ParseEncoding parses the encoding manifest (already BLTE decoded) and
// returns one entry per content checksum, in page order.
// https://wowdev.wiki/TACT#Encoding_table
func ParseEncoding(r io.Reader) ([]EncodingEntry, error) {
	h := EncodingHeader{}
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, errors.WithStack(err)
	}
	if h.Signature != encodingSignature {
		return nil, errors.Wrapf(ErrFormat, "invalid encoding signature %x", h.Signature)
	}
	if h.CHashSize != ContentChecksumSize || h.EHashSize < FileKeySize {
		return nil, errors.Wrapf(ErrFormat, "unsupported encoding hash sizes %d/%d", h.CHashSize, h.EHashSize)
	}
	if _, err := io.CopyN(io.Discard, r, int64(h.EspecBlockSize)); err != nil {
		return nil, errors.WithStack(err)
	}
	cPageIndices := make([]EncodingPageIndex, h.CPageCount)
	for i := range cPageIndices {
		idx := &cPageIndices[i]
		idx.FirstKey = make([]uint8, h.CHashSize)
		if _, err := io.ReadFull(r, idx.FirstKey); err != nil {
			return nil, errors.WithStack(err)
		}
		if _, err := io.ReadFull(r, idx.Checksum[:]); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	entries := []EncodingEntry{}
	page := make([]byte, int(h.CPageSize)*1024)
	for i, idx := range cPageIndices {
		if _, err := io.ReadFull(r, page); err != nil {
			return nil, errors.WithStack(err)
		}
		if sum := md5.Sum(page); !bytes.Equal(sum[:], idx.Checksum[:]) {
			return nil, errors.Wrapf(ErrFormat, "encoding page %d invalid checksum", i)
		}
		pageEntries, err := parseEncodingPage(page, int(h.EHashSize))
		if err != nil {
			return nil, errors.Wrapf(err, "encoding page %d", i)
		}
		if len(pageEntries) > 0 && !bytes.Equal(pageEntries[0].Checksum[:], idx.FirstKey) {
			return nil, errors.Wrapf(ErrFormat, "encoding page %d first key mismatch", i)
		}
		entries = append(entries, pageEntries...)
	}
	return entries, nil
}

func parseEncodingPage(page []byte, eHashSize int) ([]EncodingEntry, error) {
	entries := []EncodingEntry{}
	for len(page) > 0 {
		keyCount := int(page[0])
		if keyCount == 0 {
			//a page is zero padded once entries have filled it
			break
		}
		need := 1 + 5 + ContentChecksumSize + keyCount*eHashSize
		if len(page) < need {
			return nil, errors.Wrap(ErrFormat, "truncated encoding entry")
		}
		var size int64
		for _, c := range page[1:6] { // 40 bit big endian
			size = size<<8 | int64(c)
		}
		entry := EncodingEntry{Size: size, Keys: make([]FileKey, 0, keyCount)}
		copy(entry.Checksum[:], page[6:6+ContentChecksumSize])
		keys := page[6+ContentChecksumSize : need]
		for k := 0; k < keyCount; k++ {
			key, err := NewFileKey(keys[k*eHashSize : (k+1)*eHashSize])
			if err != nil {
				return nil, err
			}
			entry.Keys = append(entry.Keys, key)
		}
		entries = append(entries, entry)
		page = page[need:]
	}
	return entries, nil
}
