package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

type header struct {
	Sig  [4]byte
	Size uint32
}

type chunkInfo struct {
	Marker uint8
	Count  [3]uint8
}

type chunkInfoEntry struct {
	Csize    uint32
	USize    uint32
	Checksum [md5.Size]uint8
}

// NewReader creates a new io.Reader.
// Reads from the returned Reader read and decompress data from r one chunk
// at a time, so memory use is bounded by the largest chunk. Chunk checksums
// are always verified when present.
func NewReader(r io.Reader) (io.Reader, error) {
	h := header{}
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, errorf(Truncated, "header: %v", err)
	}
	if string(h.Sig[:]) != magic {
		return nil, errorf(BadMagic, "got %x", h.Sig)
	}
	if h.Size == 0 {
		return createReader(r, UnknownSize, UnknownSize)
	}
	info := chunkInfo{}
	if err := binary.Read(r, binary.BigEndian, &info); err != nil {
		return nil, errorf(Truncated, "chunk info: %v", err)
	}
	if info.Marker != chunkTableMarker {
		return nil, errorf(BadChunkTableMarker, "got 0x%02x", info.Marker)
	}
	count := int(info.Count[0])<<16 | int(info.Count[1])<<8 | int(info.Count[2])
	if count == 0 || h.Size != uint32(chunkTableOffset+count*chunkEntrySize) {
		return nil, errorf(HeaderSizeMismatch, "header size %d for %d chunks", h.Size, count)
	}
	entries := make([]chunkInfoEntry, count)
	if err := binary.Read(r, binary.BigEndian, entries); err != nil {
		return nil, errorf(Truncated, "chunk table: %v", err)
	}
	return &blteReader{r: r, entries: entries}, nil
}

// createReader returns a reader that decompresses one data chunk.
// usize and csize are UnknownSize for a headerless blte file, csize
// excludes the mode byte.
func createReader(r io.Reader, usize, csize int) (io.Reader, error) {
	var typ [1]byte
	if _, err := io.ReadFull(r, typ[:]); err != nil {
		return nil, errorf(Truncated, "chunk mode: %v", err)
	}
	mode := Mode(typ[0])

	switch mode {
	case ModeRaw:
		if csize != usize {
			return nil, errorf(SizeMismatch, "raw chunk stores %d bytes, expected %d", csize, usize)
		}
	case ModeZlib:
		zreader, err := acquireZlib(r)
		if err != nil {
			return nil, errorf(Corrupt, "zlib: %v", err)
		}
		r = &eofReleaser{r: zreader}
		if usize >= 0 && csize+1 == usize {
			usize = UnknownSize // tolerated
		}
	default:
		payload, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		c := Chunk{CompressedSize: len(payload) + 1, DecompressedSize: usize, Mode: mode, Payload: payload}
		out, err := c.decompress(&options{}, 0, 0)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(out), nil
	}

	if usize >= 0 {
		r = &sizeReader{r: r, size: usize}
	}
	return r, nil
}

// blteReader reads blte data consisting of multiple data chunks.
type blteReader struct {
	r       io.Reader
	entries []chunkInfoEntry
	index   int
	next    io.Reader
}

func (r *blteReader) step() error {
	if r.index >= len(r.entries) {
		r.next = nil
		return nil
	}
	e := r.entries[r.index]
	if e.Csize < 1 {
		return errorf(SizeMismatch, "chunk %d has no mode byte", r.index)
	}
	chunk, err := io.ReadAll(io.LimitReader(r.r, int64(e.Csize)))
	if err != nil || len(chunk) != int(e.Csize) {
		return errorf(ChunkCountMismatch, "table declares %d chunks, data holds %d", len(r.entries), r.index)
	}
	if sum := md5.Sum(chunk); e.Checksum != ([md5.Size]byte{}) && sum != e.Checksum {
		return errorf(ChecksumMismatch, "chunk %d: got %x, expected %x", r.index, sum, e.Checksum)
	}
	r.index++
	r.next, err = createReader(bytes.NewReader(chunk), int(e.USize), int(e.Csize)-1)
	return err
}

func (r *blteReader) Read(b []byte) (int, error) {
	for {
		if r.next != nil {
			n, err := r.next.Read(b)
			if err == io.EOF {
				err = nil
				r.next = nil
			}
			if n > 0 || err != nil {
				return n, err
			}
			continue
		}
		if err := r.step(); err != nil {
			return 0, err
		}
		if r.next == nil {
			return 0, io.EOF
		}
	}
}

// sizeReader checks the provided size when reaching io.EOF.
type sizeReader struct {
	r    io.Reader
	size int

	actual int
	err    error
}

func (c *sizeReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	var n int
	n, c.err = c.r.Read(p)
	c.actual += n
	if c.actual > c.size {
		c.err = errorf(SizeMismatch, "decoded more than %d bytes", c.size)
		return n, c.err
	}
	if c.err != io.EOF {
		return n, c.err
	}
	if c.size != c.actual {
		c.err = errorf(SizeMismatch, "decoded %d bytes, expected %d", c.actual, c.size)
	}
	return n, c.err
}

// eofReleaser returns the pooled zlib reader when reaching io.EOF.
type eofReleaser struct {
	r   io.ReadCloser
	err error
}

func (c *eofReleaser) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	var n int
	n, c.err = c.r.Read(p)
	if c.err == nil {
		return n, nil
	}
	zlibReaders.Put(c.r)
	if c.err != io.EOF {
		c.err = errorf(Corrupt, "zlib: %v", c.err)
	}
	return n, c.err
}
