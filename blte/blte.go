// Package blte implements reading of BLTE format compressed data.
// https://wowdev.wiki/BLTE
package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
)

// UnknownSize is passed as declaredSize when the decoded size of a
// headerless container is not known in advance.
const UnknownSize = -1

const (
	magic            = "BLTE"
	chunkTableMarker = 0x0F
	chunkEntrySize   = 24
	chunkTableOffset = 12
	maxFrameDepth    = 4
)

// Chunk is one independently compressed part of a BLTE container.
type Chunk struct {
	// CompressedSize counts the mode byte and the payload.
	CompressedSize int
	// DecompressedSize is UnknownSize for a headerless container decoded
	// without a declared size.
	DecompressedSize int
	// Checksum is the md5 of the mode byte and payload. It is zero for
	// headerless containers.
	Checksum [md5.Size]byte
	Mode     Mode
	Payload  []byte
}

// File is a parsed BLTE container.
type File struct {
	// HeaderSize is 0 for a single chunk container.
	HeaderSize uint32
	Chunks     []Chunk
}

type options struct {
	verify bool
}

// Option configures decoding.
type Option func(*options)

// VerifyChecksums enables the md5 check of every chunk that carries one.
func VerifyChecksums(verify bool) Option {
	return func(o *options) {
		o.verify = verify
	}
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Parse splits data into chunks without decompressing them. declaredSize
// is the expected decoded size of a headerless container, or UnknownSize.
// Chunk payloads alias data.
func Parse(data []byte, declaredSize int64) (*File, error) {
	if len(data) < 8 {
		return nil, errorf(Truncated, "%d bytes, need at least 8", len(data))
	}
	if !bytes.Equal(data[:4], []byte(magic)) {
		return nil, errorf(BadMagic, "got %x", data[:4])
	}
	headerSize := binary.BigEndian.Uint32(data[4:8])
	if headerSize == 0 {
		return parseSingle(data[8:], declaredSize)
	}

	if len(data) < chunkTableOffset {
		return nil, errorf(Truncated, "chunk table header needs %d bytes, got %d", chunkTableOffset, len(data))
	}
	if data[8] != chunkTableMarker {
		return nil, errorf(BadChunkTableMarker, "got 0x%02x", data[8])
	}
	count := int(data[9])<<16 | int(data[10])<<8 | int(data[11])
	if count == 0 {
		return nil, errorf(HeaderSizeMismatch, "empty chunk table")
	}
	if expected := uint64(chunkTableOffset) + uint64(count)*chunkEntrySize; uint64(headerSize) != expected {
		return nil, errorf(HeaderSizeMismatch, "header size %d, %d chunks need %d", headerSize, count, expected)
	}
	if uint64(len(data)) < uint64(headerSize) {
		return nil, errorf(Truncated, "chunk table needs %d bytes, got %d", headerSize, len(data))
	}

	f := &File{HeaderSize: headerSize, Chunks: make([]Chunk, 0, count)}
	table := data[chunkTableOffset:headerSize]
	body := data[headerSize:]
	for i := 0; i < count; i++ {
		e := table[i*chunkEntrySize : (i+1)*chunkEntrySize]
		c := Chunk{
			CompressedSize:   int(binary.BigEndian.Uint32(e[0:4])),
			DecompressedSize: int(binary.BigEndian.Uint32(e[4:8])),
		}
		copy(c.Checksum[:], e[8:24])
		if c.CompressedSize < 1 {
			return nil, errorf(SizeMismatch, "chunk %d has no mode byte", i)
		}
		if len(body) < c.CompressedSize {
			return nil, errorf(ChunkCountMismatch, "table declares %d chunks, data holds %d", count, i)
		}
		c.Mode = Mode(body[0])
		c.Payload = body[1:c.CompressedSize]
		body = body[c.CompressedSize:]
		f.Chunks = append(f.Chunks, c)
	}
	return f, nil
}

func parseSingle(body []byte, declaredSize int64) (*File, error) {
	if len(body) < 1 {
		return nil, errorf(Truncated, "missing chunk mode")
	}
	size := UnknownSize
	if declaredSize >= 0 {
		size = int(declaredSize)
	}
	return &File{Chunks: []Chunk{{
		CompressedSize:   len(body),
		DecompressedSize: size,
		Mode:             Mode(body[0]),
		Payload:          body[1:],
	}}}, nil
}

// DecodedSize returns the sum of the chunk sizes, or UnknownSize.
func (f *File) DecodedSize() int64 {
	var total int64
	for _, c := range f.Chunks {
		if c.DecompressedSize < 0 {
			return UnknownSize
		}
		total += int64(c.DecompressedSize)
	}
	return total
}

// Decode decompresses every chunk and concatenates them in table order.
func (f *File) Decode(opts ...Option) ([]byte, error) {
	return f.decode(newOptions(opts), 0)
}

func (f *File) decode(o *options, depth int) ([]byte, error) {
	if len(f.Chunks) == 1 {
		return f.Chunks[0].decompress(o, 0, depth)
	}
	compressed := 0
	for _, c := range f.Chunks {
		compressed += len(c.Payload)
	}
	out := make([]byte, 0, sizeHint(f.DecodedSize(), compressed))
	for i, c := range f.Chunks {
		b, err := c.decompress(o, i, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Decompress decodes a single chunk.
func (c Chunk) Decompress(opts ...Option) ([]byte, error) {
	return c.decompress(newOptions(opts), 0, 0)
}

func (c Chunk) decompress(o *options, index, depth int) ([]byte, error) {
	if o.verify && c.Checksum != ([md5.Size]byte{}) {
		digest := md5.New()
		digest.Write([]byte{byte(c.Mode)})
		digest.Write(c.Payload)
		var sum [md5.Size]byte
		copy(sum[:], digest.Sum(nil))
		if sum != c.Checksum {
			return nil, errorf(ChecksumMismatch, "chunk %d: got %x, expected %x", index, sum, c.Checksum)
		}
	}
	d, err := decompressorFor(c.Mode)
	if err != nil {
		return nil, err
	}
	out, err := d(c, o, depth)
	if err != nil {
		return nil, err
	}
	if c.DecompressedSize >= 0 && len(out) != c.DecompressedSize && !c.sizeTolerated() {
		return nil, errorf(SizeMismatch, "chunk %d: decoded %d bytes, expected %d", index, len(out), c.DecompressedSize)
	}
	return out, nil
}

// sizeTolerated reports whether a zlib chunk may decode to a size other
// than the declared one. Some encoders store the compressed size in both
// fields.
func (c Chunk) sizeTolerated() bool {
	return c.Mode == ModeZlib && c.CompressedSize == c.DecompressedSize
}

// maxExpansion bounds the decoded to encoded ratio assumed when sizing
// buffers. Declared sizes come from the container and are not trusted.
const maxExpansion = 64

// sizeHint returns a buffer capacity for declared decoded bytes produced
// from payload encoded bytes.
func sizeHint(declared int64, payload int) int {
	limit := int64(payload) * maxExpansion
	if declared < 0 || declared > limit {
		return int(limit)
	}
	return int(declared)
}

// Decode parses and decodes data in one step.
func Decode(data []byte, declaredSize int64, opts ...Option) ([]byte, error) {
	f, err := Parse(data, declaredSize)
	if err != nil {
		return nil, err
	}
	return f.Decode(opts...)
}
