package blte

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Mode is the one byte tag that starts every chunk.
type Mode byte

const (
	ModeRaw       Mode = 'N'
	ModeZlib      Mode = 'Z'
	ModeLZ4       Mode = '4'
	ModeFrame     Mode = 'F'
	ModeEncrypted Mode = 'E'
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeZlib:
		return "zlib"
	case ModeLZ4:
		return "lz4"
	case ModeFrame:
		return "frame"
	case ModeEncrypted:
		return "encrypted"
	default:
		return "unknown"
	}
}

type decompressor func(c Chunk, o *options, depth int) ([]byte, error)

func decompressorFor(m Mode) (decompressor, error) {
	switch m {
	case ModeRaw:
		return decompressRaw, nil
	case ModeZlib:
		return decompressZlib, nil
	case ModeLZ4:
		return decompressLZ4, nil
	case ModeFrame:
		return decompressFrame, nil
	case ModeEncrypted:
		return nil, errorf(UnsupportedMode, "encrypted chunks need a key service")
	default:
		return nil, errorf(UnsupportedMode, "%+q", byte(m))
	}
}

func decompressRaw(c Chunk, _ *options, _ int) ([]byte, error) {
	return c.Payload, nil
}

var zlibReaders sync.Pool

func acquireZlib(r io.Reader) (io.ReadCloser, error) {
	if zr, ok := zlibReaders.Get().(io.ReadCloser); ok {
		if err := zr.(zlib.Resetter).Reset(r, nil); err == nil {
			return zr, nil
		}
	}
	return zlib.NewReader(r)
}

func decompressZlib(c Chunk, _ *options, _ int) ([]byte, error) {
	zr, err := acquireZlib(bytes.NewReader(c.Payload))
	if err != nil {
		return nil, errorf(Corrupt, "zlib: %v", err)
	}
	defer zlibReaders.Put(zr)

	var src io.Reader = zr
	buf := &bytes.Buffer{}
	if c.DecompressedSize >= 0 {
		buf.Grow(sizeHint(int64(c.DecompressedSize), len(c.Payload)))
		if !c.sizeTolerated() {
			// one extra byte is enough to detect an oversized stream
			src = io.LimitReader(zr, int64(c.DecompressedSize)+1)
		}
	}
	if _, err := io.Copy(buf, src); err != nil {
		return nil, errorf(Corrupt, "zlib: %v", err)
	}
	return buf.Bytes(), nil
}

const maxLZ4Ratio = 255

func decompressLZ4(c Chunk, _ *options, _ int) ([]byte, error) {
	if c.DecompressedSize >= 0 {
		if c.DecompressedSize > maxLZ4Ratio*len(c.Payload)+64 {
			return nil, errorf(SizeMismatch, "lz4 chunk of %d bytes cannot decode to %d", len(c.Payload), c.DecompressedSize)
		}
		out := make([]byte, c.DecompressedSize)
		n, err := lz4.UncompressBlock(c.Payload, out)
		if err != nil {
			return nil, errorf(Corrupt, "lz4: %v", err)
		}
		return out[:n], nil
	}
	// headerless chunk: grow the destination until the block fits
	for size := 4 * len(c.Payload); ; size *= 2 {
		if size < 64 {
			size = 64
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(c.Payload, out)
		if err == nil {
			return out[:n], nil
		}
		if size > maxLZ4Ratio*len(c.Payload)+64 {
			return nil, errorf(Corrupt, "lz4: %v", err)
		}
	}
}

func decompressFrame(c Chunk, o *options, depth int) ([]byte, error) {
	if depth+1 > maxFrameDepth {
		return nil, errorf(UnsupportedMode, "frames nested deeper than %d", maxFrameDepth)
	}
	f, err := Parse(c.Payload, int64(c.DecompressedSize))
	if err != nil {
		return nil, errors.Wrap(err, "nested frame")
	}
	return f.decode(o, depth+1)
}

func lz4Encode(data []byte) ([]byte, error) {
	out := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, out, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if n == 0 {
		return nil, errors.New("lz4: incompressible data")
	}
	return out[:n], nil
}

func zlibEncode(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zlib.NewWriter(buf)
	if _, err := zw.Write(data); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
