package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Encode compresses data into a BLTE container. A chunkSize of zero or less
// produces a headerless single chunk, otherwise data is split into chunks of
// at most chunkSize bytes listed in a checksummed chunk table.
func Encode(data []byte, mode Mode, chunkSize int) ([]byte, error) {
	if chunkSize <= 0 {
		chunk, err := encodeChunk(data, mode)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, 8+len(chunk))
		out = append(out, magic...)
		out = binary.BigEndian.AppendUint32(out, 0)
		return append(out, chunk...), nil
	}

	var chunks [][]byte
	var sizes []int
	for rest := data; len(rest) > 0 || len(chunks) == 0; {
		n := chunkSize
		if n > len(rest) {
			n = len(rest)
		}
		chunk, err := encodeChunk(rest[:n], mode)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
		sizes = append(sizes, n)
		rest = rest[n:]
	}

	buf := &bytes.Buffer{}
	buf.WriteString(magic)
	binary.Write(buf, binary.BigEndian, uint32(chunkTableOffset+chunkEntrySize*len(chunks)))
	buf.Write([]byte{chunkTableMarker, byte(len(chunks) >> 16), byte(len(chunks) >> 8), byte(len(chunks))})
	for i, chunk := range chunks {
		binary.Write(buf, binary.BigEndian, uint32(len(chunk)))
		binary.Write(buf, binary.BigEndian, uint32(sizes[i]))
		sum := md5.Sum(chunk)
		buf.Write(sum[:])
	}
	for _, chunk := range chunks {
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}

func encodeChunk(data []byte, mode Mode) ([]byte, error) {
	var payload []byte
	var err error
	switch mode {
	case ModeRaw:
		payload = data
	case ModeZlib:
		payload, err = zlibEncode(data)
	case ModeLZ4:
		payload, err = lz4Encode(data)
	case ModeFrame:
		payload, err = Encode(data, ModeRaw, 0)
	default:
		return nil, errors.Errorf("blte: cannot encode mode %s", mode)
	}
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(mode)}, payload...), nil
}
