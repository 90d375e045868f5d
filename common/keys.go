package common

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// Key sizes in bytes.
const (
	FileKeySize         = 9
	ContentChecksumSize = 16
)

// ErrInvalidKeyLength is returned when a checksum has the wrong byte length.
var ErrInvalidKeyLength = errors.New("invalid key length")

// FileKey identifies a stored data block. It holds the first 9 bytes of the
// block's encoded checksum, which is all the local indices keep.
type FileKey [FileKeySize]byte

// NewFileKey truncates checksum to a FileKey. checksum must be at least
// 9 bytes long.
func NewFileKey(checksum []byte) (FileKey, error) {
	var k FileKey
	if len(checksum) < FileKeySize {
		return k, errors.Wrapf(ErrInvalidKeyLength, "file key needs %d bytes, got %d", FileKeySize, len(checksum))
	}
	copy(k[:], checksum[:FileKeySize])
	return k, nil
}

func (k FileKey) String() string {
	return hex.EncodeToString(k[:])
}

// ContentChecksum identifies the content of a file before it is split into
// blocks.
type ContentChecksum [ContentChecksumSize]byte

// NewContentChecksum copies b, which must be exactly 16 bytes long.
func NewContentChecksum(b []byte) (ContentChecksum, error) {
	var c ContentChecksum
	if len(b) != ContentChecksumSize {
		return c, errors.Wrapf(ErrInvalidKeyLength, "content checksum needs %d bytes, got %d", ContentChecksumSize, len(b))
	}
	copy(c[:], b)
	return c, nil
}

// ParseContentChecksum decodes a 32 character hex string.
func ParseContentChecksum(s string) (ContentChecksum, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ContentChecksum{}, errors.WithStack(err)
	}
	return NewContentChecksum(b)
}

// FileKey returns the first 9 bytes of c. Encoded checksums share the
// ContentChecksum layout, this is how they are looked up in a DataIndex.
func (c ContentChecksum) FileKey() FileKey {
	var k FileKey
	copy(k[:], c[:FileKeySize])
	return k
}

func (c ContentChecksum) String() string {
	return hex.EncodeToString(c[:])
}
