package common

import (
	"encoding/hex"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrFormat is returned by the manifest parsers on malformed input.
var ErrFormat = errors.New("invalid manifest format")

// ErrUnavailable is returned by a ContentFetcher for content the storage
// does not hold.
var ErrUnavailable = errors.New("content not available")

const (
	PathTypeConfig = "config"
	PathTypeData   = "data"
	//PathTypePatch  = "patch"
)

// HashPath returns the location of a hash named file inside a CDN style
// directory tree: dir/pathType/ab/cd/abcd...
func HashPath(dir, pathType string, hash []byte, index bool) (string, error) {
	if len(hash) < 2 {
		return "", errors.Wrapf(ErrInvalidKeyLength, "hash %x too short for a path", hash)
	}
	h := hex.EncodeToString(hash)
	p := filepath.Join(dir, pathType, h[0:2], h[2:4], h)
	if index {
		p += ".index"
	}
	return p, nil
}
