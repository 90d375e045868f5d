package common

import (
	"io"

	"github.com/pkg/errors"
)

// BuildConfig holds the build config entries needed to open a storage.
type BuildConfig struct {
	Root ContentChecksum
	// EncodingContent is the content checksum of the encoding manifest,
	// EncodingKey the encoded key it is stored under.
	EncodingContent ContentChecksum
	EncodingKey     ContentChecksum
	BuildProduct    string
	BuildName       string
}

func ParseBuildConfig(r io.Reader) (BuildConfig, error) {
	cfg, err := parseConfig(r)
	if err != nil {
		return BuildConfig{}, err
	}
	roots, err := configToHashes(cfg, "root")
	if err != nil {
		return BuildConfig{}, err
	}
	if len(roots) != 1 {
		return BuildConfig{}, errors.Wrapf(ErrFormat, "expected one root hash, got %d", len(roots))
	}
	encodings, err := configToHashes(cfg, "encoding")
	if err != nil {
		return BuildConfig{}, err
	}
	if len(encodings) < 2 {
		return BuildConfig{}, errors.Wrap(ErrFormat, "expected at least two encoding hashes")
	}
	b := BuildConfig{
		BuildProduct: cfg["build-product"],
		BuildName:    cfg["build-name"],
	}
	if b.Root, err = NewContentChecksum(roots[0]); err != nil {
		return BuildConfig{}, err
	}
	if b.EncodingContent, err = NewContentChecksum(encodings[0]); err != nil {
		return BuildConfig{}, err
	}
	if b.EncodingKey, err = NewContentChecksum(encodings[1]); err != nil {
		return BuildConfig{}, err
	}
	return b, nil
}
