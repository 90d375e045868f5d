package common

import (
	"io"

	"github.com/pkg/errors"
)

type CdnConfig struct {
	ArchivesHashes [][]byte
}

func ParseCdnConfig(r io.Reader) (CdnConfig, error) {
	cdnCfg, err := parseConfig(r)
	if err != nil {
		return CdnConfig{}, err
	}
	archivesHashes, err := configToHashes(cdnCfg, "archives")
	if err != nil {
		return CdnConfig{}, err
	}
	if len(archivesHashes) == 0 {
		return CdnConfig{}, errors.Wrap(ErrFormat, "no archives hashes found in cdn config")
	}
	return CdnConfig{archivesHashes}, nil
}
