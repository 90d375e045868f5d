package casc

import (
	"bytes"
	"context"
	"encoding/hex"
	"io/fs"
	"os"

	"github.com/brecky/casc/common"
	"github.com/pkg/errors"
)

// NewMirrorExplorer opens a CDN mirror: a directory holding the config/
// and data/ trees of a build as served by the CDN. buildConfig and
// cdnConfig are the hex hashes of the build's configs.
func NewMirrorExplorer(ctx context.Context, dir, buildConfig, cdnConfig string, opts ...Option) (*Explorer, error) {
	o := newOptions(opts)

	buildHash, err := hex.DecodeString(buildConfig)
	if err != nil {
		return nil, errors.Wrapf(common.ErrFormat, "build config hash %q", buildConfig)
	}
	cdnHash, err := hex.DecodeString(cdnConfig)
	if err != nil {
		return nil, errors.Wrapf(common.ErrFormat, "cdn config hash %q", cdnConfig)
	}
	buildCfg, err := readBuildConfig(dir, buildHash)
	if err != nil {
		return nil, err
	}
	cdnPath, err := common.HashPath(dir, common.PathTypeConfig, cdnHash, false)
	if err != nil {
		return nil, err
	}
	cdnData, err := os.ReadFile(cdnPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cdnCfg, err := common.ParseCdnConfig(bytes.NewReader(cdnData))
	if err != nil {
		return nil, err
	}

	// archive numbers are positions in the cdn config
	indexPaths := make([]string, len(cdnCfg.ArchivesHashes))
	archiveNumbers := make(map[string]int, len(indexPaths))
	for n, h := range cdnCfg.ArchivesHashes {
		if indexPaths[n], err = common.HashPath(dir, common.PathTypeData, h, true); err != nil {
			return nil, err
		}
		archiveNumbers[indexPaths[n]] = n
	}
	entries, err := loadConcurrently(ctx, indexPaths, o.indexConcurrency, func(path string) ([]common.IndexEntry, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer f.Close()
		entries, err := common.ParseArchiveIndex(f, archiveNumbers[path])
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	dataIndex := NewDataIndex(entries)
	o.logger.Info("archive indices loaded", "archives", len(indexPaths), "entries", dataIndex.Len())

	archives := newFileArchives(func(number int) (string, error) {
		if number < 0 || number >= len(cdnCfg.ArchivesHashes) {
			return "", notFound(StageArchive, archiveKey(number), fs.ErrNotExist)
		}
		return common.HashPath(dir, common.PathTypeData, cdnCfg.ArchivesHashes[number], false)
	})
	// the encoding manifest is usually served as a loose file
	readLoose := func(ekey common.ContentChecksum) ([]byte, error) {
		p, err := common.HashPath(dir, common.PathTypeData, ekey[:], false)
		if err != nil {
			return nil, err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, notFound(StageIndex, ekey, err)
			}
			return nil, errors.WithStack(err)
		}
		return b, nil
	}
	e, err := load(NewArchiveSource(archives, 0), dataIndex, buildCfg, readLoose, o)
	if err != nil {
		archives.Close()
		return nil, err
	}
	e.closer = archives
	return e, nil
}
