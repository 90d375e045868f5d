package casc

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brecky/casc/blte"
	"github.com/brecky/casc/common"
	"github.com/brecky/casc/root"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// NewLocalExplorer opens the game installed under installDir. The archives
// stay memory mapped until the Explorer is closed.
func NewLocalExplorer(ctx context.Context, installDir string, opts ...Option) (*Explorer, error) {
	o := newOptions(opts)

	buildInfo, err := os.ReadFile(filepath.Join(installDir, ".build.info"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	versions, err := common.ParseBuildInfo(bytes.NewReader(buildInfo))
	if err != nil {
		return nil, err
	}
	version, err := activeVersion(versions)
	if err != nil {
		return nil, err
	}

	data := filepath.Join(installDir, "Data")
	buildCfg, err := readBuildConfig(data, version.BuildConfigHash)
	if err != nil {
		return nil, err
	}

	idxFiles, err := localIdxFiles(filepath.Join(data, "data"))
	if err != nil {
		return nil, err
	}
	entries, err := loadConcurrently(ctx, idxFiles, o.indexConcurrency, func(path string) ([]common.IndexEntry, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer f.Close()
		_, entries, err := common.ParseIdx(f)
		if err != nil {
			return nil, errors.Wrap(err, filepath.Base(path))
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	dataIndex := NewDataIndex(entries)
	o.logger.Info("local indices loaded", "files", len(idxFiles), "entries", dataIndex.Len())

	archives := localArchives(installDir)
	src := NewArchiveSource(archives, localBlockHeaderSize)
	e, err := load(src, dataIndex, buildCfg, nil, o)
	if err != nil {
		archives.Close()
		return nil, err
	}
	e.version = version.Name
	e.closer = archives
	return e, nil
}

func activeVersion(versions []common.Version) (common.Version, error) {
	for _, v := range versions {
		if v.Active {
			return v, nil
		}
	}
	return common.Version{}, errors.New("no active build in .build.info")
}

func readBuildConfig(dir string, hash []byte) (common.BuildConfig, error) {
	p, err := common.HashPath(dir, common.PathTypeConfig, hash, false)
	if err != nil {
		return common.BuildConfig{}, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return common.BuildConfig{}, errors.WithStack(err)
	}
	return common.ParseBuildConfig(bytes.NewReader(b))
}

// localIdxFiles lists the .idx files of dir, newest first. Buckets are
// rewritten under a higher version number, so the name order puts the most
// up to date entries first.
func localIdxFiles(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var paths []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".idx") {
			continue
		}
		paths = append(paths, filepath.Join(dir, f.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// loadConcurrently parses every path with at most limit parsers running
// and concatenates the results in path order.
func loadConcurrently(ctx context.Context, paths []string, limit int, parse func(path string) ([]common.IndexEntry, error)) ([]common.IndexEntry, error) {
	results := make([][]common.IndexEntry, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries, err := parse(p)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []common.IndexEntry
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// load reads the encoding and root manifests a build config points to.
// readEncoding, when set, is tried for an encoding manifest the data
// index does not locate.
func load(src BlockSource, dataIndex *DataIndex, buildCfg common.BuildConfig, readEncoding func(ekey common.ContentChecksum) ([]byte, error), o *options) (*Explorer, error) {
	var encodingData []byte
	if ie, ok := dataIndex.Lookup(buildCfg.EncodingKey.FileKey()); ok {
		raw, err := src.ReadBlock(ie)
		if err != nil {
			return nil, errors.Wrap(err, "encoding")
		}
		encodingData = raw
	} else if readEncoding != nil {
		raw, err := readEncoding(buildCfg.EncodingKey)
		if err != nil {
			return nil, errors.Wrap(err, "encoding")
		}
		encodingData = raw
	} else {
		return nil, notFound(StageIndex, buildCfg.EncodingKey, nil)
	}
	r, err := blte.NewReader(bytes.NewReader(encodingData))
	if err != nil {
		return nil, errors.Wrap(err, "encoding")
	}
	encodingEntries, err := common.ParseEncoding(r)
	if err != nil {
		return nil, errors.Wrap(err, "encoding")
	}
	encodingIndex := NewEncodingIndex(encodingEntries)
	o.logger.Info("encoding loaded", "entries", encodingIndex.Len())

	rootEntry, ok := encodingIndex.Lookup(buildCfg.Root)
	if !ok {
		return nil, notFound(StageEncoding, buildCfg.Root, nil)
	}
	rootData, err := readEntry(src, dataIndex, rootEntry, o.verifyChecksums)
	if err != nil {
		return nil, errors.Wrap(err, "root")
	}
	fetch := func(ckey common.ContentChecksum) ([]byte, error) {
		entry, ok := encodingIndex.Lookup(ckey)
		if !ok {
			return nil, errors.Wrapf(common.ErrUnavailable, "%s", ckey)
		}
		b, err := readEntry(src, dataIndex, entry, o.verifyChecksums)
		if errors.Is(err, ErrNotFound) {
			return nil, errors.Wrapf(common.ErrUnavailable, "%v", err)
		}
		return b, err
	}
	manifest, err := root.DecoderWith(buildCfg.BuildProduct, fetch)(rootData)
	if err != nil {
		return nil, errors.Wrap(err, "root")
	}
	rootIndex := NewRootIndex(manifest.Entries, manifest.Names)
	o.logger.Info("root loaded", "product", buildCfg.BuildProduct, "entries", rootIndex.Len(), "names", len(manifest.Names))

	e, err := newExplorer(src, Indices{Root: rootIndex, Encoding: encodingIndex, Data: dataIndex}, o)
	if err != nil {
		return nil, err
	}
	e.app = buildCfg.BuildProduct
	e.version = buildCfg.BuildName
	return e, nil
}
