package casc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/brecky/casc/common"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// BlockSource reads the encoded bytes of a block.
type BlockSource interface {
	ReadBlock(entry common.IndexEntry) ([]byte, error)
}

// ArchiveOpener gives positioned read access to numbered archives.
type ArchiveOpener interface {
	OpenArchive(number int) (io.ReaderAt, error)
}

// localBlockHeaderSize is the size of the header preceding blocks in the
// data.NNN files of a local install.
const localBlockHeaderSize = 30

type archiveSource struct {
	opener     ArchiveOpener
	headerSize int
}

// NewArchiveSource reads blocks from the archives of opener. headerSize is
// the size of the header preceding each block, 30 for local installs and 0
// for CDN archives. Index entry sizes include it.
func NewArchiveSource(opener ArchiveOpener, headerSize int) BlockSource {
	return &archiveSource{opener: opener, headerSize: headerSize}
}

func (s *archiveSource) ReadBlock(entry common.IndexEntry) ([]byte, error) {
	if int(entry.Size) < s.headerSize {
		return nil, errors.Wrapf(common.ErrFormat, "block %s size %d smaller than its header", entry.Key, entry.Size)
	}
	r, err := s.opener.OpenArchive(entry.Archive)
	if err != nil {
		return nil, err
	}
	if l, ok := r.(interface{ Len() int }); ok && entry.Offset+int64(entry.Size) > int64(l.Len()) {
		return nil, errors.Wrapf(common.ErrFormat, "block %s past the end of archive %d", entry.Key, entry.Archive)
	}
	b := make([]byte, entry.Size)
	if _, err := r.ReadAt(b, entry.Offset); err != nil {
		if err == io.EOF {
			return nil, errors.Wrapf(common.ErrFormat, "block %s past the end of archive %d", entry.Key, entry.Archive)
		}
		return nil, errors.WithStack(err)
	}
	if s.headerSize == 0 {
		return b, nil
	}
	if err := checkBlockHeader(b[:s.headerSize], entry); err != nil {
		return nil, err
	}
	return b[s.headerSize:], nil
}

// checkBlockHeader validates the local block header: the reversed encoded
// key must start with the entry key and the size must match.
// https://wowdev.wiki/CASC#Data_files
func checkBlockHeader(header []byte, entry common.IndexEntry) error {
	var key [common.ContentChecksumSize]byte
	for i := range key {
		key[i] = header[15-i]
	}
	if !bytes.Equal(key[:common.FileKeySize], entry.Key[:]) {
		return errors.Wrapf(common.ErrFormat, "corrupted local block, header key %x expected %s", key, entry.Key)
	}
	if size := binary.LittleEndian.Uint32(header[16:20]); size != entry.Size {
		return errors.Wrapf(common.ErrFormat, "inconsistent local block size %d expected %d", size, entry.Size)
	}
	return nil
}

// MemoryArchives holds archives in memory, keyed by archive number.
type MemoryArchives map[int][]byte

func (m MemoryArchives) OpenArchive(number int) (io.ReaderAt, error) {
	b, ok := m[number]
	if !ok {
		return nil, notFound(StageArchive, archiveKey(number), fs.ErrNotExist)
	}
	return bytes.NewReader(b), nil
}

type archiveKey int

func (a archiveKey) String() string {
	return fmt.Sprintf("data.%03d", int(a))
}

// fileArchives memory maps archive files on first use and keeps them open
// until Close.
type fileArchives struct {
	path func(number int) (string, error)

	mu   sync.Mutex
	open map[int]*mmap.ReaderAt
}

func newFileArchives(path func(number int) (string, error)) *fileArchives {
	return &fileArchives{path: path, open: map[int]*mmap.ReaderAt{}}
}

// localArchives opens the data.NNN files of a local install.
func localArchives(installDir string) *fileArchives {
	dir := filepath.Join(installDir, "Data", "data")
	return newFileArchives(func(number int) (string, error) {
		return filepath.Join(dir, archiveKey(number).String()), nil
	})
}

func (f *fileArchives) OpenArchive(number int) (io.ReaderAt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.open[number]; ok {
		return r, nil
	}
	p, err := f.path(number)
	if err != nil {
		return nil, err
	}
	r, err := mmap.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(StageArchive, archiveKey(number), err)
		}
		return nil, errors.WithStack(err)
	}
	f.open[number] = r
	return r, nil
}

func (f *fileArchives) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for n, r := range f.open {
		if err := r.Close(); err != nil && first == nil {
			first = errors.WithStack(err)
		}
		delete(f.open, n)
	}
	return first
}
