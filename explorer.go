package casc

import (
	"bytes"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/brecky/casc/blte"
	"github.com/brecky/casc/common"
	arc "github.com/hashicorp/golang-lru/arc/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Ref designates a file by name or by filename hash.
type Ref struct {
	hash  uint64
	name  string
	named bool
}

// Name refers to a file by path. Separators and case do not matter.
func Name(filename string) Ref {
	return Ref{hash: common.FilenameHash(filename), name: filename, named: true}
}

// Hash refers to a file by the FilenameHash of its path.
func Hash(hash uint64) Ref {
	return Ref{hash: hash}
}

func (r Ref) Hash() uint64 {
	return r.hash
}

func (r Ref) String() string {
	if r.named {
		return r.name
	}
	return hashKey(r.hash).String()
}

// FileHeader holds up to the first four decoded bytes of a file, enough
// to recognise most formats by their magic.
type FileHeader struct {
	data [4]byte
	n    int
}

func (h FileHeader) Bytes() []byte {
	return h.data[:h.n]
}

func (h FileHeader) String() string {
	return hex.EncodeToString(h.Bytes())
}

// CascFile describes a file of the storage.
type CascFile struct {
	Hash   uint64
	Name   string // empty when the path is not known
	Header FileHeader
}

// Explorer allows to list and extract CASC files.
type Explorer struct {
	source  BlockSource
	indices Indices
	names   map[uint64]string
	opts    *options
	log     *slog.Logger

	headers     *arc.ARCCache[uint64, FileHeader]
	headerGroup singleflight.Group

	app     string
	version string
	closer  io.Closer
}

// NewExplorer reads files through src, locating them with indices.
func NewExplorer(src BlockSource, indices Indices, opts ...Option) (*Explorer, error) {
	return newExplorer(src, indices, newOptions(opts))
}

func newExplorer(src BlockSource, indices Indices, o *options) (*Explorer, error) {
	if src == nil {
		return nil, errors.New("nil block source")
	}
	if indices.Root == nil {
		indices.Root = NewRootIndex(nil, nil)
	}
	if indices.Encoding == nil {
		indices.Encoding = NewEncodingIndex(nil)
	}
	if indices.Data == nil {
		indices.Data = NewDataIndex(nil)
	}
	headers, err := arc.NewARC[uint64, FileHeader](o.headerCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e := &Explorer{
		source:  src,
		indices: indices,
		names:   map[uint64]string{},
		opts:    o,
		log:     o.logger,
		headers: headers,
	}
	for _, n := range indices.Root.Names() {
		e.names[common.FilenameHash(n)] = n
	}
	if o.listfile != "" {
		if err := e.loadListfile(o.listfile); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Explorer) loadListfile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	names, err := common.ParseListfile(f)
	if err != nil {
		return err
	}
	added := 0
	for h, n := range names {
		if _, ok := e.names[h]; ok {
			continue
		}
		if len(e.indices.Root.Lookup(h)) > 0 {
			e.names[h] = n
			added++
		}
	}
	e.log.Info("listfile loaded", "path", path, "names", len(names), "matched", added)
	return nil
}

// Version returns the version of the build, empty when unknown.
func (e *Explorer) Version() string {
	return e.version
}

// App returns the build product, empty when unknown.
func (e *Explorer) App() string {
	return e.app
}

// Close releases the archives opened by a loader.
func (e *Explorer) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

func (e *Explorer) encodingEntry(ref Ref) (common.EncodingEntry, error) {
	if !common.ValidHash(ref.hash) {
		return common.EncodingEntry{}, notFound(StageRoot, ref, ErrInvalidHash)
	}
	rootEntry, ok := e.indices.Root.Select(ref.hash, e.opts.locale)
	if !ok {
		return common.EncodingEntry{}, notFound(StageRoot, ref, nil)
	}
	entry, ok := e.indices.Encoding.Lookup(rootEntry.Checksum)
	if !ok {
		return common.EncodingEntry{}, notFound(StageEncoding, rootEntry.Checksum, nil)
	}
	return entry, nil
}

func locate(data *DataIndex, entry common.EncodingEntry) ([]common.IndexEntry, error) {
	located := make([]common.IndexEntry, 0, len(entry.Keys))
	for _, key := range entry.Keys {
		ie, ok := data.Lookup(key)
		if !ok {
			return nil, notFound(StageIndex, key, nil)
		}
		located = append(located, ie)
	}
	return located, nil
}

// readEntry reads and decodes the blocks of entry in order and checks they
// add up to the declared size. Single block files pass the declared size to
// the decoder, multi block files can only be checked as a whole.
func readEntry(src BlockSource, data *DataIndex, entry common.EncodingEntry, verify bool) ([]byte, error) {
	located, err := locate(data, entry)
	if err != nil {
		return nil, err
	}
	declared := entry.Size
	if entry.MultiBlock() {
		declared = blte.UnknownSize
	}
	var out []byte
	for _, ie := range located {
		raw, err := src.ReadBlock(ie)
		if err != nil {
			return nil, err
		}
		b, err := blte.Decode(raw, declared, blte.VerifyChecksums(verify))
		if err != nil {
			return nil, errors.Wrapf(err, "block %s", ie.Key)
		}
		out = append(out, b...)
	}
	if int64(len(out)) != entry.Size {
		return nil, errors.Wrapf(ErrIntegrity, "%s decoded to %d bytes, expected %d", entry.Checksum, len(out), entry.Size)
	}
	return out, nil
}

// IsFileAvailable reports whether every link of the chain of ref exists:
// root entry, encoding entry and the location of each block.
func (e *Explorer) IsFileAvailable(ref Ref) bool {
	entry, err := e.encodingEntry(ref)
	if err != nil {
		return false
	}
	_, err = locate(e.indices.Data, entry)
	return err == nil
}

// Resolve returns the decoded content of ref. The blocks of a file are
// concatenated in encoding entry order, whatever their physical placement.
func (e *Explorer) Resolve(ref Ref) ([]byte, error) {
	entry, err := e.encodingEntry(ref)
	if err != nil {
		return nil, err
	}
	e.log.Debug("resolve", "file", ref.String(), "checksum", entry.Checksum.String(), "blocks", len(entry.Keys))
	b, err := readEntry(e.source, e.indices.Data, entry, e.opts.verifyChecksums)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", ref)
	}
	return b, nil
}

// Extract extracts the file with the given filename.
func (e *Explorer) Extract(filename string) ([]byte, error) {
	return e.Resolve(Name(filename))
}

// Open returns a reader over the decoded content of ref.
func (e *Explorer) Open(ref Ref) (io.ReadSeeker, error) {
	b, err := e.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// FileReader returns a reader over the decoded content of f.
func (e *Explorer) FileReader(f CascFile) (io.ReadSeeker, error) {
	return e.Open(Hash(f.Hash))
}

// BlockReader decodes a single block as it is read.
func (e *Explorer) BlockReader(entry common.IndexEntry) (io.Reader, error) {
	raw, err := e.source.ReadBlock(entry)
	if err != nil {
		return nil, err
	}
	return blte.NewReader(bytes.NewReader(raw))
}

// Header returns the first decoded bytes of ref. Only the leading chunks
// are decoded, results are memoised and concurrent first requests for the
// same file share one decode.
func (e *Explorer) Header(ref Ref) (FileHeader, error) {
	if h, ok := e.headers.Get(ref.hash); ok {
		return h, nil
	}
	v, err, _ := e.headerGroup.Do(strconv.FormatUint(ref.hash, 16), func() (interface{}, error) {
		if h, ok := e.headers.Get(ref.hash); ok {
			return h, nil
		}
		h, err := e.readHeader(ref)
		if err != nil {
			return nil, err
		}
		e.headers.Add(ref.hash, h)
		return h, nil
	})
	if err != nil {
		return FileHeader{}, err
	}
	return v.(FileHeader), nil
}

func (e *Explorer) readHeader(ref Ref) (FileHeader, error) {
	entry, err := e.encodingEntry(ref)
	if err != nil {
		return FileHeader{}, err
	}
	located, err := locate(e.indices.Data, entry)
	if err != nil {
		return FileHeader{}, err
	}
	declared := entry.Size
	if entry.MultiBlock() {
		declared = blte.UnknownSize
	}
	h := FileHeader{}
	for _, ie := range located {
		raw, err := e.source.ReadBlock(ie)
		if err != nil {
			return FileHeader{}, err
		}
		f, err := blte.Parse(raw, declared)
		if err != nil {
			return FileHeader{}, errors.Wrapf(err, "%s block %s", ref, ie.Key)
		}
		for _, c := range f.Chunks {
			b, err := c.Decompress(blte.VerifyChecksums(e.opts.verifyChecksums))
			if err != nil {
				return FileHeader{}, errors.Wrapf(err, "%s block %s", ref, ie.Key)
			}
			h.n += copy(h.data[h.n:], b)
			if h.n == len(h.data) {
				return h, nil
			}
		}
	}
	return h, nil
}

// File describes ref: its hash, its path when known and its header.
func (e *Explorer) File(ref Ref) (CascFile, error) {
	h, err := e.Header(ref)
	if err != nil {
		return CascFile{}, err
	}
	f := CascFile{Hash: ref.hash, Header: h}
	if n, ok := e.names[ref.hash]; ok {
		f.Name = n
	} else if ref.named {
		f.Name = ref.name
	}
	return f, nil
}

// Files enumerates the paths of the files whose name is known, sorted.
func (e *Explorer) Files() []string {
	names := make([]string, 0, len(e.names))
	for _, n := range e.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RootEntries returns every root entry, sorted by filename hash.
func (e *Explorer) RootEntries() []common.RootEntry {
	return e.indices.Root.Entries()
}

// EncodingEntries returns every encoding entry, sorted by checksum.
func (e *Explorer) EncodingEntries() []common.EncodingEntry {
	return e.indices.Encoding.Entries()
}

// IndexEntries returns every data index entry, sorted by key.
func (e *Explorer) IndexEntries() []common.IndexEntry {
	return e.indices.Data.Entries()
}
