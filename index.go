package casc

import (
	"bytes"
	"sort"

	"github.com/brecky/casc/common"
)

// RootIndex maps filename hashes to the root entries of every locale
// variant. It is immutable once built.
type RootIndex struct {
	entries []common.RootEntry
	byHash  map[uint64][]int
	names   map[uint64]string
}

// NewRootIndex indexes entries in manifest order. names maps hashes to the
// paths they were computed from, it may be nil.
func NewRootIndex(entries []common.RootEntry, names map[uint64]string) *RootIndex {
	idx := &RootIndex{
		entries: entries,
		byHash:  make(map[uint64][]int, len(entries)),
		names:   make(map[uint64]string, len(names)),
	}
	for i, e := range entries {
		if !common.ValidHash(e.NameHash) {
			continue
		}
		idx.byHash[e.NameHash] = append(idx.byHash[e.NameHash], i)
	}
	for h, n := range names {
		if _, ok := idx.byHash[h]; ok {
			idx.names[h] = n
		}
	}
	return idx
}

// Lookup returns every variant of hash in manifest order.
func (r *RootIndex) Lookup(hash uint64) []common.RootEntry {
	if !common.ValidHash(hash) {
		return nil
	}
	positions := r.byHash[hash]
	out := make([]common.RootEntry, 0, len(positions))
	for _, p := range positions {
		out = append(out, r.entries[p])
	}
	return out
}

// LookupLocale returns the variants of hash available in locale.
func (r *RootIndex) LookupLocale(hash uint64, locale common.LocaleFlags) []common.RootEntry {
	var out []common.RootEntry
	for _, e := range r.Lookup(hash) {
		if e.Locale.Has(locale) {
			out = append(out, e)
		}
	}
	return out
}

// Select picks the variant of hash to read for locale: the first one
// available in locale, else the first one.
func (r *RootIndex) Select(hash uint64, locale common.LocaleFlags) (common.RootEntry, bool) {
	variants := r.Lookup(hash)
	if len(variants) == 0 {
		return common.RootEntry{}, false
	}
	for _, e := range variants {
		if e.Locale.Has(locale) {
			return e, true
		}
	}
	return variants[0], true
}

// Name returns the path hash was computed from, when known.
func (r *RootIndex) Name(hash uint64) (string, bool) {
	n, ok := r.names[hash]
	return n, ok
}

// Names returns the known paths, sorted.
func (r *RootIndex) Names() []string {
	names := make([]string, 0, len(r.names))
	for _, n := range r.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Entries returns a copy of the entries sorted by name hash, variants in
// manifest order.
func (r *RootIndex) Entries() []common.RootEntry {
	out := append([]common.RootEntry{}, r.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].NameHash < out[j].NameHash })
	return out
}

// Len returns the number of entries, variants included.
func (r *RootIndex) Len() int {
	return len(r.entries)
}

// EncodingIndex maps content checksums to the blocks holding the content.
type EncodingIndex struct {
	entries map[common.ContentChecksum]common.EncodingEntry
}

// NewEncodingIndex indexes entries. Entries without keys are dropped, the
// first entry of a checksum wins.
func NewEncodingIndex(entries []common.EncodingEntry) *EncodingIndex {
	idx := &EncodingIndex{entries: make(map[common.ContentChecksum]common.EncodingEntry, len(entries))}
	for _, e := range entries {
		if len(e.Keys) == 0 {
			continue
		}
		if _, ok := idx.entries[e.Checksum]; !ok {
			idx.entries[e.Checksum] = e
		}
	}
	return idx
}

func (e *EncodingIndex) Lookup(checksum common.ContentChecksum) (common.EncodingEntry, bool) {
	entry, ok := e.entries[checksum]
	return entry, ok
}

// Entries returns the entries sorted by checksum.
func (e *EncodingIndex) Entries() []common.EncodingEntry {
	out := make([]common.EncodingEntry, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Checksum[:], out[j].Checksum[:]) < 0 })
	return out
}

func (e *EncodingIndex) Len() int {
	return len(e.entries)
}

// DataIndex maps block keys to their location in the archives.
type DataIndex struct {
	entries map[common.FileKey]common.IndexEntry
}

// NewDataIndex indexes entries. The first entry of a key wins, loaders
// pass the newest index files first.
func NewDataIndex(entries []common.IndexEntry) *DataIndex {
	idx := &DataIndex{entries: make(map[common.FileKey]common.IndexEntry, len(entries))}
	for _, e := range entries {
		if _, ok := idx.entries[e.Key]; !ok {
			idx.entries[e.Key] = e
		}
	}
	return idx
}

func (d *DataIndex) Lookup(key common.FileKey) (common.IndexEntry, bool) {
	entry, ok := d.entries[key]
	return entry, ok
}

// Entries returns the entries sorted by key.
func (d *DataIndex) Entries() []common.IndexEntry {
	out := make([]common.IndexEntry, 0, len(d.entries))
	for _, entry := range d.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key[:], out[j].Key[:]) < 0 })
	return out
}

func (d *DataIndex) Len() int {
	return len(d.entries)
}

// Indices groups the three lookup tables of a storage.
type Indices struct {
	Root     *RootIndex
	Encoding *EncodingIndex
	Data     *DataIndex
}
