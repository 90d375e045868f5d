package overwatch

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/brecky/casc/common"
	"github.com/pkg/errors"
)

// NewRoot decodes the csv root manifest of Overwatch:
// #FILEID|MD5|CHUNK_ID|PRIORITY|MPRIORITY|FILENAME|INSTALLPATH
func NewRoot(root []byte) (common.RootManifest, error) {
	r := csv.NewReader(bytes.NewReader(root))
	r.Comma = '|'
	r.Comment = '#'
	r.FieldsPerRecord = -1
	lines, err := r.ReadAll()
	if err != nil {
		return common.RootManifest{}, errors.Wrapf(common.ErrFormat, "csv root: %v", err)
	}
	if len(lines) == 0 {
		return common.RootManifest{}, errors.Wrap(common.ErrFormat, "empty csv root")
	}
	m := common.RootManifest{Names: map[uint64]string{}}
	for i, line := range lines {
		if len(line) < 6 {
			return m, errors.Wrapf(common.ErrFormat, "csv root row %d has %d columns", i, len(line))
		}
		checksum, err := common.ParseContentChecksum(line[1])
		if err != nil {
			return m, errors.Wrapf(common.ErrFormat, "csv root row %d: invalid md5", i)
		}
		name := common.CleanPath(line[5])
		hash := common.FilenameHash(name)
		if !common.ValidHash(hash) {
			continue
		}
		if _, ok := m.Names[hash]; !ok {
			m.Names[hash] = name
		}
		e := common.RootEntry{NameHash: hash, Checksum: checksum, Locale: common.LocaleAll}
		if id, err := strconv.ParseUint(line[0], 16, 32); err == nil {
			e.FileDataID = uint32(id)
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}
