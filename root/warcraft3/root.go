package warcraft3

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/brecky/casc/common"
	"github.com/pkg/errors"
)

// NewRoot decodes the text root manifest of Warcraft III and StarCraft:
// one "name|ckey" line per file, optionally followed by a locale column.
func NewRoot(root []byte) (common.RootManifest, error) {
	m := common.RootManifest{Names: map[uint64]string{}}
	scanner := bufio.NewScanner(bytes.NewReader(root))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		splits := strings.Split(text, "|")
		if len(splits) < 2 {
			return m, errors.Wrapf(common.ErrFormat, "invalid text root line %d", line)
		}
		checksum, err := common.ParseContentChecksum(splits[1])
		if err != nil {
			return m, errors.Wrapf(common.ErrFormat, "text root line %d: %v", line, err)
		}
		locale := common.LocaleAll
		if len(splits) > 2 {
			if l, err := common.ParseLocale(splits[2]); err == nil {
				locale = l
			}
		}
		name := common.CleanPath(splits[0])
		hash := common.FilenameHash(name)
		if !common.ValidHash(hash) {
			continue
		}
		if _, ok := m.Names[hash]; !ok {
			m.Names[hash] = name
		}
		m.Entries = append(m.Entries, common.RootEntry{
			NameHash: hash,
			Checksum: checksum,
			Locale:   locale,
		})
	}
	if err := scanner.Err(); err != nil {
		return m, errors.WithStack(err)
	}
	return m, nil
}
