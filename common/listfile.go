package common

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ParseListfile reads a list of file paths, one per line, and maps their
// FilenameHash to the path. Lines may use the "fileDataID;path" form of
// community listfiles. Blank lines are ignored.
func ParseListfile(r io.Reader) (map[uint64]string, error) {
	names := map[uint64]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[i+1:]
		}
		hash := FilenameHash(line)
		if !ValidHash(hash) {
			continue
		}
		if _, ok := names[hash]; !ok {
			names[hash] = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return names, nil
}

// CleanPath converts a root manifest path to forward slashes.
func CleanPath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
