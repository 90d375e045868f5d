package common

import (
	"bufio"
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// parseConfig reads the "key = value" lines of build and CDN configs.
func parseConfig(r io.Reader) (map[string]string, error) {
	cfg := map[string]string{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024) // archives lines are long
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, " = ")
		if i <= 0 {
			continue
		}
		cfg[line[0:i]] = strings.TrimSpace(line[i+3:])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}

func configToHashes(cfg map[string]string, name string) ([][]byte, error) {
	v, ok := cfg[name]
	if !ok {
		return nil, errors.Wrapf(ErrFormat, "%s not found in config", name)
	}
	hashes := [][]byte{}
	for _, s := range strings.Fields(v) {
		hash, err := hex.DecodeString(s)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "%s: %v", name, err)
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}
