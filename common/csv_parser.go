package common

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ParseCSV parses the "|" separated tables used by .build.info and version
// files. The header line names each column as "Name!TYPE:size". Every
// column listed in required must be present.
func ParseCSV(r io.Reader, required ...string) ([]map[string]string, error) {
	var columns []string
	csv := []map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if columns == nil { //column names
			for _, col := range strings.Split(line, "|") {
				idx := strings.Index(col, "!")
				if idx < 0 {
					return nil, errors.Wrapf(ErrFormat, "invalid csv column %q", col)
				}
				columns = append(columns, col[:idx])
			}
			for _, name := range required {
				if !containsString(columns, name) {
					return nil, errors.Wrapf(ErrFormat, "csv column %q not found", name)
				}
			}
			continue
		}
		//rows
		values := strings.Split(line, "|")
		if len(columns) != len(values) {
			return nil, errors.Wrapf(ErrFormat, "csv row has %d values, expected %d", len(values), len(columns))
		}
		row := make(map[string]string, len(columns))
		for idx, value := range values {
			row[columns[idx]] = value
		}
		csv = append(csv, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if columns == nil {
		return nil, errors.Wrap(ErrFormat, "empty csv")
	}
	return csv, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
