package fileutil

import (
	"fmt"
	"os"
	"strings"
)

// EnsureLine makes sure a config file contains exactly one line starting
// with the given prefix, with the given content. If a line with the prefix
// already exists it is replaced in place; otherwise the line is appended.
// Returns true if the file was modified.
func EnsureLine(path, prefix, line string, perm os.FileMode) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	lines := []string{}
	if len(data) > 0 {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	}

	replaced := false
	changed := false
	for i, existing := range lines {
		if strings.HasPrefix(strings.TrimSpace(existing), prefix) {
			if existing != line {
				lines[i] = line
				changed = true
			}
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, line)
		changed = true
	}

	if !changed {
		return false, nil
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}
