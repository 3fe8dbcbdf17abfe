package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDirName is the store directory looked up inside a project.
const DefaultDirName = ".mind"

// Locate finds the store root. projectDir, when set and already holding a
// store, wins. Otherwise the search walks up from start for at most
// maxWalkUp levels. If nothing is found an empty store is created in start.
func Locate(projectDir, start, dirName string, maxWalkUp int) (string, error) {
	if dirName == "" {
		dirName = DefaultDirName
	}
	if projectDir != "" {
		candidate := filepath.Join(projectDir, dirName)
		if isDir(candidate) {
			return filepath.Abs(candidate)
		}
	}

	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("storage: getwd: %w", err)
		}
		start = wd
	}
	start, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("storage: resolve start: %w", err)
	}

	current := start
	for i := 0; i < maxWalkUp; i++ {
		candidate := filepath.Join(current, dirName)
		if isDir(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	fallback := filepath.Join(start, dirName)
	if err := os.MkdirAll(fallback, 0o755); err != nil {
		return "", fmt.Errorf("storage: create store root: %w", err)
	}
	return fallback, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
