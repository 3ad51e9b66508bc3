package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// PathExists reports whether anything exists at path.
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// MakeParentDirectory creates the directory that will hold path.
func MakeParentDirectory(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to make directory %s: %w", dir, err)
	}
	return nil
}
