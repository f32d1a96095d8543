package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CreateFilePathOnDisk returns a path that does not collide with an existing
// file. Unless overwrite is set, " (n)" is inserted before the extension
// until a free path is found or maxAttempts suffixes were tried, in which
// case the last candidate is returned even though it exists.
func CreateFilePathOnDisk(filePath string, overwrite bool, maxAttempts int) string {
	if overwrite {
		return filePath
	}

	base, ext := splitExt(filePath)
	candidate := filePath
	for attempt := 1; exists(candidate) && attempt <= maxAttempts; attempt++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, attempt, ext)
	}
	return candidate
}

// splitExt treats dotfiles such as ".env" as having no extension.
func splitExt(filePath string) (string, string) {
	ext := filepath.Ext(filePath)
	if ext == filepath.Base(filePath) {
		ext = ""
	}
	return strings.TrimSuffix(filePath, ext), ext
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
