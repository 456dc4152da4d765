package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CacheFileSuffix is appended to every disk-tier file name.
const CacheFileSuffix = ".cache"

var keyReplacer = strings.NewReplacer("/", "_", "\\", "_")

// KeyToFilename maps a cache key to its disk-tier file name: path
// separators become "_" and the ".cache" suffix is appended. Distinct keys
// that differ only in separator characters share a file.
func KeyToFilename(key string) string {
	return keyReplacer.Replace(key) + CacheFileSuffix
}

// IsCacheFile reports whether name looks like a disk-tier file.
func IsCacheFile(name string) bool {
	return strings.HasSuffix(name, CacheFileSuffix) && len(name) > len(CacheFileSuffix)
}

// SecureJoin joins path elements and ensures the result stays within base.
//
//	p, err := SecureJoin(dir, KeyToFilename(key))
//	if err != nil {
//		return fmt.Errorf("invalid key: %w", err)
//	}
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}
