package utils

import (
	"path/filepath"
	"testing"
)

func TestKeyToFilename(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"simple", "simple.cache"},
		{"layout/para/12", "layout_para_12.cache"},
		{`win\style\key`, "win_style_key.cache"},
		{"mixed/and\\both", "mixed_and_both.cache"},
		{"", ".cache"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := KeyToFilename(tt.key); got != tt.want {
				t.Errorf("KeyToFilename(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestIsCacheFile(t *testing.T) {
	if !IsCacheFile("a.cache") {
		t.Error("a.cache should be a cache file")
	}
	if IsCacheFile(".cache") {
		t.Error("bare suffix should not count")
	}
	if IsCacheFile("a.tmp") {
		t.Error("a.tmp should not be a cache file")
	}
}

func TestSecureJoin(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name     string
		elements []string
		wantErr  bool
	}{
		{"plain file", []string{"a.cache"}, false},
		{"dotted key", []string{"...cache"}, false},
		{"traversal", []string{"..", "etc"}, true},
		{"base itself", []string{"."}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SecureJoin(base, tt.elements...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("SecureJoin(%v) = %q, want error", tt.elements, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SecureJoin(%v) unexpected error: %v", tt.elements, err)
			}
			if filepath.Dir(got) != filepath.Clean(base) {
				t.Errorf("SecureJoin(%v) = %q, not inside %q", tt.elements, got, base)
			}
		})
	}

	if _, err := SecureJoin("", "a"); err == nil {
		t.Error("empty base should fail")
	}
}
