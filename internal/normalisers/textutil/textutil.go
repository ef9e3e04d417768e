// Package textutil holds small text helpers shared by the normalisers.
package textutil

import (
	"path/filepath"
	"strings"
)

// TitleFromPath derives a readable title from a file name: the extension is
// dropped and underscores and hyphens become spaces.
func TitleFromPath(uri string) string {
	name := filepath.Base(uri)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}

// NonEmptyLines trims every line and drops the blank ones.
func NonEmptyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
