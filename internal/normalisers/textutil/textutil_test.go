package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleFromPath(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"/docs/my_document.html", "my document"},
		{"/docs/release-notes.md", "release notes"},
		{"readme", "readme"},
		{"/docs/archive.tar.gz", "archive.tar"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromPath(tt.uri))
		})
	}
}

func TestNonEmptyLines(t *testing.T) {
	assert.Equal(t, "a\nb", NonEmptyLines("  a  \n\n\t\n b"))
	assert.Equal(t, "", NonEmptyLines("\n \n"))
}
