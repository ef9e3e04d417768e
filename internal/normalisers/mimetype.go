package normalisers

import (
	"mime"
	"path/filepath"
	"strings"
)

// extensionTypes covers extensions the platform MIME table may lack or
// disagree on.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".log":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".json":     "application/json",
	".html":     "text/html",
	".htm":      "text/html",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
}

// DetectMIMEType maps a file name to a MIME type without parameters.
// Names without an extension are treated as plain text.
func DetectMIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "text/plain"
	}
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			return parsed
		}
		return mt
	}
	return "application/octet-stream"
}
