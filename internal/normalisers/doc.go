// Package normalisers extracts plain text from the file formats that
// document sources return. Each subpackage implements driven.Normaliser
// for a family of MIME types, and Registry dispatches between them by
// MIME type and priority.
package normalisers
