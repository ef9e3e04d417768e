// Package upload provides the DocumentSource for files uploaded into a
// local directory. Files are read through the normaliser registry, and
// Watch streams fsnotify changes so a fabric can be rebuilt when the
// directory changes.
package upload
