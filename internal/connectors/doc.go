// Package connectors wires document sources to fabric source
// configuration. Each subpackage implements driven.DocumentSource for one
// kind of source (upload, servicenow, sharepoint, demo), and Factory
// selects between them.
package connectors
