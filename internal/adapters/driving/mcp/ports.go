package mcp

import (
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server calls.
type Ports struct {
	// Fabrics lists and reads fabric records.
	Fabrics driving.FabricService

	// Builds starts builds and reports their progress.
	Builds driving.BuildOrchestrator

	// Responder answers questions against ready fabrics.
	Responder driving.Responder
}

// Validate returns an error naming the first missing port.
func (p *Ports) Validate() error {
	switch {
	case p.Fabrics == nil:
		return ErrMissingFabricService
	case p.Builds == nil:
		return ErrMissingBuildOrchestrator
	case p.Responder == nil:
		return ErrMissingResponder
	}
	return nil
}
