// Package tui renders a live view of a fabric build in the terminal.
package tui

import (
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
)

// Ports aggregates the driving ports the watcher needs.
type Ports struct {
	// Builds reports build progress.
	Builds driving.BuildOrchestrator
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Builds == nil {
		return ErrMissingBuildOrchestrator
	}
	return nil
}
