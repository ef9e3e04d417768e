// Package messages defines the Bubbletea messages of the build watcher.
package messages

import (
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// StatusPolled carries the result of one status poll.
type StatusPolled struct {
	Fabric *domain.Fabric

	// Running reports whether the orchestrator still has the build in flight.
	Running bool

	Err error
}

// PollDue asks the watcher to poll again.
type PollDue struct{}
