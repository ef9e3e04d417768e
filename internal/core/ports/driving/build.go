package driving

import (
	"context"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// BuildOrchestrator runs fabric builds in the background.
type BuildOrchestrator interface {
	// StartBuild accepts a build and returns immediately with the initial
	// state and an estimated completion window. A second request for the
	// same fabric while one is in flight returns domain.ErrBuildInProgress.
	StartBuild(ctx context.Context, fabricID string) (*domain.BuildTicket, error)

	// Status returns the current fabric record.
	Status(ctx context.Context, fabricID string) (*domain.Fabric, error)

	// Wait blocks until no build is in flight for the fabric, then returns
	// its record.
	Wait(ctx context.Context, fabricID string) (*domain.Fabric, error)

	// Running reports whether a build is in flight for the fabric.
	Running(fabricID string) bool

	// Shutdown cancels in-flight builds and waits for them to stop.
	Shutdown(ctx context.Context) error
}
