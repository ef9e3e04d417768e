package tui

import "errors"

// ErrMissingBuildOrchestrator is returned when no orchestrator is provided.
var ErrMissingBuildOrchestrator = errors.New("tui: build orchestrator is required")

// ErrCancelled is returned by Run when the user quits before the build ends.
var ErrCancelled = errors.New("tui: watch cancelled")
