// Package mcp exposes fabric builds and question answering to AI assistants
// over the Model Context Protocol.
package mcp

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// Errors returned by NewServer when a port is missing.
var (
	ErrMissingFabricService     = errors.New("mcp: fabric service is required")
	ErrMissingBuildOrchestrator = errors.New("mcp: build orchestrator is required")
	ErrMissingResponder         = errors.New("mcp: responder is required")
)

// toolError rewrites a service error into the message shown to the
// assistant, with a next step where one is known.
func toolError(err error) error {
	if err == nil {
		return nil
	}

	var hint string
	switch {
	case errors.Is(err, domain.ErrNotFound):
		hint = "call list_fabrics for valid ids"
	case errors.Is(err, domain.ErrBuildInProgress):
		hint = "poll build_status until the build finishes"
	case errors.Is(err, domain.ErrNotReady):
		hint = "call start_build and wait for status ready"
	case errors.Is(err, domain.ErrChatAuth):
		hint = "the chat provider rejected its credentials; ask the user to check the API key"
	case errors.Is(err, domain.ErrChatRateLimit):
		hint = "the chat provider is rate limiting; retry later"
	case errors.Is(err, domain.ErrInvalidInput):
		hint = "check the tool arguments"
	default:
		var h domain.Hinter
		if errors.As(err, &h) {
			hint = h.Hint()
		}
		if hint == "" {
			hint = domain.Classify(err).Hint()
		}
	}

	if hint == "" {
		return err
	}
	return fmt.Errorf("%w (%s)", err, hint)
}
