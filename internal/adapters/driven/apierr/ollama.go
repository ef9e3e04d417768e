package apierr

import (
	"errors"

	"github.com/ollama/ollama/api"
)

// Ollama maps an ollama client error onto APIError or TransportError.
func Ollama(err error) error {
	if err == nil {
		return nil
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &APIError{
			Provider:   "ollama",
			StatusCode: statusErr.StatusCode,
			Message:    truncate(statusErr.ErrorMessage),
		}
	}
	return Transport("ollama", err)
}
