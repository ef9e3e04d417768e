package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a compare-and-swap write lost against a concurrent writer.
	ErrConflict = errors.New("concurrent modification")

	// Build Errors.

	// ErrBuildInProgress indicates a build is already running for the fabric.
	ErrBuildInProgress = errors.New("build in progress")

	// ErrFabricBusy indicates the fabric is being deleted or otherwise locked.
	ErrFabricBusy = errors.New("fabric busy")

	// ErrNotReady indicates a query was issued against a fabric that is not ready.
	// This is a precondition failure, not a retryable error.
	ErrNotReady = errors.New("fabric not ready")

	// Pipeline Error Categories.

	// ErrSourceUnavailable indicates the document source is unreachable or misconfigured.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrEmbeddingFailure indicates every embedding provider was exhausted,
	// or a provider returned a vector of the wrong dimension.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrDimensionMismatch indicates vectors of differing length were mixed.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexInconsistency indicates the vector collection is missing or
	// holds vectors that do not match the expected dimension.
	ErrIndexInconsistency = errors.New("index inconsistency")

	// ErrConfiguration indicates invalid chunk parameters or an unresolvable model name.
	ErrConfiguration = errors.New("configuration error")

	// ErrNoRelevantContent indicates a query against a ready fabric matched nothing.
	ErrNoRelevantContent = errors.New("no relevant content")

	// Chat Provider Errors.

	// ErrChatProvider indicates a generic chat completion failure.
	ErrChatProvider = errors.New("chat provider failure")

	// ErrChatAuth indicates the chat provider rejected the credentials.
	ErrChatAuth = errors.New("chat provider authentication failed")

	// ErrChatRateLimit indicates the chat provider rate limit was exceeded.
	ErrChatRateLimit = errors.New("chat provider rate limited")
)
