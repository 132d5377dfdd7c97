package domain

import "errors"

// Failure taxonomy surfaced by the search subsystem. Providers wrap upstream
// HTTP failures into these sentinels so the orchestrator and the HTTP layer
// can branch with errors.Is without parsing messages.
var (
	ErrInvalidQuery    = errors.New("query must be between 2 and 500 characters")
	ErrInvalidOffset   = errors.New("offset must be >= 0")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoProviders     = errors.New("no search providers configured")

	ErrRateLimited        = errors.New("upstream rate limit exceeded")
	ErrUpstreamServer     = errors.New("upstream server error")
	ErrUpstreamBadRequest = errors.New("upstream rejected request")
	ErrTimeout            = errors.New("upstream call timed out")
	ErrNotFound           = errors.New("record not found")

	ErrServiceUnavailable = errors.New("search temporarily unavailable")
)
