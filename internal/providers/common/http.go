package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"booktrack/searchservice/internal/domain"
	"booktrack/searchservice/internal/metrics"
)

const (
	minQueryLength = 2
	maxQueryLength = 500
)

// ValidateQuery trims the raw query and enforces the 2..500 length contract
// shared by every catalog provider.
func ValidateQuery(raw string) (string, error) {
	query := strings.TrimSpace(raw)
	if len(query) < minQueryLength || len(query) > maxQueryLength {
		return "", domain.ErrInvalidQuery
	}
	return query, nil
}

// ClassifyStatus maps an upstream HTTP status to the provider failure
// taxonomy. Callers pass a short body excerpt for the error message.
func ClassifyStatus(provider string, status int, body []byte) error {
	excerpt := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s HTTP %d: %w", provider, status, domain.ErrRateLimited)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%s HTTP %d: %w", provider, status, domain.ErrUpstreamServer)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s HTTP %d: %w", provider, status, domain.ErrNotFound)
	case status >= http.StatusBadRequest:
		return fmt.Errorf("%s HTTP %d: %s: %w", provider, status, excerpt, domain.ErrUpstreamBadRequest)
	default:
		return fmt.Errorf("%s unexpected HTTP %d: %s", provider, status, excerpt)
	}
}

// WrapTransport converts transport-level failures (dial, TLS, deadline)
// into the taxonomy; context deadlines become ErrTimeout.
func WrapTransport(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", provider, domain.ErrTimeout)
	}
	return fmt.Errorf("%s request failed: %w", provider, err)
}

// ObserveCall records per-call latency and a categorized status counter.
func ObserveCall(provider string, err error, latency time.Duration) {
	metrics.ProviderRequestDuration.WithLabelValues(provider).Observe(latency.Seconds())
	metrics.ProviderRequestsTotal.WithLabelValues(provider, StatusLabel(err)).Inc()
}

// StatusLabel buckets an error for metrics cardinality.
func StatusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrUpstreamServer):
		return "server_error"
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrUpstreamBadRequest):
		return "bad_request"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
