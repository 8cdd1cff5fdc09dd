// Package reasoning talks to the LLM providers that perform stage analysis.
//
// Every provider client satisfies Reasoner. Transient provider failures
// (network errors, timeouts, HTTP 429 and 5xx) match ErrReasoningUnavailable
// so callers can decide whether a retry is worthwhile.
package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrReasoningUnavailable marks transient provider failures.
var ErrReasoningUnavailable = errors.New("reasoning provider unavailable")

// Request is one reasoning invocation: a fixed system mandate plus the
// materials (document chunks and upstream findings) it applies to.
type Request struct {
	System    string
	Materials string
}

// Reasoner performs a single reasoning invocation.
type Reasoner interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("retryable error: %s", truncate(e.Message, 200))
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrReasoningUnavailable)
}

func unavailable(status int, msg string) error {
	return errors.Mark(&RetryableError{StatusCode: status, Message: msg}, ErrReasoningUnavailable)
}

func transportFailure(err error, provider string) error {
	return errors.Mark(errors.Wrapf(err, "%s api", provider), ErrReasoningUnavailable)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Provider names an LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderMistral   Provider = "mistral"
	ProviderAuto      Provider = "auto"
)

// ParseProvider converts a configuration string to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "mistral":
		return ProviderMistral, nil
	case "auto", "":
		return ProviderAuto, nil
	default:
		return "", errors.WithHint(
			errors.Newf("unknown reasoning provider: %q", s),
			"valid providers: anthropic, mistral, auto")
	}
}
