package codeforces

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindNotFound - the handle does not exist.
	KindNotFound Kind = iota + 1
	// KindRateLimited - Codeforces refused the call because of its call limit.
	KindRateLimited
	// KindTransportFailure - the call never produced a usable response.
	KindTransportFailure
	// KindUpstreamError - Codeforces answered with an error.
	KindUpstreamError
)

// String returns the kind name used in logs and API responses.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTransportFailure:
		return "transport_failure"
	case KindUpstreamError:
		return "upstream_error"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on a kind.
var (
	ErrNotFound         = errors.New("codeforces: not found")
	ErrRateLimited      = errors.New("codeforces: rate limited")
	ErrTransportFailure = errors.New("codeforces: transport failure")
	ErrUpstreamError    = errors.New("codeforces: upstream error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindTransportFailure:
		return ErrTransportFailure
	default:
		return ErrUpstreamError
	}
}

func (k Kind) domainKind() error {
	switch k {
	case KindNotFound:
		return shared.ErrNotFound
	case KindRateLimited:
		return shared.ErrRateLimited
	default:
		return shared.ErrUnavailable
	}
}

// Error is returned by every failed client call.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the API method, e.g. "user.status".
	Op string

	// Detail is the upstream comment or a short description.
	Detail string

	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int

	// RetryAfter is set for rate-limit responses that carried a hint.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("codeforces %s: %s", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel and the corresponding shared error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel() || target == e.Kind.domainKind()
}

// KindOf extracts the kind of a client error, 0 when err is not one.
func KindOf(err error) Kind {
	var cfErr *Error
	if errors.As(err, &cfErr) {
		return cfErr.Kind
	}
	return 0
}

// classifyComment maps a FAILED comment to a kind.
// Codeforces reports unknown handles as "handle: User with handle x not found".
func classifyComment(comment string) Kind {
	c := strings.ToLower(comment)
	switch {
	case strings.Contains(c, "not found"):
		return KindNotFound
	case strings.Contains(c, "call limit exceeded"):
		return KindRateLimited
	default:
		return KindUpstreamError
	}
}
