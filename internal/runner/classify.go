package runner

import (
	"net/http"

	"marketpulse/apps/worker/internal/upstream"
)

// ErrorClass is the failure taxonomy driving retry policy selection.
type ErrorClass int

const (
	// ClassNone marks a successful outcome.
	ClassNone ErrorClass = iota
	// ClassValidation covers malformed job payloads. Fatal, never retried.
	ClassValidation
	// ClassTransport covers timeouts and connection failures.
	ClassTransport
	// ClassRateLimit covers explicit throttling responses.
	ClassRateLimit
	// ClassAccessDenied covers blocked/forbidden responses, typically
	// anti-automation defenses. Retried under the fast-fail budget.
	ClassAccessDenied
	// ClassServer covers 5xx and other unexpected upstream responses.
	ClassServer
	// ClassUnavailable marks a cycle where the breaker refused the call.
	ClassUnavailable
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassValidation:
		return "validation"
	case ClassTransport:
		return "transport"
	case ClassRateLimit:
		return "rate_limit"
	case ClassAccessDenied:
		return "access_denied"
	case ClassServer:
		return "server"
	case ClassUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Classify maps an upstream outcome to its failure class. A transport-level
// error takes precedence; otherwise the HTTP status decides. Unexpected 4xx
// responses fall into the server class and get the standard backoff.
func Classify(out upstream.Outcome, callErr error) ErrorClass {
	switch {
	case callErr != nil:
		return ClassTransport
	case out.OK:
		return ClassNone
	case out.HTTPStatus == http.StatusForbidden:
		return ClassAccessDenied
	case out.HTTPStatus == http.StatusTooManyRequests:
		return ClassRateLimit
	default:
		return ClassServer
	}
}

func classFromString(s string) ErrorClass {
	for _, c := range []ErrorClass{ClassValidation, ClassTransport, ClassRateLimit, ClassAccessDenied, ClassServer, ClassUnavailable} {
		if c.String() == s {
			return c
		}
	}
	return ClassNone
}
