package client

import (
	"errors"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted marks the result synthesized when transient failures
	// outlast the retry budget.
	ErrRetryExhausted = errors.New("max retries exceeded")

	// ErrMissingBaseURL is returned by New when no base URL is configured.
	ErrMissingBaseURL = errors.New("base url is required")
)

// ExhaustedBody is the body of the synthesized retry-exhaustion result.
const ExhaustedBody = "Max retries exceeded"

// ErrorClass represents a classification of a request outcome.
type ErrorClass string

const (
	// ErrorClassNone is a 200 response.
	ErrorClassNone ErrorClass = ""

	// ErrorClassTransient represents 429 and 502 responses.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassClient represents other 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents other 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassOther represents any remaining non-200 status.
	ErrorClassOther ErrorClass = "other"
)

// Classify maps a status code to its error class.
func Classify(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusOK:
		return ErrorClassNone
	case isTransient(statusCode):
		return ErrorClassTransient
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassOther
	}
}

// isTransient reports whether a status is retried. Everything else that is
// not 200, including 500, fails without retry.
func isTransient(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusBadGateway
}
