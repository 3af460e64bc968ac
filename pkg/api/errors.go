package api

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ErrRecordNotFound is returned for a patch against an unknown identifier.
var ErrRecordNotFound = errors.New("record not found")

// APIError is a request failure with classification and retry eligibility.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error

	// RetryEligible marks whether the dispatch layer may retry the request.
	RetryEligible bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acx %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("acx %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may be made.
func (e *APIError) Retryable() bool {
	return e.RetryEligible
}

// classify categorizes a response status for observability and retry policy.
func classify(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// retryEligible maps an error class to retry eligibility. The service
// reports transient conditions across the whole status range, so every
// class is currently eligible; tightening a class (e.g. excluding client
// errors) is a one-line change here.
func retryEligible(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		return true
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return true
	}
}
