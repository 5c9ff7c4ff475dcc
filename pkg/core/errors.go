package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of a client or exchange error.
type ErrorType int

// Error type constants categorize errors for handling and retry decisions.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a network connectivity issue.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeEncoding indicates local serialization of the request failed.
	ErrorTypeEncoding
	// ErrorTypeRateLimit indicates a rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeAuthentication indicates invalid or expired credentials.
	ErrorTypeAuthentication
	// ErrorTypeBadRequest indicates invalid request parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates the requested resource does not exist.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a server-side error.
	ErrorTypeServerError
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"TIMEOUT",
		"ENCODING",
		"RATE_LIMIT",
		"AUTHENTICATION",
		"BAD_REQUEST",
		"NOT_FOUND",
		"SERVER_ERROR",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrStreamClosed is returned when attempting to use a closed stream.
	ErrStreamClosed = errors.New("stream is closed")
	// ErrNotConnected is returned when the connection is not established.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrNoCredentials is returned when a signed call is attempted without
	// a configured authenticator.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrCircuitOpen is returned when the client's circuit breaker is
	// rejecting requests after repeated upstream failures.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CredentialError reports malformed secret material. It is surfaced at
// authenticator or credential construction time, never per request, and
// is not retryable.
type CredentialError struct {
	Reason string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential: %s", e.Reason)
}

// TransportError reports that a request could not be completed at the
// transport level. HTTP responses carrying error status codes are not
// transport errors; those return a populated Response instead.
type TransportError struct {
	// Type is one of ErrorTypeNetwork, ErrorTypeTimeout or ErrorTypeEncoding.
	Type ErrorType
	// URL is the request target, when known.
	URL string
	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transport %s: %s: %v", e.Type, e.URL, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Type, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response body that did not match the expected
// structure. Raw preserves the full payload for diagnosis.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response: %v (raw: %s)", e.Err, truncate(e.Raw, 256))
}

func (e *DecodeError) Unwrap() error { return e.Err }

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ExchangeError represents a structured business error returned by an
// exchange over HTTP. It provides detailed context for debugging and
// error handling.
type ExchangeError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code from the response.
	StatusCode int `json:"status_code"`
	// Code is the exchange-specific error code.
	Code string `json:"code"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// RawBody is the original response payload for diagnosis.
	RawBody []byte `json:"raw_body,omitempty"`
	// Exchange identifies which exchange returned this error.
	Exchange string `json:"exchange"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for ExchangeError.
// It returns a formatted string with exchange name, error type, status code, and message.
func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Exchange, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Exchange, e.Type, e.StatusCode, e.Message)
}

// WithCode returns the error with the exchange-specific code set.
func (e *ExchangeError) WithCode(code ErrorCode) *ExchangeError {
	e.Code = string(code)
	return e
}

// NewExchangeError creates a new ExchangeError with the specified details.
// The timestamp is automatically set to the current time.
func NewExchangeError(exchange string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// ClassifyStatus maps an HTTP status code to an error type. The mapping
// follows the conventions shared by the supported exchanges; adapters
// refine it further from exchange error codes.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeAuthentication
	case status == 404:
		return ErrorTypeNotFound
	case status == 429 || status == 418:
		return ErrorTypeRateLimit
	case status >= 500:
		return ErrorTypeServerError
	case status >= 400:
		return ErrorTypeBadRequest
	default:
		return ErrorTypeUnknown
	}
}

func errType(err error) (ErrorType, bool) {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Type, true
	}
	var trErr *TransportError
	if errors.As(err, &trErr) {
		return trErr.Type, true
	}
	return ErrorTypeUnknown, false
}

// IsNetworkError returns true if the error is a network connectivity issue.
// Network errors are typically retryable.
func IsNetworkError(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeNetwork
}

// IsTimeoutError returns true if the error is a timeout.
// Timeout errors are typically retryable with a longer deadline.
func IsTimeoutError(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeTimeout
}

// IsRateLimitError returns true if the error is a rate limit violation.
// Rate limit errors should be retried after a delay.
func IsRateLimitError(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeRateLimit
}

// IsAuthenticationError returns true if the error is an authentication
// failure. Authentication errors require credential review and are not
// retryable.
func IsAuthenticationError(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrorTypeAuthentication
}
