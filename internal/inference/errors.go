package inference

import (
	"errors"
	"fmt"
)

// ErrorKind classifies inference failures.
type ErrorKind string

const (
	// KindUnsupportedContent: the request holds a construct the provider
	// cannot express. Raised before any network call.
	KindUnsupportedContent ErrorKind = "unsupported_content"
	// KindInvalidRequest: the canonical request itself is malformed.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindInferenceServer: the provider failed, refused, or broke its own protocol.
	KindInferenceServer ErrorKind = "inference_server"
	// KindInferenceClient: the provider rejected the request (HTTP 4xx).
	KindInferenceClient ErrorKind = "inference_client"
	// KindInternal: an adapter invariant was violated.
	KindInternal ErrorKind = "internal"
)

// Error is the structured failure of one inference. RawRequest and RawResponse
// hold the exact bytes exchanged, when known.
type Error struct {
	Kind        ErrorKind
	Message     string
	Provider    string
	StatusCode  int
	RawRequest  string
	RawResponse string
	Err         error
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg += " (" + e.Provider + ")"
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithRaw attaches the raw request and response text.
func (e *Error) WithRaw(rawRequest, rawResponse string) *Error {
	e.RawRequest = rawRequest
	e.RawResponse = rawResponse
	return e
}

// Wrap records the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// UnsupportedContent reports a construct the provider cannot express.
func UnsupportedContent(provider, format string, args ...any) *Error {
	return NewError(KindUnsupportedContent, fmt.Sprintf(format, args...)).WithProvider(provider)
}

// ServerError reports a provider failure or protocol violation.
func ServerError(provider, format string, args ...any) *Error {
	return NewError(KindInferenceServer, fmt.Sprintf(format, args...)).WithProvider(provider)
}

// InternalError reports a bug in the adapter layer.
func InternalError(provider, format string, args ...any) *Error {
	return NewError(KindInternal, fmt.Sprintf(format, args...)).WithProvider(provider)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// AsError returns err as an *Error when it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
