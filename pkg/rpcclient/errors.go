package rpcclient

import (
	"errors"
	"fmt"
)

// CodeOverloaded is the node error code of transient failures (like
// lite server overload or network timeouts), requests failed with it are
// safe to repeat.
const CodeOverloaded = 500

// UnknownMethod is used as a method name for replies that can't be matched
// to any request.
const UnknownMethod = "N/A"

var (
	// ErrInternal is the base of all errors caused by library invariant
	// violations, they're never retried.
	ErrInternal = errors.New("internal error")
	// ErrReplyChannelClosed is returned when the request was dropped without
	// any reply delivered to it.
	ErrReplyChannelClosed = fmt.Errorf("%w: reply channel closed without a reply", ErrInternal)
	// ErrConnectionClosed is returned for requests made to (or pending on)
	// a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrIllegalArgument is returned for bad parameters passed to API calls.
	ErrIllegalArgument = errors.New("illegal argument")
)

// TonlibError is an explicit error returned by the node.
type TonlibError struct {
	Method  string
	Code    int32
	Message string
}

// Error implements the error interface.
func (e *TonlibError) Error() string {
	return fmt.Sprintf("%s failed with code %d: %s", e.Method, e.Code, e.Message)
}

// TransportError is a local failure to send a request or to decode a reply.
type TransportError struct {
	Method string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %s", e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// UnexpectedResultError is returned when the node replies with a result of
// type other than the one expected for the request.
type UnexpectedResultError struct {
	Actual   string
	Expected string
}

// Error implements the error interface.
func (e *UnexpectedResultError) Error() string {
	return fmt.Sprintf("unexpected result %s, expected %s", e.Actual, e.Expected)
}

// IsTonlibError checks whether err is a node error with the given code.
func IsTonlibError(err error, code int32) bool {
	var te *TonlibError
	return errors.As(err, &te) && te.Code == code
}

// isRetryable is the pool retry predicate.
func isRetryable(err error) bool {
	return IsTonlibError(err, CodeOverloaded)
}
