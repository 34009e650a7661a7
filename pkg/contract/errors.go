package contract

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/tonlib-go/pkg/rpcclient"
	"github.com/nspcc-dev/tonlib-go/pkg/tl"
)

// hashMismatchMessage is the message of the node error returned for some
// as-of-transaction queries even when the transaction ID is correct.
const hashMismatchMessage = "transaction hash mismatch"

// CacheError is returned when the cached value can't be loaded.
type CacheError struct {
	Address tl.Address
	Err     error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache load for %s: %s", e.Address, e.Err)
}

// Unwrap returns the load error.
func (e *CacheError) Unwrap() error {
	return e.Err
}

// MethodError is a failed contract request.
type MethodError struct {
	Method  string
	Address tl.Address
	Err     error
}

// Error implements the error interface.
func (e *MethodError) Error() string {
	return fmt.Sprintf("%s for %s: %s", e.Method, e.Address, e.Err)
}

// Unwrap returns the request error.
func (e *MethodError) Unwrap() error {
	return e.Err
}

// TVMError is returned when get-method exits with a code other than 0 or 1.
type TVMError struct {
	Method   string
	ExitCode int32
	GasUsed  int64
	Stack    []tl.StackEntry
}

// Error implements the error interface.
func (e *TVMError) Error() string {
	return fmt.Sprintf("get-method %q failed with exit code %d (gas used %d)", e.Method, e.ExitCode, e.GasUsed)
}

func isHashMismatch(err error) bool {
	var te *rpcclient.TonlibError
	return errors.As(err, &te) && te.Message == hashMismatchMessage
}

func illegalArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", rpcclient.ErrIllegalArgument, fmt.Sprintf(format, args...))
}
