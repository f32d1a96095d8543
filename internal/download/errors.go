package download

import (
	"context"
	"errors"
	"fmt"

	"bulkdl/internal/models"
)

// Failure kinds. Every item in the error state carries one of them in its
// message, e.g. "response error: 404 Not Found".
var (
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrRequest             = errors.New("request error")
	ErrRequestTimeout      = errors.New("request timeout")
	ErrResponse            = errors.New("response error")
	ErrResponseTimeout     = errors.New("response timeout")
	ErrFileSystem          = errors.New("file system error")

	errHalted = errors.New("transfer halted")
)

var kinds = []error{
	ErrUnsupportedProtocol,
	ErrRequest,
	ErrRequestTimeout,
	ErrResponse,
	ErrResponseTimeout,
	ErrFileSystem,
}

func kindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// ErrorKind returns the failure kind recorded on a snapshot, for use with
// errors.Is. It is nil unless the item is in the error state.
func ErrorKind(item models.Item) error {
	for _, kind := range kinds {
		if item.ErrorKind == kind.Error() {
			return kind
		}
	}
	return nil
}

// classify maps a transport error to a failure kind. Timeouts fired by the
// watchdog are reported through the context cause.
func classify(ctx context.Context, err error, kind error) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrRequestTimeout) || errors.Is(cause, ErrResponseTimeout) {
		return cause
	}
	return fmt.Errorf("%w: %v", kind, err)
}
