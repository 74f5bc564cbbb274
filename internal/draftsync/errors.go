package draftsync

import (
	"context"
	"errors"

	"immimate/pkg/platform/sentinel"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("draftsync: manager closed")

	// ErrNotLoaded is returned by edits and saves before Load completes.
	ErrNotLoaded = errors.New("draftsync: draft not loaded")
)

// isTransportFailure reports whether err means the remote could not be
// reached. Only these count towards the breaker; a rejected request does not.
func isTransportFailure(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable) ||
		errors.Is(err, sentinel.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
