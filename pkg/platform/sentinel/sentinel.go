package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, remote clients and table
// sources return these (optionally wrapped) so services can translate them
// into domain errors.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrExpired: stored entry outlived its expiration
//   - ErrMalformed: stored bytes could not be decoded
//   - ErrUnavailable: backing service unreachable or failing
//   - ErrTimeout: backing service exceeded its time bound
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrMalformed   = errors.New("malformed")
	ErrUnavailable = errors.New("unavailable")
	ErrTimeout     = errors.New("timeout")
)
