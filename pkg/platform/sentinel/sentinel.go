package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, brokers and clients return
// these (optionally wrapped) so services can translate them into domain errors
// or decide whether a failure is worth retrying.
//
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrInvalidState: record is in the wrong state for the requested transition
//   - ErrUnavailable: dependency (store, broker, directory, mail relay) unreachable
//   - ErrCircuitOpen: a breaker short-circuited the call
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrCircuitOpen  = errors.New("circuit open")
)
