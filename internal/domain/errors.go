package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrMalformedUpdate = errors.New("malformed pool update")
	ErrStaleUpdate     = errors.New("stale pool update")
	ErrStaleSnapshot   = errors.New("stale graph snapshot")
	ErrInvalidRoute    = errors.New("invalid route")
	ErrMixedChains     = errors.New("route spans multiple chains")
	ErrBadTransition   = errors.New("illegal attempt state transition")
	ErrInFlight        = errors.New("fingerprint already in flight")
	ErrLockHeld        = errors.New("lock already held")
	ErrNoEndpoints     = errors.New("no healthy rpc endpoints")
	ErrContextDone     = errors.New("context cancelled")
)
