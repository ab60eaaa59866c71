package domain

import "errors"

var (
	ErrDuplicateCall     = errors.New("duplicate call")
	ErrUnknownCall       = errors.New("unknown call")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAdapterFailure    = errors.New("adapter failure")
	ErrGateConflict      = errors.New("another call is active")
)
