package database

import "errors"

var (
	ErrNotFound               = errors.New("record not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrMissingInitialState    = errors.New("reservation has no initial state")
)
