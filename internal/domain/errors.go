package domain

import "errors"

var (
	// ErrValidation marks client-caused input errors.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for ids that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks operations rejected because of current state.
	ErrConflict = errors.New("conflict")
)
