package errors

import (
	"errors"
)

// Error kinds surfaced by the moderation engine. The transport layer matches
// them with errors.Is to render feedback without inspecting internals.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyResolved = errors.New("already resolved")
	ErrPersistence     = errors.New("persistence error")
	ErrExecution       = errors.New("execution error")
)
