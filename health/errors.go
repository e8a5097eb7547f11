package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check timed out.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates a checker was not found.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrInvalidChecker indicates a nil checker or an empty name.
	ErrInvalidChecker = errors.New("health: invalid checker")

	// ErrCheckPanicked indicates a checker panicked instead of returning.
	ErrCheckPanicked = errors.New("health: check panicked")

	// ErrServiceUnhealthy indicates the auth service reported itself unhealthy.
	ErrServiceUnhealthy = errors.New("health: auth service unhealthy")
)
