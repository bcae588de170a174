package pipeline

import (
	"errors"

	"gpuworker/internal/registry"
)

// dependencyUnavailableError signals a missing external dependency (server
// binary not installed, llama support not compiled in).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}

// IsNotCached reports whether loading failed because the cache-only strategy
// could not find the model.
func IsNotCached(err error) bool { return errors.Is(err, registry.ErrNotCached) }

// IsNotFound reports whether loading failed because the local model path is missing.
func IsNotFound(err error) bool { return errors.Is(err, registry.ErrNotFound) }

var errClosed = errors.New("pipeline closed")
