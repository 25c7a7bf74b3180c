package manager

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStreamAvailable signals that the GPU stream registry is exhausted.
	// Callers may retry with backoff or fall back to the CPU backend.
	ErrNoStreamAvailable = errors.New("no gpu stream available")
	// ErrAlreadyInitialized is returned by InitializeWithWarmup while the manager is ready.
	ErrAlreadyInitialized = errors.New("model manager already initialized")
	// ErrNotInitialized is returned when sessions are requested before initialize.
	ErrNotInitialized = errors.New("model manager not initialized")
	// ErrReinitializeInProgress is returned when another lifecycle operation is running.
	ErrReinitializeInProgress = errors.New("reinitialize in progress")
	// ErrPoolExhausted is returned when a pool is full and every session is in flight.
	ErrPoolExhausted = errors.New("session pool exhausted: all sessions in flight")
	// ErrDrainTimeout is returned when in-flight leases did not drain before unload.
	ErrDrainTimeout = errors.New("timed out draining in-flight sessions")

	// errSessionInUse makes eviction move on to the next candidate. Never surfaced
	// by the manager.
	errSessionInUse = errors.New("session in use")
	// errNotHeld signals a release of a handle or stream that is not checked out.
	errNotHeld = errors.New("not checked out")
)

// ArtifactLoadError reports a missing or corrupt model artifact. The pool is
// left unchanged when it is returned.
type ArtifactLoadError struct {
	ArtifactID string
	Path       string
	Err        error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load artifact %q (%s): %v", e.ArtifactID, e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// IsArtifactLoad reports whether err is an ArtifactLoadError.
func IsArtifactLoad(err error) bool {
	var ae *ArtifactLoadError
	return errors.As(err, &ae)
}

// IsNoStreamAvailable reports whether err indicates GPU stream exhaustion.
func IsNoStreamAvailable(err error) bool { return errors.Is(err, ErrNoStreamAvailable) }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	return errors.Is(err, ErrNoStreamAvailable) || errors.Is(err, ErrPoolExhausted)
}

// modelNotFoundError is returned when an artifact id is not present in the registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error for a missing artifact id.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing artifact id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing runtime dependency (e.g., the
// llama build tag) so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// backendUnavailableError is returned when a request names a backend that has no pool.
type backendUnavailableError struct{ backend BackendKind }

func (e backendUnavailableError) Error() string {
	return "backend unavailable: " + string(e.backend)
}

// IsBackendUnavailable reports whether err indicates a backend without a pool.
func IsBackendUnavailable(err error) bool {
	var e backendUnavailableError
	return errors.As(err, &e)
}

// IsLifecycle reports whether err is a lifecycle misuse error.
func IsLifecycle(err error) bool {
	return errors.Is(err, ErrAlreadyInitialized) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrReinitializeInProgress)
}

// invalidInputError marks a malformed request so the HTTP layer returns 400.
type invalidInputError struct{ msg string }

func (e invalidInputError) Error() string { return e.msg }

// ErrInvalidInput constructs an invalidInputError.
func ErrInvalidInput(msg string) error { return invalidInputError{msg: msg} }

// IsInvalidInput reports whether err is an invalid request error.
func IsInvalidInput(err error) bool {
	var e invalidInputError
	return errors.As(err, &e)
}
