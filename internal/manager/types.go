package manager

import (
	"fmt"
	"strings"
)

// State represents the lifecycle state of the manager.
type State string

const (
	StateUninitialized  State = "uninitialized"
	StateReady          State = "ready"
	StateReinitializing State = "reinitializing"
	StateUnloaded       State = "unloaded"
)

// BackendKind identifies a compute backend.
type BackendKind string

const (
	BackendCPU BackendKind = "cpu"
	BackendGPU BackendKind = "gpu"
)

// ParseBackend maps a user-supplied hint to a BackendKind. Empty means "any".
func ParseBackend(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "cpu":
		return BackendCPU, nil
	case "gpu", "cuda":
		return BackendGPU, nil
	default:
		return "", fmt.Errorf("unknown backend %q", s)
	}
}

// StreamPolicy controls what checkout does when every stream is in use.
type StreamPolicy string

const (
	// PolicyBlock waits up to MaxWait (or ctx cancellation) for a slot.
	PolicyBlock StreamPolicy = "block"
	// PolicyFail returns ErrNoStreamAvailable immediately.
	PolicyFail StreamPolicy = "fail"
)

// ModelInfo is a minimal view of the current model.
type ModelInfo struct {
	ID     string
	Path   string
	Device BackendKind
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
}

// InitResult is returned by InitializeWithWarmup and Reinitialize.
type InitResult struct {
	Device     BackendKind
	Model      string
	VoiceCount int
}
