package manager

import "time"

// noStream marks a handle that is not bound to a GPU stream.
const noStream = -1

// Artifact is a resolved model artifact ready to be loaded.
type Artifact struct {
	ID   string
	Path string
}

// SessionHandle wraps one loaded engine bound to an artifact and a backend.
// Handles are owned by exactly one Pool and mutated only under its lock; the
// same pointer is returned for every acquisition of the same artifact.
type SessionHandle struct {
	ID         string
	ArtifactID string
	Path       string
	Backend    BackendKind
	CreatedAt  time.Time
	// StreamID is the GPU stream the session was created on. It never changes.
	StreamID int

	lastUsed time.Time
	inflight int
	engine   Engine
	pool     *Pool
}

// Engine returns the runtime engine backing this session.
func (h *SessionHandle) Engine() Engine { return h.engine }

// Stream returns the bound GPU stream, if any.
func (h *SessionHandle) Stream() (int, bool) {
	if h.StreamID == noStream {
		return noStream, false
	}
	return h.StreamID, true
}

// LastUsed returns the last acquisition or release time.
func (h *SessionHandle) LastUsed() time.Time {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.lastUsed
}

// Inflight returns the number of outstanding acquisitions of this session.
func (h *SessionHandle) Inflight() int {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.inflight
}
