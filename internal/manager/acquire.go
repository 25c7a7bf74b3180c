package manager

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// AcquireSession returns a session for artifactID on the backend named by
// hint. An empty artifactID means the current model; an empty hint means the
// initialized device. Every successful call must be paired with exactly one
// ReleaseSession.
func (m *Manager) AcquireSession(ctx context.Context, artifactID, hint string) (h *SessionHandle, err error) {
	ctx, span := startSpan(ctx, "manager.AcquireSession",
		attribute.String("model", artifactID), attribute.String("backend", hint))
	defer func() { endSpan(span, err) }()

	kind, err := ParseBackend(hint)
	if err != nil {
		return nil, err
	}

	m.lifecycle.RLock()
	defer m.lifecycle.RUnlock()

	m.mu.RLock()
	state := m.state
	cur := m.cur
	pools := m.pools
	reg := m.registry
	if kind == "" {
		kind = m.device
	}
	m.mu.RUnlock()

	if state != StateReady || cur == nil {
		return nil, ErrNotInitialized
	}
	art := Artifact{ID: cur.ID, Path: cur.Path}
	if artifactID != "" && artifactID != cur.ID {
		mdl, ok := findModel(reg, artifactID)
		if !ok {
			return nil, ErrModelNotFound(artifactID)
		}
		art = artifactOf(mdl)
	}
	pool := pools[kind]
	if pool == nil {
		return nil, backendUnavailableError{backend: kind}
	}
	return m.acquireFrom(ctx, pool, art)
}

// acquireFrom is the shared acquire path for requests and warmup. The caller
// holds the lifecycle lock in either mode.
func (m *Manager) acquireFrom(ctx context.Context, pool *Pool, art Artifact) (*SessionHandle, error) {
	start := time.Now()
	m.leases.add()
	h, err := pool.Acquire(ctx, art)
	observeAcquire(pool.Kind(), start, err)
	if err != nil {
		m.leases.done()
		return nil, err
	}
	return h, nil
}

// ReleaseSession ends an acquisition. It never takes the lifecycle lock, so
// requests drain while a control operation waits.
func (m *Manager) ReleaseSession(h *SessionHandle) error {
	if h == nil || h.pool == nil {
		return errors.New("release: nil session")
	}
	if err := h.pool.Release(h); err != nil {
		return err
	}
	m.leases.done()
	return nil
}

// WithSession acquires a session, runs fn and releases the session on every
// exit path.
func (m *Manager) WithSession(ctx context.Context, artifactID, hint string, fn func(*SessionHandle) error) (err error) {
	h, err := m.AcquireSession(ctx, artifactID, hint)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := m.ReleaseSession(h); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(h)
}
