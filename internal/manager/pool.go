package manager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var errPoolClosed = errors.New("session pool closed")

// poolOptions carries everything a provider needs to build a Pool.
type poolOptions struct {
	kind    BackendKind
	maxSize int
	runtime Runtime
	streams *StreamRegistry
	// device is the GPU ordinal engines are placed on.
	device  int
	threads int
	publish func(Event)
	log     zerolog.Logger
	now     func() time.Time
}

// Pool owns the sessions of one backend. At most maxSize sessions are live at
// any time and at most one session exists per artifact.
type Pool struct {
	kind    BackendKind
	maxSize int
	runtime Runtime
	// streams is nil for CPU pools.
	streams *StreamRegistry
	device  int
	threads int
	publish func(Event)
	log     zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*SessionHandle
	closed   bool

	loads          singleflight.Group
	loadsTotal     atomic.Uint64
	evictionsTotal atomic.Uint64
}

func newPool(o poolOptions) *Pool {
	if o.maxSize < 1 {
		o.maxSize = 1
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.publish == nil {
		o.publish = func(Event) {}
	}
	return &Pool{
		kind:     o.kind,
		maxSize:  o.maxSize,
		runtime:  o.runtime,
		streams:  o.streams,
		device:   o.device,
		threads:  o.threads,
		publish:  o.publish,
		log:      o.log.With().Str("backend", string(o.kind)).Logger(),
		now:      o.now,
		sessions: make(map[string]*SessionHandle),
	}
}

// Kind returns the pool backend.
func (p *Pool) Kind() BackendKind { return p.kind }

// MaxSize returns the maximum number of resident sessions.
func (p *Pool) MaxSize() int { return p.maxSize }

// Streams returns the stream registry of a GPU pool, or nil.
func (p *Pool) Streams() *StreamRegistry { return p.streams }

// Len returns the number of resident sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Acquire returns the session for art, creating it when absent. On GPU pools
// the session's stream is checked out until Release.
func (p *Pool) Acquire(ctx context.Context, art Artifact) (*SessionHandle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errPoolClosed
		}
		if h := p.sessions[art.ID]; h != nil {
			h.inflight++
			p.mu.Unlock()
			return p.bind(ctx, h)
		}
		p.mu.Unlock()

		if err := p.create(ctx, art); err != nil {
			return nil, err
		}
	}
}

// bind finishes an acquisition of a reserved handle.
func (p *Pool) bind(ctx context.Context, h *SessionHandle) (*SessionHandle, error) {
	if p.streams != nil {
		if err := p.streams.CheckoutID(ctx, h.StreamID); err != nil {
			p.mu.Lock()
			h.inflight--
			p.mu.Unlock()
			return nil, err
		}
	}
	p.mu.Lock()
	p.touchLocked(h)
	p.mu.Unlock()
	return h, nil
}

// create loads art once even when many callers race for it. A nil error means
// the caller should look the session up again.
func (p *Pool) create(ctx context.Context, art Artifact) error {
	ch := p.loads.DoChan(art.ID, func() (any, error) {
		return nil, p.load(ctx, art)
	})
	select {
	case res := <-ch:
		if res.Err != nil && res.Shared && isContextErr(res.Err) && ctx.Err() == nil {
			// Another caller's load was cancelled; ours may still proceed.
			return nil
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) load(ctx context.Context, art Artifact) error {
	stream := noStream
	if p.streams != nil {
		id, err := p.streams.Checkout(ctx)
		if err != nil {
			return err
		}
		stream = id
		defer func() { _ = p.streams.Return(id) }()
	}

	start := time.Now()
	eng, err := p.runtime.Load(ctx, LoadRequest{
		ArtifactID: art.ID,
		Path:       art.Path,
		Backend:    p.kind,
		Device:     p.device,
		StreamID:   stream,
		Threads:    p.threads,
	})
	if err != nil {
		observeLoad(p.kind, "error")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn().Str("event", "session_load_error").Str("model", art.ID).Err(err).Msg("manager")
		return &ArtifactLoadError{ArtifactID: art.ID, Path: art.Path, Err: err}
	}

	now := p.now()
	h := &SessionHandle{
		ID:         uuid.NewString(),
		ArtifactID: art.ID,
		Path:       art.Path,
		Backend:    p.kind,
		CreatedAt:  now,
		StreamID:   stream,
		lastUsed:   now,
		engine:     eng,
		pool:       p,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = eng.Close()
		return errPoolClosed
	}
	if p.sessions[art.ID] != nil {
		p.mu.Unlock()
		_ = eng.Close()
		return nil
	}
	var victim *SessionHandle
	if len(p.sessions) >= p.maxSize {
		victim, err = p.evictLRULocked()
		if err != nil {
			p.mu.Unlock()
			_ = eng.Close()
			observeLoad(p.kind, "exhausted")
			return err
		}
	}
	if p.streams != nil {
		// The handle is not visible yet, so its lifetime stream is fixed here:
		// the least-bound slot once the victim is gone, keeping the load slot
		// on ties.
		h.StreamID = p.streams.bindLeast(stream)
	}
	p.sessions[art.ID] = h
	size := len(p.sessions)
	p.mu.Unlock()

	p.loadsTotal.Add(1)
	observeLoad(p.kind, "ok")
	setPoolSessions(p.kind, size)
	p.log.Info().Str("event", "session_create").Str("model", art.ID).Int("stream", h.StreamID).
		Dur("dur", time.Since(start)).Msg("manager")
	p.publish(Event{Name: "session_create", ModelID: art.ID, Fields: map[string]any{
		"backend": string(p.kind), "stream_id": h.StreamID, "session_id": h.ID,
	}})
	if victim != nil {
		p.dispose(victim, "lru")
	}
	return nil
}

// evictLRULocked removes the least recently used session that is not in
// flight. Ties on last use go to the earliest created.
func (p *Pool) evictLRULocked() (*SessionHandle, error) {
	candidates := make([]*SessionHandle, 0, len(p.sessions))
	for _, h := range p.sessions {
		candidates = append(candidates, h)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.lastUsed.Equal(b.lastUsed) {
			return a.lastUsed.Before(b.lastUsed)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	for _, h := range candidates {
		if err := p.removeLocked(h); errors.Is(err, errSessionInUse) {
			continue
		}
		return h, nil
	}
	return nil, ErrPoolExhausted
}

// removeLocked deletes h from the map unless a request holds it.
func (p *Pool) removeLocked(h *SessionHandle) error {
	if h.inflight > 0 {
		return errSessionInUse
	}
	delete(p.sessions, h.ArtifactID)
	if p.streams != nil {
		p.streams.unbind(h.StreamID)
	}
	return nil
}

// dispose closes an already removed session outside the pool lock.
func (p *Pool) dispose(h *SessionHandle, reason string) {
	if err := h.engine.Close(); err != nil {
		p.log.Warn().Str("event", "session_close_error").Str("model", h.ArtifactID).Err(err).Msg("manager")
	}
	p.evictionsTotal.Add(1)
	observeEviction(p.kind, reason)
	setPoolSessions(p.kind, p.Len())
	name := "session_evict"
	if reason == "idle" {
		name = "session_reap"
	}
	p.log.Info().Str("event", name).Str("model", h.ArtifactID).Str("reason", reason).Msg("manager")
	p.publish(Event{Name: name, ModelID: h.ArtifactID, Fields: map[string]any{
		"backend": string(p.kind), "reason": reason,
	}})
}

// Release ends one acquisition of h. GPU pools return the stream before the
// last-used time is refreshed.
func (p *Pool) Release(h *SessionHandle) error {
	if h == nil || h.pool != p {
		return errors.New("release: handle does not belong to this pool")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.inflight <= 0 {
		return errNotHeld
	}
	if p.streams != nil && !p.closed {
		if err := p.streams.Return(h.StreamID); err != nil {
			return err
		}
	}
	h.inflight--
	p.touchLocked(h)
	return nil
}

// Evict removes and closes the session for artifactID. Absent sessions are
// not an error; sessions in flight are refused.
func (p *Pool) Evict(artifactID string) error {
	p.mu.Lock()
	h := p.sessions[artifactID]
	if h == nil {
		p.mu.Unlock()
		return nil
	}
	if err := p.removeLocked(h); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()
	p.dispose(h, "explicit")
	return nil
}

// Reap closes sessions idle for longer than idle that no request holds.
func (p *Pool) Reap(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	now := p.now()
	var victims []*SessionHandle
	p.mu.Lock()
	for _, h := range p.sessions {
		if now.Sub(h.lastUsed) <= idle {
			continue
		}
		if err := p.removeLocked(h); err == nil {
			victims = append(victims, h)
		}
	}
	p.mu.Unlock()
	for _, h := range victims {
		p.dispose(h, "idle")
	}
	return len(victims)
}

// Close disposes every session and frees every stream. The pool rejects
// further acquisitions.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := make([]*SessionHandle, 0, len(p.sessions))
	for _, h := range p.sessions {
		all = append(all, h)
	}
	p.sessions = make(map[string]*SessionHandle)
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, h := range all {
		g.Go(func() error {
			return h.engine.Close()
		})
	}
	err := g.Wait()
	if p.streams != nil {
		if held := p.streams.Reset(); held > 0 {
			p.log.Warn().Str("event", "streams_reclaimed").Int("held", held).Msg("manager")
		}
	}
	p.evictionsTotal.Add(uint64(len(all)))
	for range all {
		observeEviction(p.kind, "unload")
	}
	setPoolSessions(p.kind, 0)
	return err
}

// touchLocked refreshes lastUsed so it strictly increases.
func (p *Pool) touchLocked(h *SessionHandle) {
	t := p.now()
	if !t.After(h.lastUsed) {
		t = h.lastUsed.Add(time.Nanosecond)
	}
	h.lastUsed = t
}

// PoolSessionView is a copy of one session's diagnostic fields.
type PoolSessionView struct {
	ArtifactID string
	StreamID   int
	CreatedAt  time.Time
	LastUsed   time.Time
	Inflight   int
}

// PoolView is a point-in-time copy of a pool.
type PoolView struct {
	Backend          BackendKind
	MaxSize          int
	Sessions         []PoolSessionView
	Inflight         int
	StreamsTotal     int
	StreamsAvailable int
}

// View copies the pool state. The lock is held only for the copy.
func (p *Pool) View() PoolView {
	v := PoolView{Backend: p.kind, MaxSize: p.maxSize}
	p.mu.Lock()
	v.Sessions = make([]PoolSessionView, 0, len(p.sessions))
	for _, h := range p.sessions {
		v.Sessions = append(v.Sessions, PoolSessionView{
			ArtifactID: h.ArtifactID,
			StreamID:   h.StreamID,
			CreatedAt:  h.CreatedAt,
			LastUsed:   h.lastUsed,
			Inflight:   h.inflight,
		})
		v.Inflight += h.inflight
	}
	p.mu.Unlock()
	sort.Slice(v.Sessions, func(i, j int) bool { return v.Sessions[i].ArtifactID < v.Sessions[j].ArtifactID })
	if p.streams != nil {
		v.StreamsTotal = p.streams.Total()
		v.StreamsAvailable = p.streams.Available()
	}
	return v
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
