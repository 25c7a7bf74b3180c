package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ttsd/pkg/types"
)

// VoiceSource supplies the available voice identifiers.
type VoiceSource interface {
	ListVoices(ctx context.Context) ([]string, error)
}

// Manager owns the current model and the backend pools built for it.
// Sessions are handed out through AcquireSession and WithSession.
type Manager struct {
	// lifecycle is held shared by acquisitions and exclusively by control
	// operations. It is always taken before pool and stream locks.
	lifecycle sync.RWMutex
	// controlBusy makes concurrent control operations fail fast.
	controlBusy atomic.Bool

	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          string
	registry     []types.Model
	pools        map[BackendKind]*Pool
	device       BackendKind
	defaultModel string
	defaultVoice string
	poolCfg      PoolConfig

	rescan       func() ([]types.Model, error)
	providers    []BackendProvider
	runtime      Runtime
	publisher    EventPublisher
	log          zerolog.Logger
	leases       leaseTracker
	drainTimeout time.Duration
	idleTimeout  time.Duration
	warmupText   string
	startTime    time.Time

	initsTotal atomic.Uint64
	// Totals of pools torn down by unload.
	retiredLoads     atomic.Uint64
	retiredEvictions atomic.Uint64
}

// New constructs a Manager over a fixed registry with default pools.
func New(reg []types.Model, defaultModel string) *Manager {
	return NewWithConfig(ManagerConfig{Registry: reg, DefaultModel: defaultModel})
}

// SetLogger installs a structured logger.
func (m *Manager) SetLogger(l zerolog.Logger) {
	m.mu.Lock()
	m.log = l
	m.mu.Unlock()
}

func (m *Manager) logger() *zerolog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.log
	return &l
}

// Ready reports whether sessions can be acquired.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.cur != nil
}

// ListModels returns a copy of the current artifact registry.
func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// Device returns the backend selected by the last successful initialize.
func (m *Manager) Device() BackendKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// Pool returns the live pool for kind, if any.
func (m *Manager) Pool(kind BackendKind) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[kind]
	return p, ok
}

// DefaultVoice returns the voice used for warmup and for requests without one.
func (m *Manager) DefaultVoice() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultVoice
}

// SetDefaultVoice changes the voice used for requests without one.
func (m *Manager) SetDefaultVoice(id string) {
	m.mu.Lock()
	m.defaultVoice = id
	m.mu.Unlock()
}

// SetDefaultModel changes the artifact picked by the next initialize.
func (m *Manager) SetDefaultModel(id string) {
	m.mu.Lock()
	m.defaultModel = id
	m.mu.Unlock()
}

// ActiveLeases returns the number of acquired, unreleased sessions.
func (m *Manager) ActiveLeases() int { return m.leases.count() }

// leaseTracker counts outstanding acquisitions so unload can drain them.
type leaseTracker struct {
	mu sync.Mutex
	n  int
	// idle is closed while n == 0.
	idle chan struct{}
}

func (l *leaseTracker) add() {
	l.mu.Lock()
	if l.n == 0 {
		l.idle = make(chan struct{})
	}
	l.n++
	l.mu.Unlock()
}

func (l *leaseTracker) done() {
	l.mu.Lock()
	l.n--
	if l.n == 0 {
		close(l.idle)
	}
	l.mu.Unlock()
}

func (l *leaseTracker) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// wait blocks until no leases are outstanding, ctx ends or timeout elapses.
func (l *leaseTracker) wait(ctx context.Context, timeout time.Duration) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return ErrDrainTimeout
	}
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
