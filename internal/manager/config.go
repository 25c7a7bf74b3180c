package manager

import (
	"time"

	"github.com/rs/zerolog"

	"ttsd/pkg/types"
)

// Defaults applied when corresponding fields are unset.
const (
	defaultCPUMaxSessions = 2
	defaultGPUStreams     = 4
	defaultMaxWait        = 30 * time.Second
	defaultDrainTimeout   = 30 * time.Second
	defaultWarmupText     = "Warmup text for initialization."
)

// PoolConfig sizes the backend pools.
type PoolConfig struct {
	CPUMaxSessions int
	CPUThreads     int
	GPUStreams     int
	// GPUMaxSessions defaults to GPUStreams.
	GPUMaxSessions int
	StreamPolicy   StreamPolicy
	MaxWait        time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.CPUMaxSessions <= 0 {
		c.CPUMaxSessions = defaultCPUMaxSessions
	}
	if c.GPUStreams <= 0 {
		c.GPUStreams = defaultGPUStreams
	}
	if c.GPUMaxSessions <= 0 {
		c.GPUMaxSessions = c.GPUStreams
	}
	if c.StreamPolicy == "" {
		c.StreamPolicy = PolicyBlock
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	return c
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Registry is the initial artifact list. Rescan, when set, replaces it on
	// every initialize.
	Registry     []types.Model
	Rescan       func() ([]types.Model, error)
	DefaultModel string
	DefaultVoice string
	Pools        PoolConfig
	// Providers are checked in order; the first usable one wins. Defaults to
	// GPU then CPU.
	Providers    []BackendProvider
	Runtime      Runtime
	DrainTimeout time.Duration
	IdleTimeout  time.Duration
	WarmupText   string
	Publisher    EventPublisher
	Logger       *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateUninitialized,
		registry:     append([]types.Model(nil), cfg.Registry...),
		rescan:       cfg.Rescan,
		defaultModel: cfg.DefaultModel,
		defaultVoice: cfg.DefaultVoice,
		poolCfg:      cfg.Pools.withDefaults(),
		providers:    cfg.Providers,
		runtime:      cfg.Runtime,
		drainTimeout: cfg.DrainTimeout,
		idleTimeout:  cfg.IdleTimeout,
		warmupText:   cfg.WarmupText,
		publisher:    cfg.Publisher,
		pools:        make(map[BackendKind]*Pool),
		log:          zerolog.Nop(),
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	if len(m.providers) == 0 {
		m.providers = []BackendProvider{GPUProvider{}, CPUProvider{}}
	}
	if m.runtime == nil {
		m.runtime = NewDefaultRuntime(RuntimeOptions{})
	}
	if m.drainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	}
	if m.warmupText == "" {
		m.warmupText = defaultWarmupText
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	m.leases.idle = closedChan()
	m.startTime = time.Now()
	return m
}
