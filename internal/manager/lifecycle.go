package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// InitializeWithWarmup selects a backend, builds the pools, runs a warmup
// inference through the acquire/release path and counts the available voices.
// It fails with ErrAlreadyInitialized while ready and with
// ErrReinitializeInProgress while another control operation runs. On failure
// everything built is torn down and the previous state is kept.
func (m *Manager) InitializeWithWarmup(ctx context.Context, voices VoiceSource) (InitResult, error) {
	if !m.controlBusy.CompareAndSwap(false, true) {
		return InitResult{}, ErrReinitializeInProgress
	}
	defer m.controlBusy.Store(false)

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	res, err := m.initializeLocked(ctx, voices)
	observeLifecycle("initialize", err)
	return res, err
}

// UnloadAll waits for outstanding sessions to be released, closes every
// session in every pool, returns every stream and clears the current model.
// If sessions do not drain within the drain timeout it returns
// ErrDrainTimeout and changes nothing.
func (m *Manager) UnloadAll(ctx context.Context) error {
	if !m.controlBusy.CompareAndSwap(false, true) {
		return ErrReinitializeInProgress
	}
	defer m.controlBusy.Store(false)

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	err := m.unloadLocked(ctx)
	observeLifecycle("unload", err)
	return err
}

// Reinitialize unloads and initializes under one hold of the lifecycle lock,
// so callers observe either the old model or the new one. If the new
// initialize fails the manager stays unloaded with the error recorded.
func (m *Manager) Reinitialize(ctx context.Context, voices VoiceSource) (InitResult, error) {
	return m.ReinitializeWith(ctx, voices, nil)
}

// ReinitializeWith is Reinitialize with apply run once the control operation
// is owned and the lifecycle lock held, before the unload. apply may change the
// default model or the rescan source. It does not run when
// ErrReinitializeInProgress is returned.
func (m *Manager) ReinitializeWith(ctx context.Context, voices VoiceSource, apply func()) (res InitResult, err error) {
	if !m.controlBusy.CompareAndSwap(false, true) {
		return InitResult{}, ErrReinitializeInProgress
	}
	defer m.controlBusy.Store(false)

	opID := uuid.NewString()
	ctx, span := startSpan(ctx, "manager.Reinitialize", attribute.String("op_id", opID))
	defer func() {
		observeLifecycle("reinitialize", err)
		endSpan(span, err)
	}()

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if apply != nil {
		apply()
	}

	m.mu.Lock()
	prev := m.state
	m.state = StateReinitializing
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "reinit_start", Fields: map[string]any{"op_id": opID, "from": string(prev)}})

	if err := m.unloadLocked(ctx); err != nil {
		m.mu.Lock()
		m.state = prev
		m.mu.Unlock()
		m.publisher.Publish(Event{Name: "reinit_error", Fields: map[string]any{"op_id": opID, "error": err.Error()}})
		return InitResult{}, err
	}
	res, err = m.initializeLocked(ctx, voices)
	if err != nil {
		m.publisher.Publish(Event{Name: "reinit_error", Fields: map[string]any{"op_id": opID, "error": err.Error()}})
		return InitResult{}, err
	}
	m.publisher.Publish(Event{Name: "reinit_done", ModelID: res.Model, Fields: map[string]any{"op_id": opID, "device": string(res.Device)}})
	return res, nil
}

func (m *Manager) initializeLocked(ctx context.Context, voices VoiceSource) (res InitResult, err error) {
	m.mu.RLock()
	state := m.state
	reg := m.registry
	wantModel := m.defaultModel
	voice := m.defaultVoice
	cfg := m.poolCfg
	m.mu.RUnlock()
	if state == StateReady {
		return InitResult{}, ErrAlreadyInitialized
	}

	ctx, span := startSpan(ctx, "manager.InitializeWithWarmup")
	defer func() { endSpan(span, err) }()
	log := m.logger()
	start := time.Now()
	m.publisher.Publish(Event{Name: "init_start", Fields: map[string]any{"from": string(state)}})

	var built []*Pool
	fail := func(err error) (InitResult, error) {
		for _, p := range built {
			if cerr := p.Close(context.WithoutCancel(ctx)); cerr != nil {
				log.Warn().Str("event", "init_cleanup_error").Err(cerr).Msg("manager")
			}
		}
		m.mu.Lock()
		m.err = err.Error()
		m.mu.Unlock()
		log.Error().Str("event", "init_error").Err(err).Dur("dur", time.Since(start)).Msg("manager")
		m.publisher.Publish(Event{Name: "init_error", Fields: map[string]any{"error": err.Error()}})
		return InitResult{}, err
	}

	if m.rescan != nil {
		fresh, err := m.rescan()
		if err != nil {
			return fail(fmt.Errorf("rescan models: %w", err))
		}
		reg = fresh
	}
	mdl, err := pickDefaultModel(reg, wantModel)
	if err != nil {
		return fail(err)
	}

	provider, err := m.selectProvider(ctx)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("model", mdl.ID), attribute.String("device", string(provider.Kind())))

	var voiceIDs []string
	if voices != nil {
		voiceIDs, err = voices.ListVoices(ctx)
		if err != nil {
			return fail(fmt.Errorf("list voices: %w", err))
		}
	}
	if voice == "" && len(voiceIDs) > 0 {
		voice = voiceIDs[0]
	}

	pools := make(map[BackendKind]*Pool, 2)
	publish := m.publisher.Publish
	cpu := m.cpuProvider().NewPool(cfg, m.runtime, *log, publish)
	pools[BackendCPU] = cpu
	built = append(built, cpu)
	if provider.Kind() != BackendCPU {
		p := provider.NewPool(cfg, m.runtime, *log, publish)
		pools[provider.Kind()] = p
		built = append(built, p)
	}

	// Warmup goes through the same acquire/release path requests use.
	art := artifactOf(mdl)
	h, err := m.acquireFrom(ctx, pools[provider.Kind()], art)
	if err != nil {
		return fail(fmt.Errorf("warmup: %w", err))
	}
	werr := h.Engine().Warmup(ctx, m.warmupText, voice)
	if rerr := m.ReleaseSession(h); rerr != nil && werr == nil {
		werr = rerr
	}
	if werr != nil {
		return fail(fmt.Errorf("warmup: %w", werr))
	}

	m.mu.Lock()
	m.registry = reg
	m.pools = pools
	m.device = provider.Kind()
	m.cur = &ModelInfo{ID: mdl.ID, Path: mdl.Path, Device: provider.Kind()}
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	m.initsTotal.Add(1)

	res = InitResult{Device: provider.Kind(), Model: mdl.ID, VoiceCount: len(voiceIDs)}
	log.Info().Str("event", "init_ready").Str("model", mdl.ID).Str("device", string(res.Device)).
		Int("voices", res.VoiceCount).Dur("dur", time.Since(start)).Msg("manager")
	m.publisher.Publish(Event{Name: "init_ready", ModelID: mdl.ID, Fields: map[string]any{
		"device": string(res.Device), "voice_packs": res.VoiceCount,
	}})
	return res, nil
}

// selectProvider checks providers in order and returns the first usable one.
func (m *Manager) selectProvider(ctx context.Context) (BackendProvider, error) {
	log := m.logger()
	var errs []error
	for _, p := range m.providers {
		if !m.runtime.Supports(p.Kind()) {
			errs = append(errs, fmt.Errorf("%s: runtime %s does not support backend", p.Kind(), m.runtime.Name()))
			continue
		}
		if err := p.Check(ctx); err != nil {
			log.Info().Str("event", "backend_check").Str("backend", string(p.Kind())).Err(err).Msg("manager")
			errs = append(errs, fmt.Errorf("%s: %w", p.Kind(), err))
			continue
		}
		return p, nil
	}
	if len(errs) == 0 {
		return nil, ErrDependencyUnavailable("no backend providers configured")
	}
	return nil, ErrDependencyUnavailable("no usable backend: " + errors.Join(errs...).Error())
}

// cpuProvider returns the configured CPU provider, or the default one. The CPU
// pool always exists so GPU requests can fall back to it.
func (m *Manager) cpuProvider() BackendProvider {
	for _, p := range m.providers {
		if p.Kind() == BackendCPU {
			return p
		}
	}
	return CPUProvider{}
}

func (m *Manager) unloadLocked(ctx context.Context) error {
	log := m.logger()
	m.publisher.Publish(Event{Name: "unload_start", Fields: map[string]any{"leases": m.leases.count()}})
	if err := m.leases.wait(ctx, m.drainTimeout); err != nil {
		log.Warn().Str("event", "unload_timeout").Int("leases", m.leases.count()).Err(err).Msg("manager")
		m.publisher.Publish(Event{Name: "unload_timeout", Fields: map[string]any{"leases": m.leases.count()}})
		return err
	}

	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[BackendKind]*Pool)
	m.cur = nil
	m.device = ""
	m.state = StateUnloaded
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, p := range pools {
		m.retiredLoads.Add(p.loadsTotal.Load())
		g.Go(func() error {
			err := p.Close(gctx)
			m.retiredEvictions.Add(p.evictionsTotal.Load())
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn().Str("event", "unload_close_error").Err(err).Msg("manager")
	}
	log.Info().Str("event", "unload_done").Int("pools", len(pools)).Msg("manager")
	m.publisher.Publish(Event{Name: "unload_done", Fields: map[string]any{"pools": len(pools)}})
	return nil
}
