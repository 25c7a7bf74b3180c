// Package manager provides the session pools and model lifecycle for speech
// inference. It is structured into small files by concern:
//
//   - manager.go: core Manager type, lease tracking, simple getters.
//   - config.go: ManagerConfig, PoolConfig and package defaults.
//   - types.go: State, BackendKind, StreamPolicy, Snapshot.
//   - errors.go: error values and helpers (IsTooBusy, IsArtifactLoad, ...).
//   - session.go: SessionHandle.
//   - streams.go: StreamRegistry, the fixed set of GPU stream slots.
//   - pool.go: Pool, per-backend session map with LRU eviction.
//   - provider.go: CPU and GPU backend providers, checked once per initialize.
//   - acquire.go: AcquireSession, ReleaseSession, WithSession.
//   - lifecycle.go: InitializeWithWarmup, UnloadAll, Reinitialize.
//   - reaper.go: idle session reaping.
//   - synth.go: Synthesize with optional CPU fallback.
//   - status_report.go: Snapshot, PoolSnapshot, Status.
//
// Lock order is lifecycle, then pool, then stream registry. ReleaseSession
// and the diagnostics views never take the lifecycle lock.
//
// Build tags and runtimes:
//
//   - In-process llama: uses go-llama.cpp. Enabled with `-tags=llama`.
//     Files: runtime_llama.go, llama_cgo.go (linker rpath hints).
//   - Default: runtime_stub.go validates and reads artifacts but refuses
//     synthesis with ErrDependencyUnavailable, keeping builds CGO-free.
package manager
