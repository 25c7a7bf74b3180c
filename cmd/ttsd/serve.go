package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ttsd/internal/config"
	"ttsd/internal/gpu"
	"ttsd/internal/httpapi"
	"ttsd/internal/logging"
	"ttsd/internal/manager"
	"ttsd/internal/registry"
	"ttsd/internal/service"
	"ttsd/internal/sysinfo"
	"ttsd/internal/voices"
	"ttsd/pkg/types"
)

type serveFlags struct {
	configPath     string
	addr           string
	modelsDir      string
	voicesDir      string
	defaultModel   string
	defaultVoice   string
	device         string
	gpuDevice      int
	cpuMaxSessions int
	gpuStreams     int
	streamPolicy   string
	logLevel       string
	logFormat      string
	logFile        string
	corsOrigins    string
	watch          bool
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, f.configPath)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", envStr("CONFIG", ""), "Config file (.yaml, .json, .toml)")
	fl.StringVar(&f.addr, "addr", envStr("ADDR", config.DefaultAddr), "HTTP listen address, e.g. :8880")
	fl.StringVar(&f.modelsDir, "models-dir", envStr("MODELS_DIR", config.DefaultModelsDir), "Directory to scan for model artifacts")
	fl.StringVar(&f.voicesDir, "voices-dir", envStr("VOICES_DIR", config.DefaultVoicesDir), "Directory to scan for voice packs")
	fl.StringVar(&f.defaultModel, "default-model", envStr("DEFAULT_MODEL", ""), "Model artifact id warmed at startup")
	fl.StringVar(&f.defaultVoice, "default-voice", envStr("DEFAULT_VOICE", ""), "Voice used when a request names none")
	fl.StringVar(&f.device, "device", envStr("DEVICE", config.DefaultDevice), "Device: auto|cpu|gpu")
	fl.IntVar(&f.gpuDevice, "gpu-device", envInt("GPU_DEVICE", 0), "GPU ordinal sessions are placed on")
	fl.IntVar(&f.cpuMaxSessions, "cpu-max-sessions", envInt("CPU_MAX_SESSIONS", 0), "CPU pool size (0=default)")
	fl.IntVar(&f.gpuStreams, "gpu-streams", envInt("GPU_STREAMS", 0), "GPU stream slots (0=default)")
	fl.StringVar(&f.streamPolicy, "stream-policy", envStr("STREAM_POLICY", ""), "When all streams are busy: block|fail")
	fl.StringVar(&f.logLevel, "log-level", envStr("LOG_LEVEL", config.DefaultLogLevel), "Log level: trace|debug|info|warn|error|off")
	fl.StringVar(&f.logFormat, "log-format", envStr("LOG_FORMAT", config.DefaultLogFormat), "Log format: console|json")
	fl.StringVar(&f.logFile, "log-file", envStr("LOG_FILE", ""), "Also write JSON logs to this rotated file")
	fl.StringVar(&f.corsOrigins, "cors-origins", envStr("CORS_ORIGINS", ""), "Comma separated CORS origins (enables CORS)")
	fl.BoolVar(&f.watch, "watch", envBool("WATCH_CONFIG", false), "Reload the config file on change")
	return cmd
}

// resolveConfig loads the config file and lets explicit flags win over it.
// Flags also fill fields the file leaves empty.
func resolveConfig(cmd *cobra.Command, f *serveFlags) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		c, err := config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	changed := cmd.Flags().Changed
	str := func(name string, dst *string, v string) {
		if changed(name) || *dst == "" {
			*dst = v
		}
	}
	num := func(name string, dst *int, v int) {
		if changed(name) || *dst == 0 {
			*dst = v
		}
	}
	str("addr", &cfg.Addr, f.addr)
	str("models-dir", &cfg.ModelsDir, f.modelsDir)
	str("voices-dir", &cfg.VoicesDir, f.voicesDir)
	str("default-model", &cfg.DefaultModel, f.defaultModel)
	str("default-voice", &cfg.DefaultVoice, f.defaultVoice)
	str("device", &cfg.Device, f.device)
	str("stream-policy", &cfg.StreamPolicy, f.streamPolicy)
	str("log-level", &cfg.LogLevel, f.logLevel)
	str("log-format", &cfg.LogFormat, f.logFormat)
	str("log-file", &cfg.LogFile, f.logFile)
	num("cpu-max-sessions", &cfg.CPUMaxSessions, f.cpuMaxSessions)
	num("gpu-streams", &cfg.GPUStreams, f.gpuStreams)
	num("gpu-device", &cfg.GPUDevice, f.gpuDevice)
	if origins := splitCSV(f.corsOrigins); len(origins) > 0 && (changed("cors-origins") || len(cfg.CORSOrigins) == 0) {
		cfg.CORSOrigins = origins
		cfg.CORSEnabled = true
	}
	if changed("watch") || f.watch {
		cfg.WatchConfig = f.watch
	}
	return cfg.WithDefaults(), nil
}

// modelsDirHolder lets a config reload move the rescan to a new directory.
type modelsDirHolder struct {
	mu  sync.RWMutex
	dir string
}

func (h *modelsDirHolder) get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dir
}

func (h *modelsDirHolder) set(dir string) {
	h.mu.Lock()
	h.dir = dir
	h.mu.Unlock()
}

func (h *modelsDirHolder) scan() ([]types.Model, error) { return registry.LoadDir(h.get()) }

// buildManager wires the manager from cfg.
func buildManager(cfg config.Config, dirs *modelsDirHolder, log zerolog.Logger) (*manager.Manager, error) {
	providers, err := manager.ProvidersForDevice(cfg.Device, cfg.GPUDevice, gpu.Detector{})
	if err != nil {
		return nil, err
	}
	reg, err := dirs.scan()
	if err != nil {
		log.Warn().Err(err).Str("dir", dirs.get()).Msg("model scan failed; starting with an empty registry")
	}
	return manager.NewWithConfig(manager.ManagerConfig{
		Registry:     reg,
		Rescan:       dirs.scan,
		DefaultModel: cfg.DefaultModel,
		DefaultVoice: cfg.DefaultVoice,
		Pools: manager.PoolConfig{
			CPUMaxSessions: cfg.CPUMaxSessions,
			CPUThreads:     cfg.CPUThreads,
			GPUStreams:     cfg.GPUStreams,
			GPUMaxSessions: cfg.GPUMaxSessions,
			StreamPolicy:   manager.StreamPolicy(cfg.StreamPolicy),
			MaxWait:        cfg.MaxWait(),
		},
		Providers:    providers,
		DrainTimeout: cfg.DrainTimeout(),
		IdleTimeout:  cfg.IdleTimeout(),
		WarmupText:   cfg.WarmupText,
		Logger:       &log,
	}), nil
}

func runServe(parent context.Context, cfg config.Config, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	log, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dirs := &modelsDirHolder{dir: cfg.ModelsDir}
	mgr, err := buildManager(cfg, dirs, log)
	if err != nil {
		return err
	}
	vm := voices.New(cfg.VoicesDir, cfg.DefaultVoice, log)
	sys := sysinfo.Collector{GPU: gpu.Detector{}, Dirs: []string{cfg.ModelsDir, cfg.VoicesDir}}
	svc := service.New(mgr, vm, sys, gpu.Detector{}, log)

	httpapi.SetLogger(log)
	httpapi.SetRequestLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Warm the model in the background so /readyz can report loading.
	go func() {
		res, err := mgr.InitializeWithWarmup(ctx, vm)
		if err != nil {
			log.Error().Err(err).Msg("initialize failed; POST /debug/reinitialize to retry")
			return
		}
		log.Info().Str("model", res.Model).Str("device", string(res.Device)).Int("voice_packs", res.VoiceCount).Msg("model ready")
	}()
	mgr.StartReaper(ctx)

	if cfg.WatchConfig && configPath != "" {
		if err := startWatcher(ctx, configPath, cfg, dirs, mgr, svc, vm, log); err != nil {
			log.Warn().Err(err).Msg("config watch disabled")
		}
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Str("device", cfg.Device).Msg("ttsd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := mgr.UnloadAll(shutdownCtx); err != nil && !errors.Is(err, manager.ErrNotInitialized) {
		log.Warn().Err(err).Msg("unload on shutdown")
	}
	return nil
}

// startWatcher applies config file changes: model changes reinitialize,
// voice changes update the default, the rest needs a restart.
func startWatcher(ctx context.Context, path string, initial config.Config, dirs *modelsDirHolder,
	mgr *manager.Manager, svc *service.Service, vm *voices.Manager, log zerolog.Logger) error {
	r := newReloader(initial, dirs, mgr, svc, vm, log)
	w, err := config.NewWatcher(path, log, func(next config.Config, err error) {
		if err != nil {
			return
		}
		r.apply(ctx, next.WithDefaults())
	})
	if err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("config watcher stopped")
		}
	}()
	return nil
}

const reloadRetryInterval = 500 * time.Millisecond

var errReloadSuperseded = errors.New("reload superseded by a newer config")

// reloader applies config reloads in order. The applied config is committed
// only after its model change took effect, so a reload that could not
// reinitialize is diffed again by the next one.
type reloader struct {
	dirs  *modelsDirHolder
	mgr   *manager.Manager
	svc   *service.Service
	vm    *voices.Manager
	log   zerolog.Logger
	retry time.Duration

	gen atomic.Uint64
	mu  sync.Mutex
	cur config.Config
}

func newReloader(initial config.Config, dirs *modelsDirHolder, mgr *manager.Manager,
	svc *service.Service, vm *voices.Manager, log zerolog.Logger) *reloader {
	return &reloader{dirs: dirs, mgr: mgr, svc: svc, vm: vm, log: log, retry: reloadRetryInterval, cur: initial}
}

func (r *reloader) current() config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// apply diffs next against the committed config and applies it. A
// reinitialize blocked by another lifecycle operation is retried until it
// runs, ctx ends or a newer reload arrives.
func (r *reloader) apply(ctx context.Context, next config.Config) error {
	gen := r.gen.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.cur

	if config.NeedsRestart(prev, next) {
		r.log.Warn().Msg("config change requires a restart to take full effect")
	}
	if next.LogLevel != prev.LogLevel {
		httpapi.SetRequestLogLevel(next.LogLevel)
	}
	if next.DefaultVoice != "" && next.DefaultVoice != prev.DefaultVoice {
		if _, err := r.svc.SetVoice(ctx, next.DefaultVoice); err != nil {
			r.log.Warn().Err(err).Str("voice", next.DefaultVoice).Msg("default voice not applied")
		}
	}
	if !config.NeedsReinitialize(prev, next) {
		r.cur = next
		return nil
	}

	switchModel := func() {
		r.dirs.set(next.ModelsDir)
		r.mgr.SetDefaultModel(next.DefaultModel)
	}
	for {
		res, err := r.mgr.ReinitializeWith(ctx, r.vm, switchModel)
		if err == nil {
			r.cur = next
			r.log.Info().Str("model", res.Model).Str("device", string(res.Device)).Msg("reinitialized after config change")
			return nil
		}
		if !errors.Is(err, manager.ErrReinitializeInProgress) {
			// The switch happened; the failure is recorded in /status.
			r.cur = next
			r.log.Error().Err(err).Msg("reinitialize after config change failed")
			return err
		}
		r.log.Info().Dur("retry_in", r.retry).Msg("lifecycle operation running; config reload waits")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retry):
		}
		if r.gen.Load() != gen {
			return errReloadSuperseded
		}
	}
}
