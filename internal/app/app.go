package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"islandbridge/internal/bridge"
	"islandbridge/internal/config"
	"islandbridge/internal/eventbus"
	"islandbridge/internal/observability/debugsrv"
	"islandbridge/internal/runtime/supervisor"
	"islandbridge/internal/storage"
	"islandbridge/internal/theme"
	"islandbridge/internal/translate"
	"islandbridge/internal/widget"
	logx "islandbridge/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	host    notificationHost
	themes  *theme.Repository
	widgets *widget.Host
	bridge  *bridge.Service
	debug   *debugsrv.Service

	captureDir string
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	// transactional config reload: validate before commit/publish
	cfgm.SetValidator(validate)
	loaded, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	cfg := withDefaults(loaded)

	logSvc, log := logx.NewService(logConfig(cfg))
	log = log.With(logx.Comp("app"))

	bus := eventbus.New()

	// Storage (optional); the host falls back to an in-memory record store.
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.Comp("storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	if store == nil {
		store = storage.NewMemory()
	}

	host, err := openHost(cfg.Host, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	themes := theme.NewRepository(cfg.Theme.Dir, log)
	if err := themes.Reload(); err != nil {
		log.Warn("theme directory unreadable", logx.String("dir", cfg.Theme.Dir), logx.Err(err))
	}
	themes.SetActive(cfg.Theme.Active)

	widgets := widget.NewHost(widget.WithBus(bus), widget.WithLogger(log))
	tr := translate.New(translate.NewXDGIconLoader(log), log)

	svc := bridge.New(host, bridge.NewSettings(cfg, themes.Active()),
		bridge.WithLogger(log),
		bridge.WithBus(bus),
		bridge.WithTranslator(tr),
		bridge.WithWidgets(widgets),
	)

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		host:       host,
		themes:     themes,
		widgets:    widgets,
		bridge:     svc,
		debug:      debugsrv.New(debugConfig(cfg), svc, log),
		captureDir: cfg.Widgets.CaptureDir,
	}, nil
}

func validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	_, _, err := mapStorageConfig(cfg)
	return err
}

// withDefaults returns a copy of cfg with process-level defaults filled in.
// Published configs are shared and never mutated.
func withDefaults(cfg *config.Config) *config.Config {
	c := *cfg
	if strings.TrimSpace(c.Host.AppName) == "" {
		c.Host.AppName = DefaultAppName
	}
	return &c
}

func debugConfig(cfg *config.Config) debugsrv.Config {
	return debugsrv.Config{
		Enabled: cfg.Debug.Enabled,
		Addr:    cfg.Debug.Addr,
		Token:   cfg.Debug.Token,
	}
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// Bridge exposes the orchestrator (widget requests, registry inspection).
func (a *App) Bridge() *bridge.Service { return a.bridge }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))

	if dir := strings.TrimSpace(a.captureDir); dir != "" {
		if err := a.widgets.Start(a.sup.Context(), dir); err != nil {
			return fmt.Errorf("widget capture dir: %w", err)
		}
	}
	if err := a.bridge.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.host.Start(a.sup.Context(), a.bridge); err != nil {
		return err
	}

	if a.debug.Enabled() {
		a.debug.Start(a.sup.Context())
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := withDefaults(a.cfgm.Get())
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				cur := withDefaults(newCfg)
				a.applyConfig(lastApplied, cur)
				lastApplied = cur
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("host", a.cfgm.Get().Host.Driver),
		logx.Int("themes", len(a.themes.IDs())),
	)
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, appsChanged := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(appsChanged) > 0 {
		a.log.Debug("per-app config changes detected", logx.Any("apps", appsChanged))
	}

	for _, s := range sections {
		switch s {
		case "storage", "host":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		case "logging":
			a.logs.Apply(logConfig(newCfg))
		case "theme":
			if oldCfg == nil || oldCfg.Theme.Dir != newCfg.Theme.Dir {
				if err := a.themes.SetDir(newCfg.Theme.Dir); err != nil {
					a.log.Warn("theme reload failed", logx.Err(err))
				}
			}
			a.themes.SetActive(newCfg.Theme.Active)
		case "debug":
			a.debug.Reconfigure(a.sup.Context(), debugConfig(newCfg))
		case "widgets":
			if oldCfg != nil && oldCfg.Widgets.CaptureDir != newCfg.Widgets.CaptureDir {
				a.log.Warn("widgets.capture_dir changed; restart required for changes to take effect")
			}
		}
	}

	a.bridge.Apply(bridge.NewSettings(newCfg, a.themes.Active()))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Inbound traffic first, then the bridge and its widget stream.
	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("host", 2*time.Second, func(context.Context) error { return a.host.Close() })
	step("bridge", 3*time.Second, func(c context.Context) error { return a.bridge.Stop(c) })
	step("widgets", time.Second, func(context.Context) error { a.widgets.Close(); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, event log).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
