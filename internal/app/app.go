// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tejashwikalptaru/mantra/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/mantra/internal/adapter/audio/otoaudio"
	"github.com/tejashwikalptaru/mantra/internal/adapter/bundle"
	"github.com/tejashwikalptaru/mantra/internal/adapter/clock"
	"github.com/tejashwikalptaru/mantra/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/mantra/internal/adapter/metrics"
	"github.com/tejashwikalptaru/mantra/internal/adapter/resolver"
	"github.com/tejashwikalptaru/mantra/internal/adapter/ui/console"
	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/logger"
	"github.com/tejashwikalptaru/mantra/internal/ports"
	"github.com/tejashwikalptaru/mantra/internal/service"
)

// Application is the root application structure that holds all dependencies.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Reloading the current session when its bundle file changes
// - Managing the application lifecycle (startup, shutdown)
type Application struct {
	// Core dependencies
	logger *slog.Logger
	config Config

	// Infrastructure
	eventBus *eventbus.SyncEventBus
	player   ports.PlatformPlayer
	resolver *resolver.Resolver
	bundles  *bundle.FileProvider
	watcher  *bundle.Watcher
	metrics  *metrics.Collector

	// Services
	engine *service.AudioEngine

	mu           sync.Mutex
	sessionID    string
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewApplication creates a new application with all dependencies wired.
// This is the main dependency injection function.
func NewApplication(config Config) (*Application, error) {
	app := &Application{config: config}

	// Step 1: Create logger
	app.logger = logger.NewLogger(logger.Config{
		Level:  config.LogLevel,
		Format: config.LogFormat,
	})
	app.logger.Info("initializing application",
		slog.String("app_name", config.AppName),
		slog.String("version", GetVersionInfo().FullString()),
		slog.String("platform", string(config.Platform)))

	// Step 2: Create an event bus
	app.eventBus = eventbus.NewSyncEventBus()
	app.eventBus.SetLogger(app.logger.With(slog.String("component", "eventbus")))
	app.metrics = metrics.NewCollector(app.logger.With(slog.String("component", "metrics")), app.eventBus)

	// Step 3: Create the platform player
	if config.UseMockAudio {
		player := mock.NewPlayer()
		player.SetLogger(app.logger.With(slog.String("player", "mock")))
		app.player = player
	} else {
		app.player = otoaudio.NewPlayer(app.logger.With(slog.String("player", "oto")))
	}
	if err := app.player.Initialize(config.SampleRate); err != nil {
		app.metrics.Close()
		_ = app.eventBus.Close()
		return nil, fmt.Errorf("failed to initialize audio player: %w", err)
	}

	// Step 4: Asset and bundle sources
	app.resolver = resolver.New(
		app.logger.With(slog.String("adapter", "resolver")),
		resolver.Config{
			AssetDir:        config.AssetDir,
			CacheDir:        config.CacheDir,
			DownloadTimeout: config.DownloadTimeout,
		},
		&http.Client{},
	)
	app.bundles = bundle.NewFileProvider(app.logger.With(slog.String("adapter", "bundles")), config.BundleDir)

	// Step 5: Create the engine
	engineCfg := service.DefaultEngineConfig(config.Platform)
	engineCfg.PrerollAsset = config.PrerollAsset
	engineCfg.CommandTimeout = config.CommandTimeout
	app.engine = service.NewAudioEngine(
		app.logger.With(slog.String("service", "engine")),
		app.player,
		app.resolver,
		app.eventBus,
		clock.NewSystem(),
		engineCfg,
	)

	// Step 6: Watch bundles (non-fatal)
	if config.WatchBundles {
		watcher, err := bundle.NewWatcher(app.logger.With(slog.String("adapter", "watcher")), config.BundleDir)
		if err != nil {
			app.logger.Warn("bundle watching disabled",
				slog.String("dir", config.BundleDir),
				slog.Any("error", err))
		} else {
			app.watcher = watcher
		}
	}

	return app, nil
}

// Engine returns the session engine.
func (a *Application) Engine() *service.AudioEngine {
	return a.engine
}

// EventBus returns the application event bus.
func (a *Application) EventBus() ports.EventBus {
	return a.eventBus
}

// Sessions lists the session ids available in the bundle directory.
func (a *Application) Sessions() ([]string, error) {
	return a.bundles.Sessions()
}

// LoadSession reads the bundle for sessionID and loads it into the engine.
// A load that fails inside the engine is reported from the resulting snapshot.
func (a *Application) LoadSession(ctx context.Context, sessionID string) error {
	b, err := a.bundles.Bundle(ctx, sessionID)
	if err != nil {
		return domain.NewServiceError("app", "read_bundle", sessionID, err)
	}

	a.mu.Lock()
	a.sessionID = b.SessionID
	a.mu.Unlock()

	if err := a.engine.Load(ctx, *b); err != nil {
		return domain.NewServiceError("app", "load_session", sessionID, err)
	}

	state := a.engine.GetState()
	if state.Status == domain.StatusError && state.Error != nil {
		return domain.NewServiceError("app", "load_session", sessionID, errors.New(state.Error.Message))
	}
	return nil
}

// Run starts the console and the optional metrics endpoint and bundle watcher.
// It returns when the console exits or ctx is done.
func (a *Application) Run(ctx context.Context, stdin io.ReadCloser, stdout io.Writer) error {
	a.logger.Info("Mantra started")

	group, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config.MetricsAddr != "" {
		group.Go(func() error {
			if err := a.metrics.Serve(ctx, a.config.MetricsAddr); err != nil {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
	}

	if a.watcher != nil {
		group.Go(func() error {
			a.watchBundles(ctx)
			return nil
		})
	}

	group.Go(func() error {
		defer cancel()
		c := console.New(a.logger.With(slog.String("component", "console")), a.engine, a, console.Options{
			Stdin:  stdin,
			Stdout: stdout,
		})
		return c.Run(ctx)
	})

	return group.Wait()
}

func (a *Application) watchBundles(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-a.watcher.Changes():
			if !ok {
				return
			}
			a.handleBundleChange(ctx, id)
		}
	}
}

// handleBundleChange reloads the current session from disk and resumes playback if it was playing.
func (a *Application) handleBundleChange(ctx context.Context, sessionID string) {
	a.mu.Lock()
	current := a.sessionID
	a.mu.Unlock()

	if sessionID != current {
		return
	}

	wasPlaying := a.engine.GetState().Status == domain.StatusPlaying
	a.logger.Info("bundle changed, reloading session",
		slog.String("session_id", sessionID),
		slog.Bool("resume", wasPlaying))

	if err := a.LoadSession(ctx, sessionID); err != nil {
		a.logger.Warn("failed to reload session",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return
	}

	if wasPlaying {
		if err := a.engine.Play(ctx); err != nil {
			a.logger.Warn("failed to resume reloaded session", slog.Any("error", err))
		}
	}
}

// Shutdown gracefully shuts down the application.
// It is safe to call more than once.
func (a *Application) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down application")

		var errs []error
		if a.watcher != nil {
			if err := a.watcher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("bundle watcher: %w", err))
			}
		}

		if err := a.engine.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("engine: %w", err))
		}

		if err := a.player.Shutdown(); err != nil && !errors.Is(err, domain.ErrNotInitialized) {
			errs = append(errs, fmt.Errorf("audio player: %w", err))
		}

		a.metrics.Close()
		if err := a.eventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}

		a.shutdownErr = errors.Join(errs...)
		a.logger.Info("application shutdown complete")
	})
	return a.shutdownErr
}
