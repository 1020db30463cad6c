package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/patchgridgo/internal/bridge"
	"github.com/vk/patchgridgo/internal/ctxlog"
	"github.com/vk/patchgridgo/internal/preset"
	"github.com/vk/patchgridgo/internal/service"
	"github.com/vk/patchgridgo/internal/session"
)

// Run executes the main application loop: it starts the service bridge,
// applies its event stream to the session, reloads presets when their
// files change on disk, and shuts everything down in order when the
// context is cancelled or an interrupt arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	br := bridge.New(func(ctx context.Context) (service.Conn, error) {
		return service.Dial(ctx, a.config.ServiceURL, service.DialOptions{})
	})

	sess := session.New(session.Config{
		Logger:          a.logger,
		Store:           a.store,
		Commands:        br.Commands(),
		Notify:          a.notify,
		AutoConnect:     a.settings.AutoConnect,
		OnActiveChanged: a.persistActivePreset,
	})

	// Activation goes through the session so its cross-goroutine snapshot
	// of the active preset stays in sync with the store.
	if name := a.initialPreset(); name != "" {
		if err := sess.ActivatePreset(name); err != nil {
			a.logger.Warn("Startup preset not found", "preset", name)
		} else {
			a.logger.Info("Preset activated on startup", "preset", name)
		}
	}

	var hs *healthcheckServer
	if a.config.HealthcheckPort > 0 {
		hs = a.startHealthcheckServer(a.config.HealthcheckPort, sess.Stats)
	}

	// The watcher signals through a collapsing channel so a burst of file
	// changes costs one reload on the run loop.
	reload := make(chan struct{}, 1)
	watcher := preset.NewWatcher(a.store.Dir(), 0, func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	})
	if err := watcher.Start(ctx); err != nil {
		a.logger.Warn("Preset watcher unavailable, hot reload disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	a.logger.Info("🔌 Connecting to graph service", "url", a.config.ServiceURL)
	br.Start(ctx)
	events := br.Events()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Shutdown requested.")
			br.Shutdown()
			// The bridge closes the event stream once the service
			// connection is torn down; apply the tail for a clean exit.
			for ev := range events {
				sess.HandleEvent(ev)
			}
			a.logger.Debug("App.Run method finished.")
			return a.closeHealthcheckServer(hs)
		case ev, ok := <-events:
			if !ok {
				a.logger.Debug("Event stream ended.")
				return a.closeHealthcheckServer(hs)
			}
			sess.HandleEvent(ev)
		case <-reload:
			a.logger.Info("Preset files changed, reloading", "dir", a.store.Dir())
			if err := a.store.Load(ctx); err != nil {
				a.logger.Error("Preset reload failed, keeping previous presets", "error", err)
				continue
			}
			sess.ReevaluateActive()
		}
	}
}
