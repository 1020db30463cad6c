package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/patchgridgo/internal/ctxlog"
	"github.com/vk/patchgridgo/internal/preset"
	"github.com/vk/patchgridgo/internal/settings"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	settings *settings.Settings
	store    *preset.Store
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, loaded
// settings and a populated preset store.
func NewApp(outW io.Writer, appConfig *Config) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	sts, err := settings.Load(appConfig.SettingsPath)
	if err != nil {
		// A failure to load settings is a fatal startup error.
		panic(fmt.Errorf("failed to load settings: %w", err))
	}
	logger.Debug("Settings loaded.", "auto_connect", sts.AutoConnect, "active_preset", sts.ActivePreset)

	store := preset.NewStore(appConfig.PresetsPath)
	if err := store.Load(ctx); err != nil {
		panic(fmt.Errorf("failed to load presets: %w", err))
	}
	logger.Debug("Presets loaded.", "count", len(store.Names()), "dir", store.Dir())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		settings: sts,
		store:    store,
	}
}

// Store returns the application's preset store. This is primarily for testing.
func (a *App) Store() *preset.Store {
	return a.store
}

// initialPreset resolves which preset to activate on startup. The CLI
// flag wins over the remembered setting.
func (a *App) initialPreset() string {
	if a.config.ActivePreset != "" {
		return a.config.ActivePreset
	}
	return a.settings.ActivePreset
}

// notify surfaces user-facing announcements on the output stream.
func (a *App) notify(message string) {
	fmt.Fprintln(a.outW, message)
}

// persistActivePreset remembers the active preset across restarts.
func (a *App) persistActivePreset(name string) {
	a.settings.ActivePreset = name
	if err := settings.Save(a.config.SettingsPath, a.settings); err != nil {
		a.logger.Error("Failed to persist active preset", "error", err)
	}
}
