package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/patchgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("patchgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
PatchGridGo - A headless patchbay daemon for media routing graphs.

Usage:
  patchgridgo [options] [SERVICE_URL]

Arguments:
  SERVICE_URL
    Endpoint of the graph service, e.g. http://localhost:8742.

Options:
`)
		flagSet.PrintDefaults()
	}

	urlFlag := flagSet.String("service-url", "", "Endpoint of the graph service.")
	sFlag := flagSet.String("s", "", "Endpoint of the graph service (shorthand).")
	presetsFlag := flagSet.String("presets", "presets", "Directory containing .hcl preset files.")
	settingsFlag := flagSet.String("settings", "settings.hcl", "Path to the settings file.")
	activateFlag := flagSet.String("activate", "", "Preset to activate on startup. Overrides the remembered one.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	serviceURL := ""
	if *urlFlag != "" {
		serviceURL = *urlFlag
	} else if *sFlag != "" {
		serviceURL = *sFlag
	} else if flagSet.NArg() > 0 {
		serviceURL = flagSet.Arg(0)
	}
	slog.Debug("Service URL determined.", "url", serviceURL)

	if serviceURL == "" {
		slog.Debug("No service URL provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ServiceURL:      serviceURL,
		PresetsPath:     *presetsFlag,
		SettingsPath:    *settingsFlag,
		ActivePreset:    *activateFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
