package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"mediasrv/internal/config"
)

const (
	logLevelEnvKey  = "MEDIASRV_LOG_LEVEL"
	logFormatEnvKey = "MEDIASRV_LOG_FORMAT"
)

type settingSource string

const (
	sourceFlag    settingSource = "flag"
	sourceEnv     settingSource = "env"
	sourceConfig  settingSource = "config"
	sourceDefault settingSource = "default"
)

type logFormat string

const (
	logFormatText logFormat = "text"
	logFormatJSON logFormat = "json"
)

// loggerSettings is the resolved logger configuration plus where each value came from.
type loggerSettings struct {
	level        slog.Level
	levelRaw     string
	levelSource  settingSource
	format       logFormat
	formatRaw    string
	formatSource settingSource
}

// configureLoggerForCLI installs the default slog logger. Invalid flag values
// are errors; invalid env or config values fall back with a warning.
func configureLoggerForCLI(flagLevel, flagFormat, configLevel string) (string, error) {
	settings := loggerSettings{}
	var warnings []string

	settings.levelRaw, settings.levelSource = pickSetting(flagLevel, os.Getenv(logLevelEnvKey), configLevel)
	level, err := parseLogLevel(settings.levelRaw)
	if err != nil {
		switch settings.levelSource {
		case sourceFlag:
			return "", fmt.Errorf("invalid --log-level %q", flagLevel)
		case sourceEnv:
			warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, settings.levelRaw, config.DefaultLogLevel))
		case sourceConfig:
			warnings = append(warnings, fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", settings.levelRaw, config.DefaultLogLevel))
		}
		level, _ = parseLogLevel("")
	}
	settings.level = level

	settings.formatRaw, settings.formatSource = pickSetting(flagFormat, os.Getenv(logFormatEnvKey), "")
	format, err := parseLogFormat(settings.formatRaw)
	if err != nil {
		if settings.formatSource == sourceFlag {
			return "", fmt.Errorf("invalid --log-format %q (use text or json)", flagFormat)
		}
		warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logFormatEnvKey, settings.formatRaw, logFormatText))
		format = logFormatText
	}
	settings.format = format

	slog.SetDefault(newLogger(os.Stderr, settings))
	return strings.Join(warnings, "\n"), nil
}

func pickSetting(flagValue, envValue, configValue string) (string, settingSource) {
	switch {
	case strings.TrimSpace(flagValue) != "":
		return flagValue, sourceFlag
	case strings.TrimSpace(envValue) != "":
		return envValue, sourceEnv
	case strings.TrimSpace(configValue) != "":
		return configValue, sourceConfig
	default:
		return "", sourceDefault
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = config.DefaultLogLevel
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelDebug, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func parseLogFormat(raw string) (logFormat, error) {
	switch logFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", logFormatText:
		return logFormatText, nil
	case logFormatJSON:
		return logFormatJSON, nil
	default:
		return logFormatText, fmt.Errorf("invalid log format %q", raw)
	}
}

func newLogger(w io.Writer, settings loggerSettings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: settings.level}
	if settings.format == logFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
