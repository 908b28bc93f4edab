package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs a JSON (default) or text slog handler as the process-wide
// default, tagged with the service name. LOG_LEVEL=debug enables debug logs.
func Init(service, format string) *slog.Logger {
	format = strings.ToLower(strings.TrimSpace(format))

	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	if format != "" && format != "json" && format != "text" {
		logger.Warn("unknown log format, defaulting to json", "format", format)
	}
	return logger
}
