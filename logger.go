package yessql

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler and
// configures the log level based on the YESSQL_LOG_LEVEL environment
// variable. Defaults to Info when unset or unrecognized.
//
// Applications should call this at startup if they want the default yessql
// logging configuration; libraries embedding yessql are free to configure
// slog themselves instead.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	switch os.Getenv("YESSQL_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel sets the logging level for the logger configured by
// ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
