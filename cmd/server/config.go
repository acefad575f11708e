package main

import (
	"log/slog"
	"os"
	"time"
)

// Config is loaded from the environment. Defaults suit local development.
type Config struct {
	Addr            string        `env:"ADDR,default=:8080"`
	AllowedOrigin   string        `env:"ALLOWED_ORIGIN,default=*"`
	SpawnX          float64       `env:"SPAWN_X,default=400"`
	SpawnY          float64       `env:"SPAWN_Y,default=300"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

func newLogger(level string) *slog.Logger {
	l := slog.LevelInfo
	switch level {
	case "dev", "development", "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error", "production", "prod":
		l = slog.LevelError
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: l,
		}),
	)
	slog.SetDefault(logger)
	return logger
}
