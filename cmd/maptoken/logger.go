package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mandalnilabja/maptoken/internal/config"
	"github.com/mandalnilabja/maptoken/internal/version"
)

func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func printStartupBanner(cfg *config.Config) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "maptoken %s - map token broker\n", version.Version)
	fmt.Fprintln(os.Stderr, "════════════════════════════════════════════════")
	fmt.Fprintf(os.Stderr, "Token:      http://localhost%s/api/token\n", cfg.ServerPort)
	if cfg.TileUpstream != "" {
		fmt.Fprintf(os.Stderr, "Tiles:      http://localhost%s/tiles/ -> %s\n", cfg.ServerPort, cfg.TileUpstream)
	}
	fmt.Fprintf(os.Stderr, "Admin API:  http://localhost%s/api/admin/\n", cfg.ServerPort)
	fmt.Fprintf(os.Stderr, "Secrets:    %s\n", cfg.SecretBackend)
	fmt.Fprintf(os.Stderr, "Data:       %s\n", config.DataDir())
	fmt.Fprintln(os.Stderr, "════════════════════════════════════════════════")
	fmt.Fprintf(os.Stderr, "\n")
}
