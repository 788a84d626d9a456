package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/wudi/pdfslim/observability"
	"github.com/wudi/pdfslim/security"
)

type fileConfig struct {
	Log          logConfig       `toml:"log"`
	Limits       security.Limits `toml:"limits"`
	KeepOriginal bool            `toml:"keep_original"`
}

type logConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Log:    logConfig{Level: "info", Format: "text"},
		Limits: security.DefaultLimits(),
	}
}

// loadConfig reads path over the defaults. Keys absent from the file keep
// their default values; unknown keys are rejected.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("parse config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

func newLogger(lc logConfig, w io.Writer) (observability.Logger, error) {
	level, ok := observability.ParseLevel(lc.Level)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", lc.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch lc.Format {
	case "", "text":
		return observability.NewSlogLogger(slog.New(slog.NewTextHandler(w, opts))), nil
	case "json":
		return observability.NewSlogLogger(slog.New(slog.NewJSONHandler(w, opts))), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", lc.Format)
	}
}
