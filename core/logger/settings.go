package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	coreconfig "github.com/m3rciful/fingames/core/config"
)

// settings is the resolved logging section of the config.
type settings struct {
	format  logFormat
	order   []string
	level   slog.Level
	profile string
	sample  string
	file    string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format: formatJSON,
		order:  append([]string(nil), defaultKeyOrder...),
		level:  slog.LevelInfo,
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	s.profile = strings.ToLower(strings.TrimSpace(lc.Profile))
	if s.profile == "" {
		s.profile = "prod"
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		if order := splitKeys(raw); len(order) > 0 {
			s.order = order
		}
	}

	if raw := strings.TrimSpace(lc.Level); raw != "" {
		if strings.EqualFold(raw, "warning") {
			raw = "warn"
		}
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(raw)); err == nil {
			s.level = lvl
		}
	}

	s.sample = lc.DebugSample
	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// openOutputs returns stdout plus the log file when one is configured.
func (s settings) openOutputs() ([]io.Writer, []io.Closer, error) {
	writers := []io.Writer{os.Stdout}
	if s.file == "" {
		return writers, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(s.file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return append(writers, f), []io.Closer{f}, nil
}
