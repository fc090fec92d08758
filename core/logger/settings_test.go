package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/fingames/core/config"
)

func TestSettingsDefaults(t *testing.T) {
	st := settingsFrom(nil)
	require.Equal(t, formatJSON, st.format)
	require.Equal(t, slog.LevelInfo, st.level)
	require.Equal(t, defaultKeyOrder, st.order)
	require.Empty(t, st.profile)

	st = settingsFrom(&coreconfig.Config{})
	require.Equal(t, "prod", st.profile)
	require.Equal(t, formatJSON, st.format)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &coreconfig.Config{Logging: coreconfig.LoggingConfig{
		Level:     "Warning",
		Profile:   "Dev",
		KeysOrder: " event, rid ,,game",
		Dir:       "/var/log/fingames",
		BotFile:   "bot.log",
	}}
	st := settingsFrom(cfg)
	require.Equal(t, slog.LevelWarn, st.level)
	require.Equal(t, "dev", st.profile)
	require.Equal(t, formatKV, st.format)
	require.Equal(t, []string{"event", "rid", "game"}, st.order)
	require.Equal(t, filepath.Join("/var/log/fingames", "bot.log"), st.file)

	cfg.Logging.Format = "json"
	cfg.Logging.Level = "loud"
	st = settingsFrom(cfg)
	require.Equal(t, formatJSON, st.format)
	require.Equal(t, slog.LevelInfo, st.level)
}

func TestOpenOutputsCreatesLogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	st := settingsFrom(&coreconfig.Config{Logging: coreconfig.LoggingConfig{Dir: dir, BotFile: "bot.log"}})

	writers, closers, err := st.openOutputs()
	require.NoError(t, err)
	require.Len(t, writers, 2)
	require.Len(t, closers, 1)
	require.NoError(t, closers[0].Close())
	_, err = os.Stat(filepath.Join(dir, "bot.log"))
	require.NoError(t, err)
}

func TestOpenOutputsReportsBadDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	st := settings{file: filepath.Join(blocker, "bot.log")}

	_, _, err := st.openOutputs()
	require.ErrorContains(t, err, "create log dir")
}
