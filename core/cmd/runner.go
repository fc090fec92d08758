// Package cmd runs a Telegram bot process: it loads configuration,
// bootstraps the app and serves updates until SIGINT or SIGTERM.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/fingames/core/config"
	"github.com/m3rciful/fingames/core/logger"
	coretelegram "github.com/m3rciful/fingames/core/telegram"
)

const defaultConfigEnvVar = "CONFIG_PATH"

var (
	errNoLoader    = errors.New("cmd: LoadConfig is required")
	errNoBootstrap = errors.New("cmd: Bootstrap is required")
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot.
// Apps that also implement io.Closer are closed after the bot stops.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigEnvVar names the variable holding the config path; CONFIG_PATH
	// when empty. DefaultConfigPath is used when the variable is unset.
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	// ShutdownLogger and RunTelegram default to logger.Shutdown and
	// coretelegram.RunTelegram.
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

func (o Options) configPath() (string, error) {
	env := o.ConfigEnvVar
	if env == "" {
		env = defaultConfigEnvVar
	}
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	if o.DefaultConfigPath != "" {
		return o.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
}

// Run loads configuration, bootstraps the app and blocks until the bot stops.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return errNoLoader
	}
	if opts.Bootstrap == nil {
		return errNoBootstrap
	}
	cfgPath, err := opts.configPath()
	if err != nil {
		return err
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg == nil || cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer closeApp(app)

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	withLifecycleLogs(&runOpts, time.Now())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

// withLifecycleLogs wraps OnStart and OnStop with the "app ready" and
// "shutting down" lines. A failing OnStart suppresses the ready line.
func withLifecycleLogs(opts *coretelegram.RunOptions, startedAt time.Time) {
	appLog := logger.L.With("component", "app")

	onStart := opts.OnStart
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		appLog.Info("app ready",
			slog.String("event", "ready"),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	onStop := opts.OnStop
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		appLog.Info("shutting down", slog.String("event", "shutdown"))
		if onStop == nil {
			return nil
		}
		return onStop(ctx, rt)
	}
}

func closeApp(app TelegramApp) {
	closer, ok := app.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.L.With("component", "app").Warn("close failed",
			slog.String("event", "shutdown"),
			slog.String("err", err.Error()),
		)
	}
}
