// Remo shell: desktop launcher for the Remo client.
//
// In packaged mode the shell generates a throwaway localhost certificate,
// serves the built application over HTTPS on a loopback ephemeral port and
// opens it. In dev mode it opens the live development server instead.
//
// Signals stand in for window events: SIGINT closes the window (the process
// quits unless running on darwin), SIGHUP reopens it, SIGTERM always exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/remo-app/remo-shell/internal/config"
	"github.com/remo-app/remo-shell/internal/shell"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Priority: CLI flag > environment variable > config file > default
	flagSet := pflag.NewFlagSet("remo-shell", pflag.ContinueOnError)
	cfg.BindFlags(flagSet)
	showVersion := flagSet.BoolP("version", "v", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("remo-shell", version)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog := newLogger(cfg)
	defer closeLog()

	lc := shell.New(shell.Options{
		Dev:         cfg.Dev,
		DevURL:      cfg.DevURL,
		RootDir:     cfg.RootDir,
		WatchAssets: cfg.WatchAssets,
		AccessLog:   cfg.AccessLog,
		NewWindow: func() (shell.Window, error) {
			return shell.NewBrowserWindow(shell.BrowserOptions{
				Timeout: cfg.LoadTimeout,
				Launch:  cfg.OpenBrowser,
				Logger:  logger,
			}), nil
		},
		OnStateChange: func(from, to shell.State) {
			logger.Debug("lifecycle", "from", from.String(), "to", to.String())
		},
		Logger: logger,
	})

	logger.Info("remo shell starting",
		"version", version,
		"dev", cfg.Dev,
		"root", cfg.RootDir,
		"config_file", cfg.File,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	if err := lc.Launch(ctx); err != nil {
		// No window was opened; nothing to clean up beyond the log.
		return fmt.Errorf("launch: %w", err)
	}
	if url := lc.URL(); url != "" {
		fmt.Fprintf(os.Stdout, "\n  Remo v%s\n  → %s\n\n", version, url)
	}

	for sig := range sigs {
		switch sig {
		case syscall.SIGHUP:
			if err := lc.Activate(ctx); err != nil {
				logger.Error("reactivation failed", "error", err)
			}
		case syscall.SIGTERM:
			logger.Info("terminating")
			return lc.Shutdown()
		default:
			if quit := lc.HandleWindowClosed(); quit {
				logger.Info("last window closed, exiting")
				return nil
			}
			logger.Info("window closed, staying resident", "reopen", "SIGHUP", "exit", "SIGTERM")
		}
	}
	return nil
}

// newLogger builds the process logger: stdout always, plus a rotating file
// when a log directory is configured.
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	var logWriter io.Writer = os.Stdout
	closeLog := func() {}
	if cfg.LogDir != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "remo-shell.log"),
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		logWriter = io.MultiWriter(os.Stdout, rotator)
		closeLog = func() { rotator.Close() }
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(logWriter, opts)), closeLog
	}
	return slog.New(slog.NewTextHandler(logWriter, opts)), closeLog
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
