package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alexa2anylist/alexa2anylist/internal/alexa"
	"github.com/alexa2anylist/alexa2anylist/internal/anylist"
	"github.com/alexa2anylist/alexa2anylist/internal/config"
	"github.com/alexa2anylist/alexa2anylist/internal/journal"
	"github.com/alexa2anylist/alexa2anylist/internal/lockfile"
	"github.com/alexa2anylist/alexa2anylist/internal/sync"
	"github.com/alexa2anylist/alexa2anylist/internal/telemetry"
)

const (
	journalFileName     = "journal.json"
	credentialsFileName = "anylist-credentials.json"
	cookiesFileName     = "cookies.json"
)

var (
	logLevel    string
	logJSON     bool
	stateDir    string
	showBrowser bool
	runOnce     bool
)

var rootCmd = &cobra.Command{
	Use:          "alexa2anylist",
	Short:        "Synchronize the Alexa shopping list into AnyList",
	Long:         "alexa2anylist polls an AnyList list and the Alexa shopping list,\ndiffs both sides against the last cycle, and reconciles with AnyList\nas the authority. A journal in the state directory makes partially\napplied cycles recoverable after a crash.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
	rootCmd.Flags().StringVar(&stateDir, "state-dir", "", "state directory (default: $CONFIG_PATH or .)")
	rootCmd.Flags().BoolVar(&showBrowser, "show-browser", false, "run Chrome headful (debugging sign-in)")
	rootCmd.Flags().BoolVar(&runOnce, "once", false, "run startup recovery and one sync cycle, then exit")
	rootCmd.AddCommand(versionCmd)
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func runDaemon(ctx context.Context) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir := stateDir
	if dir == "" {
		dir = config.Dir()
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	log.Info("Starting", "version", Version, "state_dir", dir,
		"list", cfg.PrimaryListName, "poll_interval", cfg.PollInterval)

	lock, err := lockfile.Acquire(dir, Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("Releasing state lock failed", "error", err)
		}
	}()

	shutdownTelemetry, err := telemetry.Init(ctx, "alexa2anylist", Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("Telemetry shutdown failed", "error", err)
		}
	}()
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return err
	}

	primary := anylist.New(anylist.Options{
		Email:           cfg.PrimaryUsername,
		Password:        cfg.PrimaryPassword,
		ListName:        cfg.PrimaryListName,
		CredentialsPath: filepath.Join(dir, credentialsFileName),
		Logger:          log.With("component", "anylist"),
	})
	if err := primary.Login(ctx); err != nil {
		return fmt.Errorf("anylist login: %w", err)
	}

	secondary, err := alexa.NewDriver(alexa.Options{
		Email:        cfg.SecondaryUsername,
		Password:     cfg.SecondaryPassword,
		MFASecret:    cfg.SecondaryMFASecret,
		AmazonDomain: cfg.SecondaryURL,
		CookiesPath:  filepath.Join(dir, cookiesFileName),
		ShowBrowser:  showBrowser,
		Logger:       log.With("component", "alexa"),
	})
	if err != nil {
		return err
	}
	if err := secondary.Start(ctx); err != nil {
		return fmt.Errorf("alexa login: %w", err)
	}
	defer secondary.Close()

	j := journal.New(filepath.Join(dir, journalFileName), log.With("component", "journal"))
	loop := sync.NewLoop(primary, secondary, j, sync.LoopConfig{
		PollInterval:    cfg.PollInterval,
		RecoveryHorizon: cfg.JournalRecoveryHorizon,
	}, log.With("component", "sync"), metrics)

	if runOnce {
		if err := loop.Startup(ctx); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		return loop.SyncOnce(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		// Push notifications only invalidate the snapshot cache; sync
		// correctness never depends on this goroutine.
		return primary.RunPushListener(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("Shutting down")
		return nil
	}
	return err
}
