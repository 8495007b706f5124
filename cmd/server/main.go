// Package main is the entry point for the clothes API server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vyrodovalexey/clothes-api/internal/config"
	"github.com/vyrodovalexey/clothes-api/internal/handler"
	"github.com/vyrodovalexey/clothes-api/internal/server"
	"github.com/vyrodovalexey/clothes-api/internal/store"
)

const appName = "clothes-api"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}

// newRootCommand builds the CLI. Running without a subcommand serves the API.
func newRootCommand(out io.Writer) *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:          appName,
		Short:        "REST API for a paginated clothing catalogue stored in a JSON file",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger(cfgPath)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			return serve(cmd.Context(), cfg, logger)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the clothes document can be loaded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return check(cmd.Context(), cfg, out)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(out, "%s %s\n", appName, handler.Version)
		},
	}

	rootCmd.AddCommand(serveCmd, checkCmd, versionCmd)
	rootCmd.RunE = serveCmd.RunE

	return rootCmd
}

func loadConfigAndLogger(cfgPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("store_path", cfg.Store.Path),
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
	)

	return cfg, logger, nil
}

// serve runs the API until ctx is canceled, a termination signal arrives, or
// the listener fails.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	backend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	feed := handler.NewChangeFeed(logger, cfg.CORS.AllowedOrigins)
	recordStore := store.NewRecordStore(backend,
		store.WithNotifier(feed),
		store.WithLogger(logger),
	)

	if err := recordStore.Ping(ctx); err != nil {
		logger.Warn("clothes document is not readable, requests will fail until it is fixed", zap.Error(err))
	}

	srv := server.New(cfg, logger, recordStore, feed)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// newBackend opens the configured document backend.
func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Info("using in-memory clothes document")
		return store.NewMemoryDocument(), nil
	case config.BackendFile:
		doc := store.NewFileDocument(cfg.Store.Path)
		if cfg.Store.CreateIfMissing {
			created, err := doc.Init(ctx)
			if err != nil {
				return nil, fmt.Errorf("initializing %s: %w", cfg.Store.Path, err)
			}
			if created {
				logger.Info("created empty clothes document", zap.String("path", doc.Path()))
			}
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

// check loads the configured document and reports how many records it holds.
func check(ctx context.Context, cfg *config.Config, out io.Writer) error {
	backend, err := newBackend(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}

	doc, err := backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("check %s: %w", cfg.Store.Path, err)
	}

	fmt.Fprintf(out, "ok: %d records, next id %d\n", len(doc.Items), store.NextID(doc))
	return nil
}

// initLogger initializes a zap logger with the specified log level.
func initLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}
