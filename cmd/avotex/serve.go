package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vexmx/avotex/internal/assistant"
	"github.com/vexmx/avotex/internal/config"
	"github.com/vexmx/avotex/internal/metrics"
	"github.com/vexmx/avotex/internal/ml"
	"github.com/vexmx/avotex/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd.ErrOrStderr())

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(runCtx, ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cc *commandContext, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// Initialize database
	db, err := cc.openStore(logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize classifier
	model, err := ml.NewModel(ml.SettingsFromConfig(cfg), logger, m)
	if err != nil {
		return fmt.Errorf("failed to create ML model: %w", err)
	}
	defer model.Close()
	if err := model.Load(ctx); err != nil {
		return fmt.Errorf("failed to load ML model: %w", err)
	}
	logger.Info("classifier ready", "transports", model.Transports())

	asst, closeAssistant, err := newAssistant(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAssistant()

	srv := server.New(server.Options{
		DB:              db,
		Classifier:      model,
		Assistant:       asst,
		Metrics:         m,
		Logger:          logger,
		StaticDir:       cfg.Server.StaticDir,
		CaptureInterval: cfg.CaptureInterval(),
		AutoCapture:     cfg.Capture.Auto,
	})
	return srv.Start(ctx, cfg.Server.Port)
}

// newAssistant returns a disabled assistant unless it is enabled and a
// Google project is configured.
func newAssistant(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*assistant.Assistant, func(), error) {
	google := ml.GoogleConfigFromConfig(cfg)
	if !cfg.Assistant.Enabled || !google.Enabled() {
		if cfg.Assistant.Enabled {
			logger.Warn("assistant enabled but no google project configured")
		}
		return assistant.New(nil, cfg.Assistant.ContactEmail, logger), func() {}, nil
	}

	gemini, err := assistant.NewGemini(ctx, google)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create assistant: %w", err)
	}
	closeFn := func() {
		if err := gemini.Close(); err != nil {
			logger.Warn("failed to close assistant client", "error", err)
		}
	}
	return assistant.New(gemini, cfg.Assistant.ContactEmail, logger), closeFn, nil
}
