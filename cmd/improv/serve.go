package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/improvweb/improv/internal/cache"
	"github.com/improvweb/improv/internal/config"
	"github.com/improvweb/improv/internal/generator"
	"github.com/improvweb/improv/internal/llm"
	"github.com/improvweb/improv/internal/pagemem"
	"github.com/improvweb/improv/internal/pipeline"
	"github.com/improvweb/improv/internal/server"
	"github.com/improvweb/improv/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the improv HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Defaults()
			if configFile != "" {
				var err error
				cfg, err = config.Load(configFile)
				if err != nil {
					return err
				}
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger := telemetry.NewLogger(os.Stdout, logLevel(cfg))
			metrics := telemetry.NewMetrics()

			mainClient, mainModel := llm.NewClientForModel(cfg.Models.Main)
			utilityClient, utilityModel := llm.NewClientForModel(cfg.Models.Utility)

			summarizer := telemetry.InstrumentSummarizer(
				generator.NewSummarizer(utilityClient, utilityModel), metrics)

			store := pagemem.New(cfg.Memory.File, summarizer, logger)
			responses := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)

			opts := pipeline.Options{
				Timeout:  cfg.Generator.Timeout,
				Coalesce: cfg.Pipeline.Coalesce,
			}
			pages := pipeline.New(
				generator.New(mainClient, mainModel, cfg.Generator.Temperature, logger),
				responses, store, metrics, logger, opts)
			random := pipeline.New(
				generator.New(utilityClient, utilityModel, cfg.Generator.Temperature, logger),
				responses, store, metrics, logger, opts)

			mapper := generator.NewPathMapper(utilityClient, utilityModel)

			srv := server.NewServer(pages, random, mapper, mainClient, mainModel, metrics,
				server.WithLogger(logger))

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)

			if cfg.Memory.Watch {
				g.Go(func() error {
					if err := store.Watch(ctx); err != nil && ctx.Err() == nil {
						return fmt.Errorf("memory watcher: %w", err)
					}
					return nil
				})
			}

			g.Go(func() error {
				logger.Info("serving improvised pages",
					"addr", cfg.Server.Addr,
					"main_model", cfg.Models.Main,
					"utility_model", cfg.Models.Utility)
				if err := srv.ListenAndServe(cfg.Server.Addr); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer stop()
				logger.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}

func logLevel(cfg config.Config) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch cfg.LogLevel {
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
