package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	coreapp "cprqa/internal/core/app"
	"cprqa/internal/core/config"
	"cprqa/internal/shared/observability"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health, and watch schemas and config until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()
			a := s.app
			cfg := a.Config

			if cfg.Observability.EnableTracing {
				shutdown, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint)
				if err != nil {
					return err
				}
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						slog.Warn("tracer shutdown failed", "error", err)
					}
				}()
			}

			logTemplateDrift(s.svc.ValidateTemplates(ctx))

			if err := a.StartSchemaWatcher(a.Schemas().Dir()); err != nil {
				slog.Warn("schema watcher unavailable", "dir", a.Schemas().Dir(), "error", err)
			}

			if s.cfgPath != "" {
				cw := config.NewWatcher(s.cfgPath, func(next *config.Config) {
					a.SetWatchDebounce(next.Watch.Debounce)
					slog.Info("config reloaded; path and template changes apply on restart", "path", s.cfgPath)
				})
				if err := cw.Start(ctx); err != nil {
					slog.Warn("config watcher unavailable", "path", s.cfgPath, "error", err)
				} else {
					defer cw.Stop()
				}
			}

			if cmd.Flags().Changed("port") {
				cfg.Observability.Port = port
			}
			server := NewObservabilityServer(fmt.Sprintf(":%d", cfg.Observability.Port), coreapp.NewHealthService(a))
			if err := server.Start(ctx); err != nil {
				return fmt.Errorf("start observability server: %w", err)
			}

			<-ctx.Done()
			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			return server.Stop(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Override observability.port")
	return cmd
}

func logTemplateDrift(results map[string][]string) {
	for id, warnings := range results {
		for _, warning := range warnings {
			slog.Warn("template drift", "template", id, "warning", warning)
		}
	}
}

func newSchemaCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with wizard schema definitions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Compare schema field ids with the template workbook headers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			results := s.svc.ValidateTemplates(cmd.Context())
			return emit(s.out, s.format, results, func(w io.Writer) { renderValidation(w, results) })
		},
	})
	return cmd
}

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the store, schemas and template workbooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			status := s.svc.Health(cmd.Context())
			return emit(s.out, s.format, status, func(w io.Writer) { renderHealth(w, status) })
		},
	}
}
