package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/aretw0/onestep"
	"github.com/aretw0/onestep/internal/cli"
	"github.com/aretw0/onestep/internal/logging"
	httpAdapter "github.com/aretw0/onestep/pkg/adapters/http"
	"github.com/aretw0/onestep/pkg/observability"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves POST /runs/{runKey}, GET /runs/{runKey}, GET /steps and GET /metrics.
Logs are written to stderr as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		logger := logging.NewWithWriter(cmd.ErrOrStderr(), logging.Level(globals.Debug), true)
		metrics := observability.NewMetrics(observability.DefaultNamespace)
		metrics.Registry().MustRegister(collectors.NewGoCollector())

		eng, backend, err := cli.NewEngine(sigCtx, globals, logger, onestep.WithLifecycleHooks(metrics.Hooks()))
		if err != nil {
			return err
		}
		defer backend.Close()

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           httpAdapter.NewHandler(eng, httpAdapter.WithMetrics(metrics), httpAdapter.WithLogger(logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting onestep server", "addr", srv.Addr, "store", globals.Store.Kind)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-sigCtx.Done():
			logger.Info("Start shutdown", "signal", fmt.Sprint(sigCtx.Signal()))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Graceful shutdown did not complete", slog.Any("err", err))
				return srv.Close()
			}
			logger.Info("Server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8080", "Address to listen on")
}
