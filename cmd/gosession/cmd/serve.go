package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MrEthical07/goSession/internal/httpapi"
)

var (
	listenAddr    string
	cleanupEvery  time.Duration
	shutdownGrace = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			app.HTTPAddr = listenAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, app)
		if err != nil {
			return err
		}
		defer rt.Close()

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		router, err := httpapi.NewRouter(httpapi.Options{
			Engine:   rt.engine,
			Logger:   rt.logger,
			Redis:    rt.redis,
			Registry: registry,
		})
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              app.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		if cleanupEvery > 0 {
			loopCtx, cancelLoop := context.WithCancel(ctx)
			defer cancelLoop()
			go runCleanupLoop(loopCtx, rt, cleanupEvery)
		}

		rt.logger.Info("listening",
			zap.String("addr", app.HTTPAddr),
			zap.String("env", app.Env),
			zap.String("storage", app.Storage.Driver),
		)

		select {
		case <-ctx.Done():
			rt.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "addr", "a", "", "listen address (overrides http.addr)")
	serveCmd.Flags().DurationVar(&cleanupEvery, "cleanup-interval", 0, "purge expired sessions on this interval; 0 disables")
	rootCmd.AddCommand(serveCmd)
}
