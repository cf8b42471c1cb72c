package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sweep scheduler and the monitoring loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(parent context.Context, rootOpts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	c, err := rootOpts.container(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.Logger

	server := &http.Server{
		Addr:              c.Config.Address(),
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("address", server.Addr).Info("🚀 HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("⚠️ HTTP server shutdown error")
		}
		return nil
	})

	if c.Config.Sweep.Enabled {
		g.Go(func() error {
			return c.Scheduler.Run(gCtx)
		})
	} else {
		logger.Info("⏭️ Sweep scheduler disabled")
	}

	g.Go(func() error {
		return c.MonitoringService.Run(gCtx)
	})

	err = g.Wait()

	logger.Info("🛑 Shutting down, stopping poll tasks")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := c.StatusService.Runner().Shutdown(shutdownCtx); serr != nil {
		logger.WithError(serr).Warn("⚠️ Poll tasks did not stop in time; pending records are left for the sweep")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Error("❌ Server exited with error")
		return err
	}
	logger.Info("✅ Server stopped")
	return nil
}
