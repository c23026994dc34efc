package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bdougie/truthlens/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web front end",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		sessions := server.NewRegistry(cfg.Server.SessionTTL)
		front := server.New(ctx, server.Options{
			MaxUploadBytes:    int64(cfg.Server.MaxUploadMB) << 20,
			AdvertisedMB:      cfg.Server.AdvertisedMB,
			AnalysesPerMinute: cfg.Server.AnalysesPerMinute,
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			UploadDir:         cfg.Server.UploadDir,
		}, sessions, p.newSession, logger)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           front.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("starting server", "port", port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			return sessions.Run(gctx, time.Minute)
		})
		// Graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			front.Wait()
			return err
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
