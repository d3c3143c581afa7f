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
	"go.uber.org/zap"

	"github.com/caretext/arena-cli/internal/server"
	"github.com/caretext/arena-cli/internal/session"
	"github.com/caretext/arena-cli/internal/tournament"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the survey API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		m, content, err := initManifest()
		if err != nil {
			return err
		}

		ties := tournament.NewTieBreaker(cfg.Tournament.FavoredMethods)
		srv := server.New(server.Deps{
			Store:       st,
			Manifest:    m,
			Content:     content,
			Tokens:      session.NewTokens(cfg.Session.Secret, time.Duration(cfg.Session.TokenTTLHours)*time.Hour),
			Gate:        session.NewGate(cfg.Session.AccessCodes, cfg.Session.JoinPerMinute, cfg.Session.JoinBurst),
			Scheduler:   tournament.NewScheduler(ties),
			TieBreaker:  ties,
			CORSOrigins: cfg.Server.CORSOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("manifest", cfg.Manifest.Path),
			zap.Strings("components", m.Components),
			zap.Int("methods", len(m.Methods)))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
