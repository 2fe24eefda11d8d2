package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/api"
	"github.com/sells-group/provider-reconcile/internal/config"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: groupServe,
	Short:   "Start the provider reconciliation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Sources.Watch {
			if err := env.Fixtures.Watch(ctx); err != nil {
				zap.L().Warn("fixture watch disabled", zap.Error(err))
			}
		}

		server := api.New(env.Engine, env.Store, apiConfig(cfg.Server),
			api.WithExplainer(env.Explainer),
			api.WithBreakers(env.Breakers),
			api.WithMetrics(env.Metrics, env.Gatherer),
		)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func apiConfig(s config.ServerConfig) api.Config {
	return api.Config{
		CORSOrigins:   s.CORSOrigins,
		ExplainLimit:  s.ExplainRateLimit,
		ExplainWindow: time.Duration(s.ExplainWindowSecs) * time.Second,
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
