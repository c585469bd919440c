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

	"github.com/walkshed/access-cli/internal/api"
	"github.com/walkshed/access-cli/internal/monitoring"
	"github.com/walkshed/access-cli/internal/report"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only scoring API",
	Long:  "Serves the catalog, ad-hoc scoring, stored location scores, and area rollups over HTTP until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}

		cache := report.NewCache(cfg.Report.CacheEntries, time.Duration(cfg.Report.CacheTTLSecs)*time.Second)
		handler := api.NewHandler(st, catalog, cache, cfg.Rollup)

		// Background run-health checks alert over the webhook when set.
		if cfg.Monitor.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitor),
				cfg.Monitor,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler.Router(cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
