package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/wekeo-mosaic/internal/wekeo"
	"github.com/robert-malhotra/wekeo-mosaic/pkg/server"
)

func serveCmd(a *app) *cobra.Command {
	var workDir string
	var baseURL string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the final composites of a working directory and accept pipeline runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if workDir == "" {
				workDir = cfg.Pipeline.WorkDir
			}
			if baseURL == "" {
				baseURL = "http://" + cfg.Server.Address()
			}

			// Runs stay disabled without credentials
			var creds wekeo.Credentials
			if found, err := resolveCredentials(cfg.WEkEO, "", ""); err == nil {
				creds = found
			} else {
				a.logger.Warn("no HDA credentials, POST /runs disabled", "error", err)
			}

			srv, err := server.New(server.Options{
				BaseURL:       baseURL,
				WorkDir:       workDir,
				DatasetsDir:   cfg.Pipeline.DatasetsDir,
				WEkEOBaseURL:  cfg.WEkEO.BaseURL,
				WEkEOUser:     creds.User,
				WEkEOPassword: creds.Password,
				PageSize:      cfg.WEkEO.PageSize,
				DEIMSBaseURL:  cfg.DEIMS.BaseURL,
				Timeout:       cfg.WEkEO.Timeout,
				RunTimeout:    cfg.Server.RunTimeout,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			httpServer := &http.Server{
				Addr:         cfg.Server.Address(),
				Handler:      srv.Router(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  120 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "addr", httpServer.Addr, "workdir", workDir)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-serverErr:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
				a.logger.Info("received shutdown signal")
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			a.logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown error: %w", err)
			}

			a.logger.Info("server stopped")
			return nil
		},
	}

	c.Flags().StringVarP(&workDir, "workdir", "w", "", "Working directory to serve (default: PIPELINE_WORK_DIR)")
	c.Flags().StringVar(&baseURL, "base-url", "", "Public base URL used in links (default: http://SERVER_HOST:SERVER_PORT)")
	return c
}
