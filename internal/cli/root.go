// Package cli implements the wekeo-mosaic command line.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/robert-malhotra/wekeo-mosaic/internal/config"
)

// app carries what every subcommand needs after the root pre-run.
type app struct {
	cfg      *config.Config
	datasets *config.DatasetRegistry
	logger   *slog.Logger
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	var logLevel string
	var logFormat string
	a := &app{}

	cmd := &cobra.Command{
		Use:           "wekeo-mosaic",
		Short:         "Fetch WEkEO HDA tiles for an area of interest and composite them per date and product",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			if logFormat != "" {
				cfg.Logging.Format = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			datasets, err := config.LoadDatasets(cfg.Pipeline.DatasetsDir)
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.datasets = datasets
			a.logger = setupLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text|json (overrides LOG_FORMAT)")

	cmd.AddCommand(
		runCmd(a),
		compositeCmd(a),
		serveCmd(a),
		credentialsCmd(a),
		datasetsCmd(a),
	)
	return cmd
}

// loadEnvFile loads a dotenv file. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}
