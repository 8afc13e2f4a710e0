// Command aidlens runs the aid-flow forecasting engine: an HTTP server for
// the dashboard, a one-shot forecast command, and a batch cache warmer.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aidlens/aidlens/internal/config"
)

var (
	configFile string
	cfg        *config.Config
	log        *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aidlens",
		Short: "Development-aid flow forecasting and explainability engine",
		Long: `aidlens ingests historical development-aid flow records and produces
multi-year forecasts with uncertainty bounds, accuracy scores, and
feature-attribution explanations.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return err
			}
			log = newLogger(cfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(warmCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}
