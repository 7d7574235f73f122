// Command tablekit edits PostgreSQL tables, imports spreadsheets into them
// and manages auth provider settings, from the command line or over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/tablekit/internal/config"
	"github.com/koustreak/tablekit/internal/logger"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
	log *logger.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tablekit",
	Short: "Table editor and spreadsheet importer for PostgreSQL",
	Long: `tablekit creates and alters PostgreSQL tables from declarative drafts,
imports CSV and TSV files into them in batches, and edits the settings of
authentication providers.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default: $"+config.PathEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(authCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lc := cfg.LoggerConfig()
	lc.Output = os.Stderr
	if logLevel != "" {
		lc.Level = logLevel
	}
	log = logger.New(lc)
	logger.SetGlobal(log)
	cmd.SetContext(log.WithContext(cmd.Context()))
	return nil
}
