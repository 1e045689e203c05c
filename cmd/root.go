// Package cmd defines the CLI commands for the portalcrawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/config"
	"github.com/opencampus/portal-crawler/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	log     *zap.Logger
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portalcrawler",
		Short: "Builds a relational snapshot of an academic web portal.",
		Long: `portalcrawler walks a session-authenticated academic portal —
institutions, departments, classes, courses, admissions, enrollments and
schedules — and reconciles every page into a relational snapshot that can
be re-crawled incrementally without corrupting accumulated history.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			log, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			zap.ReplaceGlobals(log)
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "portalcrawler: %v\n", err)
		os.Exit(1)
	}
}
