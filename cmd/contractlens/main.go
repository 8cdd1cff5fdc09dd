package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dgallion1/contractlens/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "contractlens",
	Short: "contractlens - multi-stage contract analysis",
	Long: `contractlens analyzes contracts with a fixed set of reasoning stages
(structure, risk, negotiation) and merges their findings into one report.

Examples:
  contractlens serve                 # Start the HTTP API and webhook
  contractlens analyze lease.pdf     # Analyze one file and print the report
  contractlens stages                # Show the stage table in execution order`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (toml, yaml or json); environment variables take precedence")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(stagesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hints)
		}
		os.Exit(1)
	}
}

// loadConfig reads configuration and builds the process logger, writing to
// logOut. Commands that print results on stdout log to stderr.
func loadConfig(logOut io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, newLogger(cfg, logOut), nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
