// Command captain runs the route planning dashboard and offers one-shot
// CLI access to the route optimization service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aicaptain/internal/config"
	"aicaptain/internal/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "captain",
	Short: "AI Captain route optimization dashboard and client",
	Long: `captain talks to the AI Captain route optimization service.

"captain serve" runs the dashboard backend; the other commands perform a
single call from the terminal using the same validation and credentials.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.LogJSON)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(waypointsCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(alternativesCmd)
	rootCmd.AddCommand(fleetCmd)
	rootCmd.AddCommand(deviationsCmd)
	rootCmd.AddCommand(forecastCmd)
	rootCmd.AddCommand(voyageCmd)
	rootCmd.AddCommand(positionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
