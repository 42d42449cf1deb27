// Package main implements the lifeos CLI: the engine process plus the
// sidecar health and state inspection commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lifeos",
	Short: "Autonomous life-management engine",
	Long: `lifeos runs a recurring analysis cycle over your connected life
data (finances, health, calendar, safety, email, news), derives
insights and actions per life area, and tracks goals with
measurable completion criteria.

The engine never acts on consequential matters without approval:
financial transactions, external communication, account changes,
publishing, and system changes are always gated.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lifeos.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory override (or LIFEOS_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(stateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
