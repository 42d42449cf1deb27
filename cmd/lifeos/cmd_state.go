package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lifeos/internal/config"
	"lifeos/internal/life"
	"lifeos/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Summarize the persisted engine state",
	RunE:  runState,
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if _, err := os.Stat(cfg.StatePath()); os.IsNotExist(err) {
		fmt.Println("No engine state yet. Run `lifeos run` first.")
		return nil
	}
	st := state.NewStore(cfg.StatePath(), nil).Load()

	fmt.Printf("📊 Engine state (%s)\n", cfg.StatePath())
	fmt.Printf("   Cycles: %d", st.CycleCount)
	if !st.LastCycle.IsZero() {
		fmt.Printf(", last %s", st.LastCycle.Format(time.RFC1123))
	}
	fmt.Println()

	if len(st.AreaScores) > 0 {
		fmt.Println("   Life scores:")
		for _, info := range life.DefaultAreas() {
			if score, ok := st.AreaScores[info.ID]; ok {
				fmt.Printf("     %-10s %3d\n", info.Name, score)
			}
		}
	}

	if st.CurrentGoal != nil {
		fmt.Printf("   Current goal: %s (%.0f%% complete)\n",
			st.CurrentGoal.Title, st.CurrentGoal.Progress())
	} else {
		fmt.Println("   Current goal: none")
	}
	if n := len(st.OnHoldGoals); n > 0 {
		fmt.Printf("   On hold: %d goal(s)\n", n)
	}

	fmt.Printf("   Insights: %d  Pending actions: %d  Completed: %d\n",
		len(st.Insights), len(st.PendingActions), len(st.CompletedActions))

	if st.ErrorRecovery.ConsecutiveFailures > 0 {
		fmt.Printf("   ⚠️  %d consecutive failures, last: %s\n",
			st.ErrorRecovery.ConsecutiveFailures, st.ErrorRecovery.LastError)
	}
	return nil
}
