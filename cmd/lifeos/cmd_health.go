package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lifeos/internal/config"
	"lifeos/internal/heartbeat"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Inspect engine liveness from the heartbeat file",
	Long: `Read the engine heartbeat file and report liveness. Runs out of
process: it works whether or not the engine is up. Exit code is 0
on any successful read, including when no heartbeat exists yet.`,
	RunE: runHealthStatus,
}

var healthHoursCmd = &cobra.Command{
	Use:   "hours",
	Short: "Show the 24-hour activity log",
	RunE:  runHealthHours,
}

var healthActionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Show recent engine work items",
	RunE:  runHealthActions,
}

func init() {
	healthCmd.AddCommand(healthHoursCmd)
	healthCmd.AddCommand(healthActionsCmd)
}

// loadHeartbeat resolves the heartbeat path from config and reads it.
// A missing file is the "no data yet" case, not an error.
func loadHeartbeat() (*heartbeat.Heartbeat, time.Duration, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, 0, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	durations, err := cfg.ParseDurations()
	if err != nil {
		return nil, 0, err
	}

	hb, err := heartbeat.Read(cfg.HeartbeatPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, durations.StepTimeout, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return hb, durations.StepTimeout, nil
}

func runHealthStatus(cmd *cobra.Command, args []string) error {
	hb, stepTimeout, err := loadHeartbeat()
	if err != nil {
		return err
	}
	now := time.Now()
	status := heartbeat.DeriveStatus(hb, now, stepTimeout)

	icon := map[heartbeat.Status]string{
		heartbeat.StatusRunning: "✅",
		heartbeat.StatusStalled: "⚠️ ",
		heartbeat.StatusStopped: "🛑",
		heartbeat.StatusNoData:  "💤",
	}[status]
	fmt.Printf("%s Engine status: %s\n", icon, status)

	if hb == nil {
		fmt.Println("   No heartbeat recorded yet.")
		return nil
	}

	fmt.Printf("   Last beat:  %s ago\n", roundMinutes(now.Sub(hb.LastBeat)))
	if !hb.LastWork.IsZero() {
		fmt.Printf("   Last work:  %s ago\n", roundMinutes(now.Sub(hb.LastWork)))
	}
	fmt.Printf("   Uptime since: %s\n", hb.UptimeStarted.Format(time.RFC1123))
	fmt.Printf("   Totals: %d work items, %d errors, %d restarts\n",
		hb.TotalWork, hb.TotalErrors, hb.Restarts)

	var beats, work, errs int
	for _, b := range hb.HourlyLog {
		beats += b.Beats
		work += b.WorkItems
		errs += b.Errors
	}
	fmt.Printf("   Last 24h: %d beats, %d work items, %d errors\n", beats, work, errs)

	if len(hb.RecentActions) > 0 {
		fmt.Println("   Recent:")
		for i, a := range hb.RecentActions {
			if i >= 5 {
				break
			}
			fmt.Printf("     - %s  %s\n", a.At.Format("15:04"), a.Description)
		}
	}
	return nil
}

func runHealthHours(cmd *cobra.Command, args []string) error {
	hb, _, err := loadHeartbeat()
	if err != nil {
		return err
	}
	if hb == nil || len(hb.HourlyLog) == 0 {
		fmt.Println("No hourly activity recorded yet.")
		return nil
	}
	fmt.Println("Hour              Beats  Work  Errors")
	for _, b := range hb.HourlyLog {
		fmt.Printf("%-16s  %5d  %4d  %6d\n", b.Hour, b.Beats, b.WorkItems, b.Errors)
	}
	return nil
}

func runHealthActions(cmd *cobra.Command, args []string) error {
	hb, _, err := loadHeartbeat()
	if err != nil {
		return err
	}
	if hb == nil || len(hb.RecentActions) == 0 {
		fmt.Println("No recent actions recorded yet.")
		return nil
	}
	for _, a := range hb.RecentActions {
		fmt.Printf("%s  %s\n", a.At.Format("2006-01-02 15:04:05"), a.Description)
	}
	return nil
}

func roundMinutes(d time.Duration) string {
	if d < time.Minute {
		return "under a minute"
	}
	return fmt.Sprintf("%d min", int(d.Minutes()))
}
