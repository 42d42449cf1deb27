package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lifeos/internal/archive"
	"lifeos/internal/clock"
	"lifeos/internal/config"
	"lifeos/internal/dispatch"
	"lifeos/internal/engine"
	"lifeos/internal/events"
	"lifeos/internal/goal"
	"lifeos/internal/heartbeat"
	"lifeos/internal/logging"
	"lifeos/internal/provider"
	"lifeos/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine until interrupted",
	Long: `Start the recurring analysis cycle and keep it running until
SIGINT/SIGTERM. State and heartbeat files live under the data
directory; messaging policy is hot-reloaded from the config file.`,
	RunE: runEngine,
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	durations, err := cfg.ParseDurations()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	clk := clock.NewSystem()
	bus := events.NewBus()

	registry := provider.NewRegistry(provider.DefaultDeclarations())
	// No data integrations registered yet: every provider reports
	// disconnected and the engine runs in coverage-building mode.
	registry.Seal()

	policy, err := policyFrom(cfg.Messaging)
	if err != nil {
		return err
	}
	messenger := dispatch.NewPolicyMessenger(logSender(logger), policy)
	prompts := dispatch.NewMemoryQueue()
	dispatcher := dispatch.New(messenger, prompts, logger)

	watcher, err := config.NewWatcher(configPath, cfg, logger)
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
		watcher.OnChange(func(mc config.MessagingConfig) {
			p, perr := policyFrom(mc)
			if perr != nil {
				logger.Warn("reloaded messaging policy invalid", zap.Error(perr))
				return
			}
			messenger.SetPolicy(p)
		})
	}

	var arch *archive.Store
	if cfg.Archive.Enabled {
		arch, err = archive.Open(cfg.ArchivePath(), logger)
		if err != nil {
			logger.Warn("archive unavailable", zap.Error(err))
			arch = nil
		} else {
			defer arch.Close()
		}
	}

	goals := goal.NewManager(clk, bus, nil, logger)
	goals.AllowTaskFallback = cfg.Goals.AllowTaskFallback

	digestPath := ""
	if cfg.Digest.Enabled {
		digestPath = cfg.DigestPath()
	}

	eng := engine.New(engine.Options{
		Clock:                  clk,
		Bus:                    bus,
		Logger:                 logger,
		Registry:               registry,
		Goals:                  goals,
		Dispatcher:             dispatcher,
		Store:                  state.NewStore(cfg.StatePath(), logger),
		Heartbeat:              heartbeat.NewRecorder(cfg.HeartbeatPath(), clk, logger),
		Archive:                arch,
		Durations:              durations,
		MaxConsecutiveFailures: cfg.Scheduler.MaxConsecutiveFailures,
		DigestPath:             digestPath,
	})

	eng.Start(durations.Interval)
	fmt.Printf("⚙️  lifeos engine running (interval %s, data dir %s)\n", durations.Interval, cfg.DataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	eng.Stop()
	return nil
}

func policyFrom(mc config.MessagingConfig) (dispatch.Policy, error) {
	start, err := dispatch.ParseClock(mc.QuietHoursStart)
	if err != nil {
		return dispatch.Policy{}, fmt.Errorf("quiet_hours_start: %w", err)
	}
	end, err := dispatch.ParseClock(mc.QuietHoursEnd)
	if err != nil {
		return dispatch.Policy{}, fmt.Errorf("quiet_hours_end: %w", err)
	}
	return dispatch.Policy{
		QuietStart: start,
		QuietEnd:   end,
		DailyQuota: mc.DailyAlertQuota,
		Verified:   mc.PhoneVerified,
	}, nil
}

// logSender stands in for a real outbound transport: delivered messages go
// to the log at warn level so they are visible in any deployment.
func logSender(logger *zap.Logger) dispatch.Sender {
	return dispatch.SenderFunc(func(_ context.Context, text string) error {
		logger.Warn("outbound alert", zap.String("text", text))
		return nil
	})
}
