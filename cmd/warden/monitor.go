package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/pkg/api"
	"github.com/wardenhq/warden/pkg/checker"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/events"
	"github.com/wardenhq/warden/pkg/log"
	"github.com/wardenhq/warden/pkg/metrics"
	"github.com/wardenhq/warden/pkg/monitor"
	"github.com/wardenhq/warden/pkg/subject"
	"github.com/wardenhq/warden/pkg/ticket"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the monitor loops and ticket API",
	Long: `Start one monitor loop per configured subject, plus the ticket
API server. Configuration errors are fatal; everything after startup
is retried indefinitely.`,
	RunE: runMonitor,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one observation cycle and print the violations",
	RunE:  runCheck,
}

func init() {
	monitorCmd.Flags().StringP("config", "c", "warden.yaml", "Configuration file")
	checkCmd.Flags().StringP("config", "c", "warden.yaml", "Configuration file")
	checkCmd.Flags().String("subject", "", "Subject to check (default: all)")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(checkCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.JSONLogs,
	})
	metrics.SetVersion(Version)

	if len(cfg.Subjects) == 0 {
		return fmt.Errorf("no subjects configured")
	}

	store, err := ticket.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open ticket store: %w", err)
	}
	defer store.Close()
	metrics.RegisterCriticalComponent("store", true, "")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	monitors, err := buildMonitors(cfg, store, broker)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, m := range monitors {
		wg.Add(1)
		go func(m *monitor.Monitor) {
			defer wg.Done()
			m.Run(ctx)
		}(m)
	}

	apiServer := api.NewServer(store, broker)
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.APIAddr); err != nil {
			errCh <- err
		}
	}()

	log.Info("Warden is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		log.Errorf("API server failed", err)
	}

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return apiServer.Shutdown(shutdownCtx)
}

func runCheck(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	only, _ := cmd.Flags().GetString("subject")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.WarnLevel})

	if only != "" {
		if _, err := cfg.Subject(only); err != nil {
			return err
		}
	}

	total := 0
	for i := range cfg.Subjects {
		sc := &cfg.Subjects[i]
		if only != "" && sc.Name != only {
			continue
		}

		source, err := subject.FromConfig(sc)
		if err != nil {
			return err
		}
		chk, err := buildChecker(cfg, sc)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Monitor.ObserveTimeout)
		obs, err := source.Observe(ctx)
		cancel()
		if err != nil {
			fmt.Printf("%s: observation failed: %v\n", sc.Name, err)
			continue
		}

		violations := chk.Check(obs)
		for _, v := range violations {
			entity := v.EntityID
			if entity == "" {
				entity = "-"
			}
			fmt.Printf("%s  %-10s %-24s %-12s %s\n",
				sc.Name, v.Severity, v.Name, entity, v.Message)
		}
		total += len(violations)
	}

	if total == 0 {
		fmt.Println("No violations detected.")
	}
	return nil
}

func buildMonitors(cfg *config.Config, store ticket.Store, broker *events.Broker) ([]*monitor.Monitor, error) {
	var monitors []*monitor.Monitor
	for i := range cfg.Subjects {
		sc := &cfg.Subjects[i]

		source, err := subject.FromConfig(sc)
		if err != nil {
			return nil, err
		}
		chk, err := buildChecker(cfg, sc)
		if err != nil {
			return nil, err
		}

		monitors = append(monitors, monitor.New(monitor.Config{
			Source:         source,
			Checker:        chk,
			Store:          store,
			Broker:         broker,
			Interval:       cfg.Monitor.Interval,
			ObserveTimeout: cfg.Monitor.ObserveTimeout,
		}))
	}
	return monitors, nil
}

func buildChecker(cfg *config.Config, sc *config.SubjectConfig) (*checker.Checker, error) {
	invariants := checker.DefaultsFor(sc.Type)
	configured, err := checker.FromConfig(cfg.InvariantsFor(sc.Name))
	if err != nil {
		return nil, err
	}
	return checker.New(append(invariants, configured...)), nil
}
