package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/pkg/client"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/log"
	"github.com/wardenhq/warden/pkg/ratelimit"
)

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Run or query the sliding-window rate limiter",
}

var ratelimitServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rate limiter service",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.LogLevel),
			JSONOutput: cfg.JSONLogs,
		})

		limiter, err := ratelimit.NewLimiter(
			cfg.DataDir,
			cfg.RateLimit.DefaultLimit,
			time.Duration(cfg.RateLimit.DefaultWindow)*time.Millisecond,
		)
		if err != nil {
			return err
		}
		defer limiter.Close()

		server := ratelimit.NewServer(limiter)
		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(cfg.RateLimit.Addr); err != nil {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errCh:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

var ratelimitCheckCmd = &cobra.Command{
	Use:   "check <key>",
	Short: "Consume one request slot for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		windowMS, _ := cmd.Flags().GetInt64("window-ms")

		res, err := limiterClient(cmd).CheckLimit(args[0], limit, windowMS)
		if err != nil {
			return err
		}

		if res.Allowed {
			fmt.Printf("allowed (count=%d remaining=%d)\n", res.CurrentCount, res.Remaining)
		} else {
			fmt.Printf("denied (count=%d retry_after=%.1fs)\n", res.CurrentCount, res.RetryAfterSeconds)
		}
		return nil
	},
}

var ratelimitResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Clear the sliding window for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reset, err := limiterClient(cmd).ResetCounter(args[0])
		if err != nil {
			return err
		}

		if reset {
			fmt.Println("✓ Counter reset")
		} else {
			fmt.Println("Counter was already empty")
		}
		return nil
	},
}

var ratelimitSetLimitCmd = &cobra.Command{
	Use:   "set-limit <key>",
	Short: "Set a per-key limit override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		windowMS, _ := cmd.Flags().GetInt64("window-ms")

		if err := limiterClient(cmd).SetLimit(args[0], limit, windowMS); err != nil {
			return err
		}
		fmt.Printf("✓ Limit for %s set to %d per %dms\n", args[0], limit, windowMS)
		return nil
	},
}

func limiterClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("addr")
	return client.New(addr)
}

func init() {
	ratelimitServeCmd.Flags().StringP("config", "c", "warden.yaml", "Configuration file")

	for _, c := range []*cobra.Command{ratelimitCheckCmd, ratelimitResetCmd, ratelimitSetLimitCmd} {
		c.Flags().String("addr", "http://localhost:8081", "Rate limiter address")
	}
	ratelimitCheckCmd.Flags().Int("limit", 0, "Limit override for this check")
	ratelimitCheckCmd.Flags().Int64("window-ms", 0, "Window override for this check (ms)")
	ratelimitSetLimitCmd.Flags().Int("limit", 0, "Requests allowed per window (required)")
	ratelimitSetLimitCmd.Flags().Int64("window-ms", 0, "Window size in milliseconds (required)")
	_ = ratelimitSetLimitCmd.MarkFlagRequired("limit")
	_ = ratelimitSetLimitCmd.MarkFlagRequired("window-ms")

	ratelimitCmd.AddCommand(ratelimitServeCmd)
	ratelimitCmd.AddCommand(ratelimitCheckCmd)
	ratelimitCmd.AddCommand(ratelimitResetCmd)
	ratelimitCmd.AddCommand(ratelimitSetLimitCmd)
	rootCmd.AddCommand(ratelimitCmd)
}
