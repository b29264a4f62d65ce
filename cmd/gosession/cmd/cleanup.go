package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cleanupInterval time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge expired and revoked sessions",
	Long: `cleanup removes session records that can no longer authenticate anyone.
With --interval it keeps running and purges on that cadence until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, app)
		if err != nil {
			return err
		}
		defer rt.Close()

		if cleanupInterval <= 0 {
			_, err := cleanupOnce(ctx, rt)
			return err
		}
		runCleanupLoop(ctx, rt, cleanupInterval)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupInterval, "interval", 0, "repeat on this interval until interrupted")
	rootCmd.AddCommand(cleanupCmd)
}

func cleanupOnce(ctx context.Context, rt *runtime) (int, error) {
	n, err := rt.engine.CleanupExpired(ctx)
	if err != nil {
		rt.logger.Error("session cleanup failed", zap.Error(err))
		return 0, err
	}
	rt.logger.Info("session cleanup", zap.Int("removed", n))
	return n, nil
}

// runCleanupLoop purges on every tick until ctx is done. Failures are logged and
// retried on the next tick.
func runCleanupLoop(ctx context.Context, rt *runtime, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = cleanupOnce(ctx, rt)
		}
	}
}
