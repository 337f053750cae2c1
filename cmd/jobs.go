package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-poll the gateway for stale open checkout sessions",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(ctx context.Context, s *service.CheckoutService) error {
				return s.RunReconcileBatch(ctx)
			},
		)
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Run payment notification related commands",
}

var notificationsDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Deliver pending terminal-status notifications to the configured endpoint",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"notifications_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.NotifyDispatchInterval },
			func(ctx context.Context, s *service.CheckoutService) error {
				return s.RunDispatchNotificationsBatch(ctx)
			},
		)
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Run expiration-related commands",
}

var expirePendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Expire checkout sessions left open past the pending timeout",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"expire_pending",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpirePendingInterval },
			func(ctx context.Context, s *service.CheckoutService) error {
				return s.RunExpirePendingBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(expireCmd)
	notificationsCmd.AddCommand(notificationsDispatchCmd)
	expireCmd.AddCommand(expirePendingCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

type batchFunc func(ctx context.Context, s *service.CheckoutService) error

func runCommand(name string, intervalResolver func(cfg *config.Config) time.Duration, fn batchFunc) {
	cfg, checkoutService, cleanup := mustCreateCheckoutService()
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !workerMode {
		runJob(ctx, name, checkoutService, fn)
		return
	}

	interval := intervalResolver(cfg)
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}
	runWorker(ctx, name, interval, checkoutService, fn)
}

// runWorker runs fn immediately and then on every tick until ctx is cancelled.
// A batch in flight at shutdown sees the cancelled context.
func runWorker(ctx context.Context, name string, interval time.Duration, checkoutService *service.CheckoutService, fn batchFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runJob(ctx, name, checkoutService, fn)
	for {
		select {
		case <-ctx.Done():
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(ctx, name, checkoutService, fn)
		}
	}
}

func runJob(ctx context.Context, name string, checkoutService *service.CheckoutService, fn batchFunc) {
	start := time.Now()
	err := fn(ctx, checkoutService)
	entry := logrus.WithFields(logrus.Fields{
		"job":     name,
		"latency": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("job_failed")
		return
	}
	entry.Info("job_completed")
}
