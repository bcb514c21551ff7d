package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/config"
)

var (
	workerMode bool
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run retention purge commands",
}

var purgeIdempotencyCmd = &cobra.Command{
	Use:   "idempotency",
	Short: "Delete completed idempotency records past the retention window",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"purge_idempotency",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.PurgeInterval },
			func(svcs *services, ctx context.Context) error {
				cfg := svcs.cfg
				deleted, err := svcs.ledger.RunPurgeBatch(ctx, cfg.Idempotency.Retention, cfg.Jobs.PurgeBatchSize)
				if err != nil {
					return err
				}
				logrus.WithField("deleted", deleted).Info("Purged idempotency records")
				return nil
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.AddCommand(purgeIdempotencyCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(svcs *services, ctx context.Context) error,
) {
	svcs, cleanup := mustCreateServices()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(svcs.cfg), svcs, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(svcs, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	svcs *services,
	fn func(svcs *services, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(svcs, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(svcs, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
