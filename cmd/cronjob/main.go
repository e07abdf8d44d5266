package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"staybook-backend/internal/app"
	"staybook-backend/internal/config"
	"staybook-backend/internal/jobs"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/queue"
	"staybook-backend/internal/scheduler"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "cronjob",
		Short:         "Staybook background jobs: escrow sweeps, reminders and the refund worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.dev.yaml", "Path to configuration file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config, initializes logging and wires the services
func bootstrap(ctx context.Context) (*app.App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Ignoring .env: %v\n", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	return app.New(ctx, cfg)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cron scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			logger.Info("Starting Staybook cronjob runner...", "log_level", a.Config.Log.Level)

			cronScheduler := scheduler.NewScheduler(jobs.NewJobRunner(a.Escrow, a.Config))
			cronScheduler.Start()
			logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

			<-ctx.Done()

			logger.Info("Shutting down cronjob scheduler...")
			cronScheduler.Stop()
			logger.Info("Cronjob scheduler stopped")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job once and exit",
		Long: `Run one job once and exit. Jobs:
  milestone-reminders, check-in-reminders, complete-stays,
  expire-pending, retry-refunds, expire-promos, all-daily`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			runner := jobs.NewJobRunner(a.Escrow, a.Config)
			logger.Info("Running job once", "job", args[0])
			if args[0] == "all-daily" {
				runner.RunAllDailyJobs()
				return nil
			}
			return runner.Run(args[0])
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume the refund queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Config.RabbitMQ.URL == "" {
				return errors.New("rabbitmq.url is required for the refund worker")
			}

			consumer := queue.NewRefundConsumer(a.Config.RabbitMQ.URL, a.Config.RabbitMQ.RefundQueue, a.Refunds)
			logger.Info("Refund worker started", "queue", a.Config.RabbitMQ.RefundQueue)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Refund worker stopped")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Store.Migrate(cmd.Context())
		},
	}
}
