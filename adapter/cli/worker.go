package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/slotlinehq/slotline/internal/app"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/eventbus"
	"github.com/slotlinehq/slotline/pkg/config"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background worker (outbox, consumers, retention)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer container.Close()

		if container.OutboxProcessor != nil {
			if err := container.OutboxProcessor.Start(ctx); err != nil {
				return fmt.Errorf("failed to start outbox processor: %w", err)
			}
			defer container.OutboxProcessor.Stop()
		}

		container.AuditPruner.Start(ctx)
		defer container.AuditPruner.Stop()

		// Broker mode: pull events back off RabbitMQ for the consumers.
		if cfg.RabbitMQURL != "" && container.ConsumerRegistry.ConsumerCount() > 0 {
			consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
				URL:    cfg.RabbitMQURL,
				Logger: logger,
			}, container.ConsumerRegistry)
			if err != nil {
				return fmt.Errorf("failed to connect consumer: %w", err)
			}
			defer consumer.Close()
			go func() {
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("event consumer stopped", "error", err)
				}
			}()
		}

		go runOutboxCleanup(ctx, container, cfg)
		go runWorkerHealth(ctx, cfg.WorkerHealthAddr)

		logger.Info("worker running")
		<-ctx.Done()
		return nil
	},
}

func runOutboxCleanup(ctx context.Context, container *app.Container, cfg *config.Config) {
	ticker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := container.OutboxRepo.DeleteOld(ctx, cfg.OutboxRetentionDays)
			if err != nil {
				logger.Error("outbox cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("outbox cleanup", "deleted", deleted)
			}
		}
	}
}

func runWorkerHealth(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"healthy"}`)
	})

	server := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker health endpoint failed", "error", err)
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
