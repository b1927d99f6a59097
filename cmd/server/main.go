package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okapilabs/paylink-go/internal/application/lifecycle"
	"github.com/okapilabs/paylink-go/internal/application/notify"
	"github.com/okapilabs/paylink-go/internal/application/reconcile"
	"github.com/okapilabs/paylink-go/internal/application/webhook"
	"github.com/okapilabs/paylink-go/internal/config"
	"github.com/okapilabs/paylink-go/internal/domain/provider"
	"github.com/okapilabs/paylink-go/internal/infra/logging"
	"github.com/okapilabs/paylink-go/internal/infra/metrics"
	httpapi "github.com/okapilabs/paylink-go/internal/infrastructure/http"
	"github.com/okapilabs/paylink-go/internal/infrastructure/persistence/boltstore"
	"github.com/okapilabs/paylink-go/internal/infrastructure/persistence/sqlite"
	"github.com/okapilabs/paylink-go/internal/infrastructure/providers/peach"
	"github.com/okapilabs/paylink-go/internal/infrastructure/providers/yoco"
)

func main() {
	root := &cobra.Command{
		Use:   "paylink-server",
		Short: "Payment lifecycle and reconciliation engine",
	}

	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()

			db, err := sqlite.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			return sqlite.RunMigrations(db)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the payment engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.FromEnv())
		},
	}
}

func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := &logging.JSONLogger{}
	counters := &metrics.Counters{}

	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlite.RunMigrations(db); err != nil {
		return err
	}

	webhookLog, err := boltstore.Open(cfg.WebhookLogPath)
	if err != nil {
		return err
	}
	defer webhookLog.Close()

	repo := sqlite.NewPaymentLinkRepository(db)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	adapters := map[string]provider.Adapter{
		"yoco": &yoco.Adapter{
			APIKey:        cfg.YocoAPIKey,
			WebhookSecret: cfg.YocoWebhookSecret,
			BaseURL:       cfg.YocoBaseURL,
			Client:        httpClient,
		},
		"peach": &peach.Adapter{
			EntityID:      cfg.PeachEntityID,
			APIKey:        cfg.PeachAPIKey,
			WebhookSecret: cfg.PeachWebhookSecret,
			BaseURL:       cfg.PeachBaseURL,
			Client:        httpClient,
		},
	}
	if _, ok := adapters[cfg.Provider]; !ok {
		return errors.New("unknown provider: " + cfg.Provider)
	}

	notifier := &notify.Notifier{
		OrderSystemURL: cfg.OrderSystemURL,
		Client:         httpClient,
		MaxAttempts:    cfg.NotifyMaxAttempts,
		BaseDelay:      cfg.NotifyBaseDelay,
		MaxDelay:       cfg.NotifyMaxDelay,
		Timeout:        cfg.HTTPTimeout,
		Lifetime:       ctx,
		Logger:         logger,
		Metrics:        counters,
	}

	engine := &lifecycle.Service{
		Repo:            repo,
		Adapters:        adapters,
		DefaultProvider: cfg.Provider,
		Notifier:        notifier,
		Logger:          logger,
		Metrics:         counters,
	}

	ingestor := &webhook.Ingestor{
		Adapters:        adapters,
		Engine:          engine,
		Receipts:        webhookLog,
		AllowUnverified: cfg.AllowUnverifiedWebhooks,
		Logger:          logger,
		Metrics:         counters,
	}

	reconciler := &reconcile.Reconciler{
		Repo:         repo,
		Adapters:     adapters,
		Engine:       engine,
		Interval:     cfg.PollInterval,
		InitialDelay: cfg.ReconcileInitialDelay,
		MinAge:       cfg.MinAgeBeforeReconcile,
		BatchSize:    cfg.ReconcileBatchSize,
		Logger:       logger,
		Metrics:      counters,
	}
	go reconciler.Run(ctx)

	handler := &httpapi.PaymentHandler{
		Service:  engine,
		Ingestor: ingestor,
		Logger:   logger,
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.NewRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server running on %s", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", map[string]any{"error": err.Error()})
	}

	reconciler.Wait()
	notifier.Wait()
	return nil
}
