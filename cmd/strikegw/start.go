package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/strikegw/internal/config"
	"github.com/mattjoyce/strikegw/internal/lock"
	"github.com/mattjoyce/strikegw/internal/log"
	"github.com/mattjoyce/strikegw/internal/receipt"
	"github.com/mattjoyce/strikegw/internal/secret"
	"github.com/mattjoyce/strikegw/internal/storage"
	"github.com/mattjoyce/strikegw/internal/strike"
	"github.com/mattjoyce/strikegw/internal/subscription"
	"github.com/mattjoyce/strikegw/internal/webhook"
)

const pruneInterval = time.Hour

// invoiceFinder is the part of the API client the consumer uses.
type invoiceFinder interface {
	FindInvoice(ctx context.Context, invoiceID string) (*strike.Invoice, error)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("strikegw", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory (default $STRIKEGW_CONFIG or ./config.yaml)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Printf("strikegw version %s\n", version)
		return 0
	}
	path := resolveConfigPath(*configPath)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if err := log.Setup(log.Options{
		Level:  cfg.Service.LogLevel,
		Format: cfg.Service.LogFormat,
		File:   cfg.Service.LogFile,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 1
	}
	logger := log.WithComponent("main")
	logger.Info("strikegw starting", "version", version, "config", path)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Get()); err != nil {
		logger.Error("strikegw failed", "error", err)
		return 1
	}
	logger.Info("strikegw stopped")
	return 0
}

// run wires the gateway and blocks until ctx is cancelled or a component fails.
// Component loggers derive from base.
func run(ctx context.Context, cfg *config.Config, base *slog.Logger) error {
	component := func(name string) *slog.Logger {
		return base.With(slog.String("component", name))
	}
	logger := component("main")

	sec, generated, err := secret.Resolve(cfg.Webhook.Secret)
	if err != nil {
		return fmt.Errorf("resolve webhook secret: %w", err)
	}
	switch {
	case generated && cfg.Webhook.PublicURL == "":
		logger.Warn("webhook secret generated but webhook.public_url is not set; no sender can sign deliveries")
	case generated:
		logger.Info("webhook secret generated for this run")
	case sec.Weak():
		logger.Warn("webhook secret is short", "min_length", secret.MinLength)
	}

	var ledger webhook.Ledger
	var receipts *receipt.Ledger
	if cfg.State.Path != "" {
		lockPath := lock.PathFor(cfg.State.Path)
		pidLock, err := lock.AcquirePIDLock(lockPath)
		if err != nil {
			return fmt.Errorf("acquire state lock %s: %w", lockPath, err)
		}
		defer pidLock.Release()

		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		defer db.Close()

		receipts = receipt.New(db)
		ledger = receipts
		reportLedger(ctx, receipts, cfg.State.Path, logger)
	}

	var client *strike.Client
	if cfg.Strike.APIKey != "" {
		client, err = strike.New(cfg.Strike.APIKey, cfg.Strike.BaseURL, strike.WithTimeout(cfg.Strike.Timeout))
		if err != nil {
			return fmt.Errorf("create API client: %w", err)
		}
	}

	if cfg.Webhook.PublicURL != "" {
		registrar := subscription.NewRegistrar(client, sec, component("subscription"))
		id, err := registrar.EnsureRegistered(ctx, cfg.Webhook.PublicURL)
		if err != nil {
			return err
		}
		logger.Info("webhook subscription active", "id", id, "url", cfg.Webhook.PublicURL)
	}

	webhookConfig, err := webhook.FromGlobalConfig(&cfg.Webhook)
	if err != nil {
		return fmt.Errorf("configure webhook: %w", err)
	}

	events := make(chan string, cfg.Webhook.QueueSize)
	server := webhook.New(webhookConfig, sec, events, ledger, component("webhook"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(events)
		if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("webhook: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var finder invoiceFinder
		if client != nil {
			finder = client
		}
		consume(gctx, events, finder, component("consumer"))
		return nil
	})

	if receipts != nil {
		g.Go(func() error {
			pruneLoop(gctx, receipts, cfg.State.ReceiptRetention, component("receipt"))
			return nil
		})
	}

	logger.Info("strikegw running (press Ctrl+C to stop)", "listen", webhookConfig.Listen, "path", webhookConfig.Path)
	return g.Wait()
}

// consume drains verified entity ids until events is closed. When finder is set
// each id is resolved to its invoice; lookups stop once ctx is done.
func consume(ctx context.Context, events <-chan string, finder invoiceFinder, logger *slog.Logger) {
	for id := range events {
		if finder == nil || ctx.Err() != nil {
			logger.Info("invoice updated", "entity_id", id)
			continue
		}
		inv, err := finder.FindInvoice(ctx, id)
		if err != nil {
			logger.Warn("invoice lookup failed", "entity_id", id, "error", err)
			continue
		}
		logger.Info("invoice updated",
			"entity_id", id,
			"state", inv.State,
			"currency", inv.Amount.Currency,
			"amount", inv.Amount.Amount,
		)
	}
}

func reportLedger(ctx context.Context, receipts *receipt.Ledger, path string, logger *slog.Logger) {
	n, err := receipts.Count(ctx)
	if err != nil {
		logger.Warn("receipt count failed", "path", path, "error", err)
		return
	}
	logger.Info("receipt ledger opened", "path", path, "receipts", n)
}

// pruneLoop deletes receipts older than retention until ctx is cancelled.
func pruneLoop(ctx context.Context, receipts *receipt.Ledger, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		prune(ctx, receipts, retention, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func prune(ctx context.Context, receipts *receipt.Ledger, retention time.Duration, logger *slog.Logger) {
	n, err := receipts.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("receipt prune failed", "error", err)
		}
		return
	}
	if n > 0 {
		logger.Info("pruned webhook receipts", "count", n, "retention", retention)
	}
}
