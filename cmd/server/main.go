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

	"github.com/saccohub/settlement/internal/api"
	"github.com/saccohub/settlement/internal/config"
	"github.com/saccohub/settlement/internal/ingestion"
	"github.com/saccohub/settlement/internal/ledger"
	"github.com/saccohub/settlement/internal/mpesa"
	"github.com/saccohub/settlement/internal/notify"
	"github.com/saccohub/settlement/internal/reconciliation"
	"github.com/saccohub/settlement/internal/repository"
	"github.com/saccohub/settlement/internal/seed"
	"github.com/saccohub/settlement/internal/settlement"
	"github.com/saccohub/settlement/internal/suspense"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()
	store := repository.NewStore(db)

	// Seed reference data if the store is empty.
	if path, err := seed.FindFile(cfg.SeedPath); err != nil {
		log.Printf("WARNING: %v", err)
	} else if data, err := seed.LoadFile(path); err != nil {
		log.Printf("WARNING: Failed to load seed %s: %v", path, err)
	} else if _, err := seed.Apply(ctx, store, data); err != nil {
		log.Printf("WARNING: Failed to seed: %v", err)
	}

	// Create services.
	gateway := mpesa.NewClient(cfg.MPesa)
	notifier := notify.NewLogNotifier()
	router := settlement.NewRouter(store)
	suspenseSvc := suspense.NewService(store, notifier)
	reconSvc := reconciliation.NewService(store, gateway, router, suspenseSvc, notifier, cfg.DefaultAccountPriority)
	ledgerSvc := ledger.NewService(store, gateway, router, notifier)
	ingestionSvc := ingestion.NewService(store, reconSvc)

	if cfg.SweepInterval > 0 {
		go runSweeper(ctx, reconSvc, cfg.SweepInterval, cfg.SweepGrace)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(ledgerSvc, reconSvc, ingestionSvc, suspenseSvc, gateway),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("SACCO M-Pesa Settlement Engine")
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("API base: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/transaction-requests")
	log.Printf("  GET    /api/v1/transaction-requests")
	log.Printf("  GET    /api/v1/transaction-requests/{id}")
	log.Printf("  POST   /api/v1/transaction-requests/{id}/approve")
	log.Printf("  POST   /api/v1/transaction-requests/{id}/reject")
	log.Printf("  GET    /api/v1/status/{checkoutRequestId}")
	log.Printf("  POST   /api/v1/payments/{checkoutRequestId}/query")
	log.Printf("  GET    /api/v1/suspense")
	log.Printf("  POST   /api/v1/suspense/{id}/resolve")
	log.Printf("  POST   /api/v1/mpesa/{stk/callback,c2b/validation,c2b/confirmation,b2c/result,b2c/timeout}")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("WARNING: shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("Server stopped")
}

// runSweeper re-queries stale payments until ctx is cancelled.
func runSweeper(ctx context.Context, reconSvc *reconciliation.Service, every, grace time.Duration) {
	log.Printf("[sweep] running every %s for payments pending longer than %s", every, grace)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := reconSvc.Sweep(ctx, grace); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[sweep] ERROR: %v", err)
			}
		}
	}
}
