package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supplychain-ledger/internal/repository"
	"supplychain-ledger/internal/service"
	"supplychain-ledger/pkg/config"
	"supplychain-ledger/pkg/database"
	"supplychain-ledger/pkg/logger"

	"github.com/joho/godotenv"
)

// ledger-verify replays every product's history, checks the hash chain and
// compares the result with the stored product rows. Exit status 1 means at
// least one product failed. With -requeue-dead it also moves dead-lettered
// mirror rows back to pending first.
func main() {
	productID := flag.String("product", "", "verify a single product instead of the whole ledger")
	requeueDead := flag.Int("requeue-dead", 0, "move up to N dead mirror rows back to pending before verifying")
	flag.Parse()

	// 1. Load Env
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{}).Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Setup Database
	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	if *requeueDead > 0 {
		n, err := repository.NewOutboxRepo(db).RequeueDead(ctx, *requeueDead, time.Now())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to requeue dead mirror rows")
		}
		log.Info().Int("requeued", n).Msg("dead mirror rows requeued")
	}

	trace := service.NewTraceService(repository.NewProductRepo(db), repository.NewTransactionRepo(db), log)

	var reports []service.VerifyReport
	if *productID != "" {
		report, err := trace.Verify(ctx, *productID)
		if err != nil {
			log.Fatal().Err(err).Str("product_id", *productID).Msg("verification failed")
		}
		reports = append(reports, *report)
	} else {
		reports, err = trace.VerifyAll(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("verification failed")
		}
	}

	failed := 0
	for _, r := range reports {
		if r.OK() {
			continue
		}
		failed++
		ev := log.Error().Str("product_id", r.ProductID).Int("entries", r.Entries).
			Bool("chain_valid", r.ChainValid).Bool("state_matches", r.StateMatches).
			Strs("drift", r.Drift)
		if len(r.Problems) > 0 {
			first := r.Problems[0]
			ev = ev.Int64("first_bad_sequence", first.Sequence).Str("problem", first.Problem)
		}
		ev.Int("problems", len(r.Problems)).Msg("product failed verification")
	}

	log.Info().Int("products", len(reports)).Int("failed", failed).Msg("ledger verification finished")
	if failed > 0 {
		os.Exit(1)
	}
}
