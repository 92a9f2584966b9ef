package main

import (
	"context"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"goldprice/internal/app"
	"goldprice/internal/config"
	"goldprice/internal/karat"
	"goldprice/internal/logging"
	"goldprice/internal/store"
)

func main() {
	var (
		cfgPath string
		days    int
		seed    uint64
	)
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to a JSON or YAML config file (optional)")
	flag.IntVar(&days, "days", 7, "days of history to generate")
	flag.Uint64Var(&seed, "seed", uint64(time.Now().UnixNano()), "random seed for history jitter")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.Init(cfg.Log.Level, "console", "stderr")
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, err := app.OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()
	if cfg.Store.Driver == "memory" {
		logger.Warn("seeding the in-memory store; nothing will outlive this process")
	}

	res, err := store.Seed(ctx, st, karat.MustTable(cfg.Karats), cfg.Currency, days, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), time.Now())
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	logger.Info("database seeded", "latest", res.Latest, "history", res.History, "days", days)
}
