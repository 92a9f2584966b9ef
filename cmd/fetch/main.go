package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"goldprice/internal/app"
	"goldprice/internal/config"
	"goldprice/internal/logging"
	"goldprice/internal/model"
	"goldprice/internal/refresh"
)

func main() {
	var (
		configPath string
		format     string
		persist    bool
		timeout    int
		logLevel   string
	)
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a JSON or YAML config file (optional)")
	flag.StringVar(&format, "format", "json", "output format: json or yaml")
	flag.BoolVar(&persist, "persist", false, "write the result to the configured store")
	flag.IntVar(&timeout, "timeout", 60, "overall timeout in seconds")
	flag.StringVar(&logLevel, "log-level", "warn", "log level, logs go to stderr")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.Init(logLevel, "console", "stderr")
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	defer a.Close()

	out := output{Currency: cfg.Currency, FetchedAt: time.Now().UTC()}
	if persist {
		res := a.Refresher.Run(ctx, refresh.TriggerManual)
		out.Tier, out.Prices, out.RunID = res.Tier, res.Prices, res.RunID
		if res.Outcome != refresh.OutcomeOK {
			logger.Warn("not every karat was persisted", "failed", res.Failed)
		}
	} else {
		res := a.Aggregator.Run(ctx)
		out.Tier, out.Prices = res.Tier, res.Prices
	}

	if err := write(os.Stdout, format, out); err != nil {
		log.Fatalf("write: %v", err)
	}
}

type output struct {
	RunID     string                `json:"runId,omitempty" yaml:"run_id,omitempty"`
	Tier      string                `json:"tier" yaml:"tier"`
	Currency  string                `json:"currency" yaml:"currency"`
	FetchedAt time.Time             `json:"fetchedAt" yaml:"fetched_at"`
	Prices    []model.GoldPriceData `json:"prices" yaml:"prices"`
}

func write(w io.Writer, format string, out output) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(out)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	}
	return fmt.Errorf("unknown format %q", format)
}
