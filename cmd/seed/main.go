package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"incident-analyzer/internal/application"
	"incident-analyzer/internal/config"
	"incident-analyzer/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	dir := flag.String("dir", "", "directory of markdown postmortems (defaults to index.seed_dir)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall seeding timeout")
	flag.Parse()

	_ = godotenv.Load()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dir == "" {
		*dir = cfg.Index.SeedDir
	}
	if *dir == "" {
		log.Fatalf("no seed directory: pass -dir or set index.seed_dir")
	}
	if cfg.Index.Backend == "memory" {
		log.Printf("index.backend is memory; documents only live for this process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	logger := logging.New(cfg.Log, false)
	app, err := application.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("wiring: %v", err)
	}
	defer app.Close()

	n, err := app.Knowledge.SeedDir(ctx, *dir)
	if err != nil {
		log.Fatalf("seed %s: %v", *dir, err)
	}
	total, err := app.Index.Count(ctx)
	if err != nil {
		log.Fatalf("count: %v", err)
	}
	fmt.Printf("seeded %d document(s) from %s; index now holds %d\n", n, *dir, total)
}
