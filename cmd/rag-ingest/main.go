package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/ingest"
	"ragchat/internal/loader"
	"ragchat/internal/store"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, dataDir string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file")
	flag.StringVar(&dataDir, "data-dir", "", "Source document directory (overrides config)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if dataDir != "" {
		cfg.Ingest.DataDir = dataDir
	}

	ck, err := chunker.NewRecursiveChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		log.Error("invalid chunking configuration", "error", err)
		os.Exit(1)
	}

	connect := func(ctx context.Context) (domain.ChunkStore, error) {
		client, err := store.Connect(ctx, cfg.Store.Host, cfg.Store.Port, store.IngestRetry, log)
		if err != nil {
			return nil, err
		}
		return client.GetOrCreateCollection(ctx, cfg.Store.Collection)
	}

	runner := ingest.NewRunner(connect, loader.NewDirectoryLoader(log), ck, cfg.Ingest.DataDir, log)

	start := time.Now()
	rep, err := runner.Run(context.Background())
	if err != nil {
		os.Exit(1)
	}
	log.Info("ingestion run finished",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"inserted", rep.Inserted,
		"failed_batches", rep.FailedBatches,
	)
}
