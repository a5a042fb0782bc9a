package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"ragchat/internal/chat"
	"ragchat/internal/chunker"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/generate"
	"ragchat/internal/retriever"
	"ragchat/internal/store"
	"ragchat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(log)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ck, err := chunker.NewRecursiveChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		log.Error("invalid chunking configuration", "error", err)
		os.Exit(1)
	}

	// The store connection and collection handle are acquired once here and
	// reused for every question. A failed connection disables retrieval but
	// still lets the user ask non-context questions.
	ctx := context.Background()
	var collection domain.ChunkStore
	if client, err := store.Connect(ctx, cfg.Store.Host, cfg.Store.Port, store.InteractiveRetry, log); err != nil {
		log.Warn("store unreachable, retrieval disabled", "error", err)
	} else if col, err := client.GetCollection(ctx, cfg.Store.Collection); err != nil {
		log.Warn("collection inaccessible, was the ingestion job run?", "error", err)
	} else {
		collection = col
	}

	gen := generate.NewClient(cfg.Generation.BaseURL, time.Duration(cfg.Generation.TimeoutSecs)*time.Second, log)

	svc := chat.NewService(chat.Config{
		Retriever:      retriever.New(collection, log),
		Generator:      gen,
		Chunker:        ck,
		Collection:     collection,
		CollectionName: cfg.Store.Collection,
		Model:          cfg.Generation.Model,
		Options: domain.GenerationOptions{
			NumCtx:      cfg.Generation.NumCtx,
			Temperature: cfg.Generation.Temperature,
		},
		DataDir: cfg.Ingest.DataDir,
		TopK:    cfg.Retrieval.TopK,
	}, log)

	m := tui.New(svc, cfg.Generation.Model, cfg.Retrieval.TopK)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Error("tui exited with error", "error", err)
		os.Exit(1)
	}
}
