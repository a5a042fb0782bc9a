package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// StoreConfig contains connection details for the Chroma vector store.
type StoreConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// GenerationConfig configures the Ollama generation client.
type GenerationConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	NumCtx      int     `yaml:"num_ctx"`
	Temperature float64 `yaml:"temperature"`
}

// ChunkingConfig configures how documents are split into chunks.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig configures how many passages are fetched per question.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// IngestConfig configures the batch ingestion job.
type IngestConfig struct {
	DataDir string `yaml:"data_dir"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Store      StoreConfig      `yaml:"store"`
	Generation GenerationConfig `yaml:"generation"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults. Environment variables override the file in either case.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Store:      StoreConfig{Host: "localhost", Port: 8000, Collection: "rag_collection"},
		Generation: GenerationConfig{BaseURL: "http://localhost:11434", Model: "llama3.1:8b-instruct-q4_K_M", TimeoutSecs: 180, NumCtx: 4096, Temperature: 0.7},
		Chunking:   ChunkingConfig{Size: 1000, Overlap: 150},
		Retrieval:  RetrievalConfig{TopK: 3},
		Ingest:     IngestConfig{DataDir: "data"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Store.Host == "" {
		cfg.Store.Host = def.Store.Host
	}
	if cfg.Store.Port == 0 {
		cfg.Store.Port = def.Store.Port
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = def.Store.Collection
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = def.Generation.BaseURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = def.Generation.Model
	}
	if cfg.Generation.TimeoutSecs == 0 {
		cfg.Generation.TimeoutSecs = def.Generation.TimeoutSecs
	}
	if cfg.Generation.NumCtx == 0 {
		cfg.Generation.NumCtx = def.Generation.NumCtx
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = def.Generation.Temperature
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = def.Chunking.Size
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = def.Chunking.Overlap
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Ingest.DataDir == "" {
		cfg.Ingest.DataDir = def.Ingest.DataDir
	}
}

// applyEnvOverrides keeps compatibility with the docker-compose environment
// the services are usually deployed with.
func applyEnvOverrides(cfg *AppConfig) {
	cfg.Store.Host = getEnv("CHROMA_HOST", cfg.Store.Host)
	cfg.Store.Port = getEnvAsInt("CHROMA_PORT", cfg.Store.Port)
	cfg.Store.Collection = getEnv("CHROMA_COLLECTION_NAME", cfg.Store.Collection)
	cfg.Generation.BaseURL = getEnv("OLLAMA_BASE_URL", cfg.Generation.BaseURL)
	cfg.Generation.Model = getEnv("MODEL_NAME", cfg.Generation.Model)
	cfg.Ingest.DataDir = getEnv("DATA_DIR", cfg.Ingest.DataDir)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
