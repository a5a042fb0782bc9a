// Package chat is the interactive orchestrator: one invocation per
// submitted question, no state shared across questions beyond the
// process-scoped store and generation handles.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/domain"
	"ragchat/internal/prompt"
)

// Question is one submitted user question with its per-question options.
type Question struct {
	Text   string
	UseRAG bool
	TopK   int
}

// Answer carries the started generation stream plus whatever context was
// retrieved for display. Warning is non-empty when the flow degraded
// (retrieval unavailable or empty) but proceeded anyway.
type Answer struct {
	Stream   domain.AnswerStream
	Passages []string
	Warning  string
}

// Service wires retriever, prompt assembly and generation for the
// interactive path. Collection may be nil when the store was unreachable
// at startup; asking still works without context.
type Service struct {
	retriever  domain.Retriever
	generator  domain.Generator
	chunker    domain.Chunker
	collection domain.ChunkStore
	collName   string
	model      string
	opts       domain.GenerationOptions
	dataDir    string
	topK       int
	log        *slog.Logger
}

// Config collects the construction-time dependencies of the service.
type Config struct {
	Retriever      domain.Retriever
	Generator      domain.Generator
	Chunker        domain.Chunker
	Collection     domain.ChunkStore
	CollectionName string
	Model          string
	Options        domain.GenerationOptions
	DataDir        string
	TopK           int
}

func NewService(cfg Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TopK < 1 {
		cfg.TopK = 3
	}
	return &Service{
		retriever:  cfg.Retriever,
		generator:  cfg.Generator,
		chunker:    cfg.Chunker,
		collection: cfg.Collection,
		collName:   cfg.CollectionName,
		model:      cfg.Model,
		opts:       cfg.Options,
		dataDir:    cfg.DataDir,
		topK:       cfg.TopK,
		log:        log,
	}
}

// Ask runs the per-question flow: validate, optionally retrieve, assemble,
// start generation. An empty question short-circuits before any external
// call. Retrieval trouble degrades to a non-context answer with a warning;
// it never blocks the question.
func (s *Service) Ask(ctx context.Context, q Question) (Answer, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Answer{}, fmt.Errorf("%w: question is empty", domain.ErrValidation)
	}

	var ans Answer
	if q.UseRAG {
		k := q.TopK
		if k < 1 {
			k = s.topK
		}
		res := s.retriever.Retrieve(ctx, text, k)
		ans.Passages = res.Passages
		switch {
		case res.Degraded:
			ans.Warning = "retrieval unavailable, answering without context: " + res.Reason
		case len(res.Passages) == 0:
			ans.Warning = "no relevant context found, answering without context"
		}
		if ans.Warning != "" {
			s.log.Warn("degraded question flow", "warning", ans.Warning)
		}
	}

	p := prompt.Assemble(text, ans.Passages)
	ans.Stream = s.generator.Generate(ctx, domain.GenerationRequest{
		Model:   s.model,
		Prompt:  p,
		Options: s.opts,
	})
	return ans, nil
}

// IngestText saves user-submitted text into the data directory and indexes
// its chunks immediately, so the next question can already retrieve them.
// Returns the saved path and the number of chunks written.
func (s *Service) IngestText(ctx context.Context, text string) (string, int, error) {
	if strings.TrimSpace(text) == "" {
		return "", 0, fmt.Errorf("%w: document text is empty", domain.ErrValidation)
	}
	if s.collection == nil {
		return "", 0, fmt.Errorf("%w: ingest text: vector store unavailable", domain.ErrStore)
	}

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("ingest text: %w", err)
	}
	path := filepath.Join(s.dataDir, fmt.Sprintf("user_doc_%d.txt", time.Now().Unix()))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", 0, fmt.Errorf("ingest text: %w", err)
	}

	doc := domain.Document{
		ID:     "user_" + uuid.NewString()[:8],
		Source: path,
		Text:   text,
	}
	chunks := s.chunker.Chunk(doc)
	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	metas := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
		texts[i] = ch.Text
		metas[i] = ch.Metadata
	}
	if err := s.collection.Upsert(ctx, ids, texts, metas); err != nil {
		return path, 0, err
	}
	s.log.Info("user document ingested", "path", path, "chunks", len(chunks))
	return path, len(chunks), nil
}

// Status describes the collection for the status line, degrading to an
// unknown count when the store cannot report one.
func (s *Service) Status(ctx context.Context) string {
	if s.collection == nil {
		return fmt.Sprintf("collection %q unavailable (store connection failed)", s.collName)
	}
	n, err := s.collection.Count(ctx)
	if err != nil {
		s.log.Warn("collection status unavailable", "error", err)
		return fmt.Sprintf("collection %q: chunk count unknown", s.collName)
	}
	if n == 0 {
		return fmt.Sprintf("collection %q is empty, run the ingestion job first", s.collName)
	}
	return fmt.Sprintf("collection %q contains %d chunks", s.collName, n)
}
