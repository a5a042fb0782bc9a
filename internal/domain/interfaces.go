package domain

import "context"

// Chunker splits raw text into overlapping bounded-size segments.
type Chunker interface {
	Split(text string) []string
	Chunk(doc Document) []Chunk
}

// ChunkStore is a handle to one named collection in the external vector
// store. Upsert sequences must have matching lengths; Query returns
// similarity-ranked passages, empty (not an error) when nothing matches.
type ChunkStore interface {
	Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any) error
	Query(ctx context.Context, text string, n int) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Retriever produces context passages for a question. Implementations
// must degrade to an empty, flagged result instead of failing when the
// store is unavailable.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) RetrievalResult
}

// AnswerStream is a finite, non-restartable sequence of cumulative
// snapshots. Snapshots is closed after the final snapshot. Close abandons
// the underlying request early and releases its connection; it is safe to
// call more than once.
type AnswerStream interface {
	Snapshots() <-chan Snapshot
	Close()
}

// Generator streams an answer for an assembled prompt. Failures are
// delivered in-band as the stream's final snapshot, never as a panic or a
// silent cutoff.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) AnswerStream
}
