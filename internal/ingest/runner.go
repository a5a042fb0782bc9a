// Package ingest drives the batch ingestion job: load documents from the
// source directory, split them into chunks, and write the chunks to the
// store in bounded batches.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"ragchat/internal/domain"
)

// DefaultBatchSize bounds one upsert so that a failed batch does not lose
// already-committed ones.
const DefaultBatchSize = 100

// State names one step of the ingestion run.
type State string

const (
	StateIdle            State = "idle"
	StateConnecting      State = "connecting"
	StateCollectionReady State = "collection_ready"
	StateLoading         State = "loading"
	StateSplitting       State = "splitting"
	StateInserting       State = "inserting"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Loader produces the documents to ingest from a source directory.
type Loader interface {
	Load(ctx context.Context, dir string) ([]domain.Document, error)
}

// Report summarizes a finished run. StoredCount is -1 when the final
// collection count could not be read.
type Report struct {
	State         State
	Documents     int
	Chunks        int
	Inserted      int
	FailedBatches int
	StoredCount   int
}

// Runner executes one ingestion run end to end. Connect is called once and
// must yield a ready collection handle; connection failure is fatal to the
// run, while individual batch failures are reported and skipped.
type Runner struct {
	connect   func(ctx context.Context) (domain.ChunkStore, error)
	loader    Loader
	chunker   domain.Chunker
	dataDir   string
	batchSize int
	log       *slog.Logger
}

func NewRunner(connect func(ctx context.Context) (domain.ChunkStore, error), ld Loader, ck domain.Chunker, dataDir string, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		connect:   connect,
		loader:    ld,
		chunker:   ck,
		dataDir:   dataDir,
		batchSize: DefaultBatchSize,
		log:       log,
	}
}

// Run drives Connecting -> CollectionReady -> Loading -> Splitting ->
// Inserting -> Done, logging each transition with its counts. The returned
// report is valid whenever the run reaches Done, even with failed batches.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	rep := Report{State: StateIdle, StoredCount: -1}

	r.transition(&rep, StateConnecting)
	col, err := r.connect(ctx)
	if err != nil {
		return r.failed(&rep, fmt.Errorf("ingestion connect: %w", err))
	}
	r.transition(&rep, StateCollectionReady)

	r.transition(&rep, StateLoading)
	docs, err := r.loader.Load(ctx, r.dataDir)
	if err != nil {
		return r.failed(&rep, err)
	}
	if len(docs) == 0 {
		return r.failed(&rep, fmt.Errorf("no documents found in %q", r.dataDir))
	}
	rep.Documents = len(docs)
	r.log.Info("documents loaded", "count", rep.Documents, "dir", r.dataDir)

	r.transition(&rep, StateSplitting)
	var chunks []domain.Chunk
	for _, d := range docs {
		chunks = append(chunks, r.chunker.Chunk(d)...)
	}
	if len(chunks) == 0 {
		return r.failed(&rep, fmt.Errorf("no chunks produced from %d documents", len(docs)))
	}
	rep.Chunks = len(chunks)
	r.log.Info("documents split", "chunks", rep.Chunks)

	r.transition(&rep, StateInserting)
	batches := (len(chunks) + r.batchSize - 1) / r.batchSize
	for start := 0; start < len(chunks); start += r.batchSize {
		end := min(start+r.batchSize, len(chunks))
		batch := chunks[start:end]
		ids := make([]string, len(batch))
		texts := make([]string, len(batch))
		metas := make([]map[string]any, len(batch))
		for i, ch := range batch {
			ids[i] = ch.ID
			texts[i] = ch.Text
			metas[i] = ch.Metadata
		}
		if err := col.Upsert(ctx, ids, texts, metas); err != nil {
			// Report and skip; batches already committed stay committed
			// and this one can be retried by re-running the job.
			rep.FailedBatches++
			r.log.Error("batch insert failed", "start_index", start, "size", len(batch), "error", err)
			continue
		}
		rep.Inserted += len(batch)
		r.log.Info("batch inserted", "batch", start/r.batchSize+1, "of", batches, "chunks", rep.Inserted)
	}

	r.transition(&rep, StateDone)
	if n, err := col.Count(ctx); err != nil {
		r.log.Warn("collection count unavailable", "error", err)
	} else {
		rep.StoredCount = n
	}
	r.log.Info("ingestion complete",
		"documents", rep.Documents,
		"chunks", rep.Chunks,
		"inserted", rep.Inserted,
		"failed_batches", rep.FailedBatches,
		"stored_count", rep.StoredCount,
	)
	return rep, nil
}

func (r *Runner) transition(rep *Report, s State) {
	rep.State = s
	r.log.Info("ingestion state", "state", string(s))
}

func (r *Runner) failed(rep *Report, err error) (Report, error) {
	rep.State = StateFailed
	r.log.Error("ingestion failed", "error", err)
	return *rep, err
}
