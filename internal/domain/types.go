package domain

// Document is a single piece of source text loaded into the pipeline.
// It is never persisted itself; only its chunks are.
type Document struct {
	ID     string
	Source string
	Text   string
}

// Chunk is a bounded-size segment of a document prepared for indexing.
// IDs are unique within a collection and stable across re-ingestion of
// the same source.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// RetrievalResult is an ordered set of context passages for a question,
// most relevant first. Degraded marks results produced under a fallback
// (store unreachable, collection missing) rather than a real query.
type RetrievalResult struct {
	Passages []string
	Degraded bool
	Reason   string
}

// GenerationOptions bounds a single generation request.
type GenerationOptions struct {
	NumCtx      int
	Temperature float64
}

// GenerationRequest is an immutable request to the generation service.
type GenerationRequest struct {
	Model   string
	Prompt  string
	Options GenerationOptions
}

// Snapshot is the cumulative answer text at a point in the stream, not a
// delta. Each snapshot supersedes the previous one for display. A clean
// completion is signalled by the stream's channel closing; an abnormal end
// is signalled by one last snapshot with Done set, Err carrying the cause
// and Text holding a human-readable message.
type Snapshot struct {
	Text string
	Done bool
	Err  error
}
