package chunker

import (
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

// Separators tried in order when looking for a chunk boundary: paragraph
// break, line break, word break. If none lands inside the window the text
// is cut at the size limit.
var separators = []string{"\n\n", "\n", " "}

// RecursiveChunker splits text into contiguous chunks of at most chunkSize
// bytes, each sharing exactly overlap bytes with its predecessor. Boundaries
// prefer the coarsest separator that fits, falling back progressively to a
// raw character cut, so splitting is deterministic and the chunks cover the
// input with no gaps.
type RecursiveChunker struct {
	chunkSize int
	overlap   int
}

func NewRecursiveChunker(chunkSize, overlap int) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, chunk size %d)", domain.ErrInvalidConfig, overlap, chunkSize)
	}
	return &RecursiveChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split returns the chunk texts for the given input. Every chunk except the
// last is exactly cut so that the next chunk starts overlap bytes before its
// end; the last chunk may be shorter than the chunk size.
func (c *RecursiveChunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	start := 0
	for start < len(text) {
		if len(text)-start <= c.chunkSize {
			chunks = append(chunks, text[start:])
			break
		}
		end := c.boundary(text, start)
		chunks = append(chunks, text[start:end])
		start = end - c.overlap
	}
	return chunks
}

// boundary picks the cut position for a chunk starting at start. It must
// advance past the overlap region, otherwise chunking would not terminate,
// so separator matches at or before start+overlap are ignored.
func (c *RecursiveChunker) boundary(text string, start int) int {
	window := text[start : start+c.chunkSize]
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			cut := start + i + len(sep)
			if cut-start > c.overlap {
				return cut
			}
		}
	}
	return start + c.chunkSize
}

// Chunk splits a document and wraps the pieces with collection-unique ids
// and source metadata. Ids derive from the document id and the chunk index,
// so re-ingesting the same source reproduces the same ids.
func (c *RecursiveChunker) Chunk(doc domain.Document) []domain.Chunk {
	texts := c.Split(doc.Text)
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, domain.Chunk{
			ID:       fmt.Sprintf("%s_%d", doc.ID, i),
			Text:     t,
			Metadata: map[string]any{"source": doc.Source},
		})
	}
	return chunks
}
