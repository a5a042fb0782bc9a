// Package store is a minimal REST client to a Chroma vector store. The
// server owns embedding and indexing; this client only moves chunk text and
// similarity queries across the wire.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ragchat/internal/domain"
)

// RetryPolicy bounds the heartbeat probe performed by Connect.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Heartbeat retry policies: the interactive path gives up quickly, the
// batch ingestion path waits longer for a store that may still be starting.
var (
	InteractiveRetry = RetryPolicy{Attempts: 3, Backoff: 2 * time.Second}
	IngestRetry      = RetryPolicy{Attempts: 5, Backoff: 5 * time.Second}
)

// Client is a process-scoped handle to one Chroma server, acquired once at
// startup and passed into every orchestrator call.
type Client struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// Collection is a handle to one named collection. It implements
// domain.ChunkStore.
type Collection struct {
	client *Client
	id     string
	name   string
}

// Connect verifies liveness with a heartbeat probe before returning a
// client, retrying per the policy with a fixed backoff between attempts.
func Connect(ctx context.Context, host string, port int, policy RetryPolicy, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if lastErr = c.heartbeat(ctx); lastErr == nil {
			log.Info("connected to chroma", "url", c.baseURL)
			return c, nil
		}
		log.Warn("chroma heartbeat failed", "attempt", attempt, "of", policy.Attempts, "error", lastErr)
		if attempt < policy.Attempts {
			select {
			case <-time.After(policy.Backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: connect to chroma at %s: %v", domain.ErrConnection, c.baseURL, ctx.Err())
			}
		}
	}
	return nil, fmt.Errorf("%w: connect to chroma at %s after %d attempts: %v", domain.ErrConnection, c.baseURL, policy.Attempts, lastErr)
}

func (c *Client) heartbeat(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat returned %s", resp.Status)
	}
	return nil
}

// GetOrCreateCollection returns a handle to the named collection, creating
// it server-side if absent. Idempotent; used by the ingestion path.
func (c *Client) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	body := map[string]any{"name": name, "get_or_create": true}
	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.postJSON(ctx, c.baseURL+"/api/v1/collections", body, &out); err != nil {
		return nil, fmt.Errorf("%w: get or create collection %q: %v", domain.ErrStore, name, err)
	}
	return &Collection{client: c, id: out.ID, name: out.Name}, nil
}

// GetCollection returns a handle to an existing collection and fails if it
// is missing. The query path uses this so that a missing collection is an
// error while an empty one is merely a zero-count condition.
func (c *Client) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	err := c.getJSON(ctx, c.baseURL+"/api/v1/collections/"+name, &out)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %q missing or inaccessible: %v", domain.ErrStore, name, err)
	}
	return &Collection{client: c, id: out.ID, name: out.Name}, nil
}

// Name returns the collection's configured name.
func (col *Collection) Name() string { return col.name }

// Upsert writes chunks to the collection. Ids, documents and metadatas must
// have matching lengths. Duplicate ids overwrite the existing chunk, which
// keeps re-ingestion of an unchanged source idempotent.
func (col *Collection) Upsert(ctx context.Context, ids, documents []string, metadatas []map[string]any) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("%w: upsert length mismatch: %d ids, %d documents, %d metadatas",
			domain.ErrStore, len(ids), len(documents), len(metadatas))
	}
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"ids": ids, "documents": documents, "metadatas": metadatas}
	if err := col.client.postJSON(ctx, col.url("upsert"), body, nil); err != nil {
		return fmt.Errorf("%w: upsert %d chunks into %q: %v", domain.ErrStore, len(ids), col.name, err)
	}
	return nil
}

// Query returns up to n similarity-ranked passages for the query text, most
// relevant first. An empty collection or no-match condition yields an empty
// slice, not an error.
func (col *Collection) Query(ctx context.Context, text string, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: query %q: n_results must be >= 1, got %d", domain.ErrStore, col.name, n)
	}
	body := map[string]any{
		"query_texts": []string{text},
		"n_results":   n,
		"include":     []string{"documents"},
	}
	var out struct {
		Documents [][]string `json:"documents"`
	}
	if err := col.client.postJSON(ctx, col.url("query"), body, &out); err != nil {
		return nil, fmt.Errorf("%w: query %q: %v", domain.ErrStore, col.name, err)
	}
	if len(out.Documents) == 0 {
		return nil, nil
	}
	return out.Documents[0], nil
}

// Count reports how many chunks the collection holds. Used for status
// reporting only; callers degrade to an unknown status on failure.
func (col *Collection) Count(ctx context.Context) (int, error) {
	var n int
	if err := col.client.getJSON(ctx, col.url("count"), &n); err != nil {
		return 0, fmt.Errorf("%w: count %q: %v", domain.ErrStore, col.name, err)
	}
	return n, nil
}

func (col *Collection) url(op string) string {
	return fmt.Sprintf("%s/api/v1/collections/%s/%s", col.client.baseURL, col.id, op)
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s failed: %s: %s", url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s failed: %s: %s", url, resp.Status, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
