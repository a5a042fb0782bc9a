// Package generate streams answers from an Ollama generation endpoint. The
// response is exposed as a finite sequence of cumulative text snapshots;
// every failure mode ends the sequence with a final snapshot carrying a
// human-readable message, never a silent cutoff.
package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"ragchat/internal/domain"
)

// maxDecodeFailures is how many consecutive malformed stream units are
// tolerated before the stream fails. A lone bad unit is logged and skipped.
const maxDecodeFailures = 25

// maxLineSize bounds a single streamed unit; Ollama deltas are small.
const maxLineSize = 1 << 20

// Client sends generation requests to an Ollama server. The HTTP client
// carries no fixed timeout of its own; each request runs under a deadline
// covering the whole stream.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{baseURL: baseURL, timeout: timeout, client: &http.Client{}, log: log}
}

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type options struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// generateEvent is one newline-delimited unit of the streamed response.
type generateEvent struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Stream implements domain.AnswerStream over one in-flight request.
type Stream struct {
	ch        chan domain.Snapshot
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

// Snapshots returns the snapshot channel. It is closed after the final
// snapshot; the stream is not restartable.
func (s *Stream) Snapshots() <-chan domain.Snapshot { return s.ch }

// Close abandons the request early and releases the underlying connection.
// The server-side job may keep running; that is an accepted limitation.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
}

// Generate starts a streamed generation request. It always returns a
// stream: connection, timeout, decode and service errors all arrive
// in-band as the final snapshot.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) domain.AnswerStream {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	s := &Stream{ch: make(chan domain.Snapshot), cancel: cancel, closed: make(chan struct{})}
	go func() {
		defer close(s.ch)
		defer cancel()
		c.run(ctx, req, s)
	}()
	return s
}

func (c *Client) run(ctx context.Context, req domain.GenerationRequest, s *Stream) {
	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: true,
		Options: options{
			NumCtx:      req.Options.NumCtx,
			Temperature: req.Options.Temperature,
		},
	})
	if err != nil {
		s.fail(fmt.Errorf("%w: marshal request: %v", domain.ErrGeneration, err))
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		s.fail(fmt.Errorf("%w: create request: %v", domain.ErrGeneration, err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		s.fail(c.transportError(ctx, "send request", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.fail(fmt.Errorf("%w: ollama returned %s: %s", domain.ErrGeneration, resp.Status, bytes.TrimSpace(msg)))
		return
	}

	var accumulated string
	decodeFailures := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev generateEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			decodeFailures++
			c.log.Warn("skipping malformed stream unit", "error", err, "consecutive", decodeFailures)
			if decodeFailures >= maxDecodeFailures {
				s.fail(fmt.Errorf("%w: %d consecutive malformed units, last: %v", domain.ErrDecode, decodeFailures, err))
				return
			}
			continue
		}
		decodeFailures = 0
		if ev.Response != "" {
			accumulated += ev.Response
			if !s.send(domain.Snapshot{Text: accumulated}) {
				return
			}
		}
		if ev.Done {
			if ev.Error != "" {
				s.fail(fmt.Errorf("%w: %s", domain.ErrGeneration, ev.Error))
			}
			// Clean completion: the closed channel is the terminal signal.
			return
		}
	}
	// The body ended without a terminal signal: a timeout, a consumer
	// cancel, or a dropped connection.
	if err := scanner.Err(); err != nil {
		s.fail(c.transportError(ctx, "read stream", err))
		return
	}
	s.fail(fmt.Errorf("%w: stream ended without completion signal", domain.ErrConnection))
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: no completion within %s", domain.ErrTimeout, op, c.timeout)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrConnection, op, err)
}

// send delivers a snapshot unless the consumer closed the stream. A fired
// deadline does not stop delivery: the timeout itself must still reach the
// consumer as a final snapshot.
func (s *Stream) send(snap domain.Snapshot) bool {
	select {
	case s.ch <- snap:
		return true
	case <-s.closed:
		return false
	}
}

// fail terminates the sequence with an error snapshot whose text is shown
// to the user as-is.
func (s *Stream) fail(err error) {
	s.send(domain.Snapshot{Text: "Error: " + err.Error(), Done: true, Err: err})
}
