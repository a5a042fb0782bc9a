package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func streamServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, emit func(v any))) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])
		flusher := w.(http.Flusher)
		emit := func(v any) {
			data, err := json.Marshal(v)
			require.NoError(t, err)
			w.Write(append(data, '\n'))
			flusher.Flush()
		}
		handler(w, r, emit)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, s domain.AnswerStream) []domain.Snapshot {
	t.Helper()
	var snaps []domain.Snapshot
	timeout := time.After(10 * time.Second)
	for {
		select {
		case snap, ok := <-s.Snapshots():
			if !ok {
				return snaps
			}
			snaps = append(snaps, snap)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func request() domain.GenerationRequest {
	return domain.GenerationRequest{
		Model:   "test-model",
		Prompt:  "Question: Q?\n\nAnswer:",
		Options: domain.GenerationOptions{NumCtx: 4096, Temperature: 0.7},
	}
}

func TestGenerate_CumulativeSnapshots(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, emit func(v any)) {
		emit(map[string]any{"response": "Hel", "done": false})
		emit(map[string]any{"response": "lo", "done": false})
		emit(map[string]any{"done": true})
	})

	c := NewClient(srv.URL, 5*time.Second, nil)
	snaps := collect(t, c.Generate(context.Background(), request()))

	require.Len(t, snaps, 2)
	assert.Equal(t, "Hel", snaps[0].Text)
	assert.Equal(t, "Hello", snaps[1].Text)
	for _, s := range snaps {
		assert.NoError(t, s.Err)
	}
}

func TestGenerate_TerminalErrorEvent(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, emit func(v any)) {
		emit(map[string]any{"response": "partial", "done": false})
		emit(map[string]any{"done": true, "error": "oom"})
	})

	c := NewClient(srv.URL, 5*time.Second, nil)
	snaps := collect(t, c.Generate(context.Background(), request()))

	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.True(t, last.Done)
	require.ErrorIs(t, last.Err, domain.ErrGeneration)
	assert.Contains(t, last.Err.Error(), "oom")
	assert.Contains(t, last.Text, "Error:")
}

func TestGenerate_Timeout(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, emit func(v any)) {
		emit(map[string]any{"response": "slow", "done": false})
		// Never send the terminal signal; wait for the client to hang up.
		<-r.Context().Done()
	})

	c := NewClient(srv.URL, 100*time.Millisecond, nil)
	snaps := collect(t, c.Generate(context.Background(), request()))

	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.True(t, last.Done)
	require.ErrorIs(t, last.Err, domain.ErrTimeout)
	assert.Contains(t, last.Text, "Error:")
}

func TestGenerate_ConnectionError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, nil)
	snaps := collect(t, c.Generate(context.Background(), request()))

	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Done)
	require.ErrorIs(t, snaps[0].Err, domain.ErrConnection)
	assert.Contains(t, snaps[0].Text, "Error:")
}

func TestGenerate_SkipsIsolatedMalformedUnits(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, emit func(v any)) {
		emit(map[string]any{"response": "Hel", "done": false})
		w.Write([]byte("{{{ not json\n"))
		w.(http.Flusher).Flush()
		emit(map[string]any{"response": "lo", "done": false})
		emit(map[string]any{"done": true})
	})

	c := NewClient(srv.URL, 5*time.Second, nil)
	snaps := collect(t, c.Generate(context.Background(), request()))

	require.Len(t, snaps, 2)
	assert.Equal(t, "Hello", snaps[1].Text)
	assert.NoError(t, snaps[1].Err)
}

func TestGenerate_PersistentDecodeFailure(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, emit func(v any)) {
		for i := 0; i < maxDecodeFailures+5; i++ {
			fmt.Fprintf(w, "not json at all %d\n", i)
		}
		w.(http.Flusher).Flush()
		emit(map[string]any{"done": true})
	})

	c := NewClient(srv.URL, 5*time.Second, nil)
	snaps := collect(t, c.Generate(context.Background(), request()))

	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	require.ErrorIs(t, last.Err, domain.ErrDecode)
}

func TestGenerate_ServiceErrorStatus(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, emit func(v any)) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})

	c := NewClient(srv.URL, time.Second, nil)
	snaps := collect(t, c.Generate(context.Background(), request()))

	require.Len(t, snaps, 1)
	require.ErrorIs(t, snaps[0].Err, domain.ErrGeneration)
	assert.Contains(t, snaps[0].Err.Error(), "model not found")
}

func TestStream_CloseReleasesEarly(t *testing.T) {
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, emit func(v any)) {
		emit(map[string]any{"response": "first", "done": false})
		<-r.Context().Done()
	})

	c := NewClient(srv.URL, 30*time.Second, nil)
	stream := c.Generate(context.Background(), request())

	snap, ok := <-stream.Snapshots()
	require.True(t, ok)
	assert.Equal(t, "first", snap.Text)

	stream.Close()
	stream.Close() // safe to call twice

	select {
	case _, ok := <-stream.Snapshots():
		if ok {
			// A snapshot already in flight is fine; the channel must still
			// close right after.
			_, ok = <-stream.Snapshots()
			assert.False(t, ok)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream not released after Close")
	}
}
