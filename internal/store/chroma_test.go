package store

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

var testRetry = RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestConnect_HeartbeatRetriesUntilSuccess(t *testing.T) {
	var probes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/heartbeat", r.URL.Path)
		probes++
		if probes < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]int64{"nanosecond heartbeat": time.Now().UnixNano()})
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	client, err := Connect(context.Background(), host, port, testRetry, nil)
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, 3, probes)
}

func TestConnect_FailsAfterBoundedAttempts(t *testing.T) {
	var probes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	_, err := Connect(context.Background(), host, port, testRetry, nil)
	require.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, testRetry.Attempts, probes)
}

// fakeChroma serves a single-collection subset of the Chroma REST API.
type fakeChroma struct {
	collectionName string
	upserts        []map[string]any
	queryDocs      [][]string
	count          int
	failUpserts    bool
}

func (f *fakeChroma) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"nanosecond heartbeat": 1}`))
	})
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["get_or_create"])
		json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": body["name"].(string)})
	})
	mux.HandleFunc("/api/v1/collections/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/collections/" + f.collectionName:
			json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": f.collectionName})
		case "/api/v1/collections/col-1/upsert":
			if f.failUpserts {
				http.Error(w, `{"error":"upsert rejected"}`, http.StatusInternalServerError)
				return
			}
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.upserts = append(f.upserts, body)
			w.Write([]byte("true"))
		case "/api/v1/collections/col-1/query":
			json.NewEncoder(w).Encode(map[string]any{"documents": f.queryDocs})
		case "/api/v1/collections/col-1/count":
			json.NewEncoder(w).Encode(f.count)
		default:
			http.Error(w, `{"error":"collection not found"}`, http.StatusNotFound)
		}
	})
	return mux
}

func newTestCollection(t *testing.T, f *fakeChroma) *Collection {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	host, port := hostPort(t, srv.URL)
	client, err := Connect(context.Background(), host, port, testRetry, nil)
	require.NoError(t, err)
	col, err := client.GetOrCreateCollection(context.Background(), f.collectionName)
	require.NoError(t, err)
	return col
}

func TestGetCollection_Missing(t *testing.T) {
	f := &fakeChroma{collectionName: "docs"}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()
	host, port := hostPort(t, srv.URL)
	client, err := Connect(context.Background(), host, port, testRetry, nil)
	require.NoError(t, err)

	_, err = client.GetCollection(context.Background(), "nonexistent")
	require.ErrorIs(t, err, domain.ErrStore)

	col, err := client.GetCollection(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", col.Name())
}

func TestUpsert_LengthMismatchRejectedLocally(t *testing.T) {
	f := &fakeChroma{collectionName: "docs"}
	col := newTestCollection(t, f)

	err := col.Upsert(context.Background(), []string{"a", "b"}, []string{"one"}, []map[string]any{{}, {}})
	require.ErrorIs(t, err, domain.ErrStore)
	assert.Empty(t, f.upserts, "no request should reach the store")
}

func TestUpsert_SendsAllFields(t *testing.T) {
	f := &fakeChroma{collectionName: "docs"}
	col := newTestCollection(t, f)

	err := col.Upsert(context.Background(),
		[]string{"id_0", "id_1"},
		[]string{"first chunk", "second chunk"},
		[]map[string]any{{"source": "a.txt"}, {"source": "a.txt"}},
	)
	require.NoError(t, err)
	require.Len(t, f.upserts, 1)
	sent := f.upserts[0]
	assert.Equal(t, []any{"id_0", "id_1"}, sent["ids"])
	assert.Equal(t, []any{"first chunk", "second chunk"}, sent["documents"])
}

func TestUpsert_StoreFailure(t *testing.T) {
	f := &fakeChroma{collectionName: "docs", failUpserts: true}
	col := newTestCollection(t, f)

	err := col.Upsert(context.Background(), []string{"a"}, []string{"x"}, []map[string]any{{}})
	require.ErrorIs(t, err, domain.ErrStore)
}

func TestQuery_RankedPassages(t *testing.T) {
	f := &fakeChroma{collectionName: "docs", queryDocs: [][]string{{"most relevant", "second", "third"}}}
	col := newTestCollection(t, f)

	passages, err := col.Query(context.Background(), "question", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"most relevant", "second", "third"}, passages)
}

func TestQuery_EmptyCollectionIsNotAnError(t *testing.T) {
	f := &fakeChroma{collectionName: "docs", queryDocs: [][]string{{}}}
	col := newTestCollection(t, f)

	passages, err := col.Query(context.Background(), "question", 5)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestQuery_InvalidN(t *testing.T) {
	f := &fakeChroma{collectionName: "docs"}
	col := newTestCollection(t, f)

	_, err := col.Query(context.Background(), "question", 0)
	require.ErrorIs(t, err, domain.ErrStore)
}

func TestCount(t *testing.T) {
	f := &fakeChroma{collectionName: "docs", count: 42}
	col := newTestCollection(t, f)

	n, err := col.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
