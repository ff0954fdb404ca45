package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		// Package-init daemons of glog (via ristretto) and opencensus (via genai).
		goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreCurrent(),
	)
}

func TestNewEngine(t *testing.T) {
	tests := []struct {
		cfg     Config
		name    string
		wantErr bool
	}{
		{Config{Provider: "mock", Dimensions: 8}, "mock", false},
		{Config{Provider: "ollama"}, "ollama:embeddinggemma", false},
		{Config{Provider: "voyage", APIKey: "k"}, "voyage:voyage-3.5", false},
		{Config{Provider: "voyage"}, "", true},
		{Config{Provider: "genai"}, "", true},
		{Config{Provider: "openai"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Provider, func(t *testing.T) {
			e, err := NewEngine(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, e.Name())
		})
	}
}

func TestVoyageEngine_Embed(t *testing.T) {
	var got voyageEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer pa-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}],"model":"voyage-3.5","usage":{"total_tokens":17}}`))
	}))
	defer srv.Close()

	e, err := NewVoyageEngine("pa-test", "", srv.URL+"/", 3, 0)
	require.NoError(t, err)

	res, err := e.Embed(context.Background(), "remember this", InputQuery)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, res.Vector)
	assert.Equal(t, int64(17), res.Tokens)
	assert.Equal(t, []string{"remember this"}, got.Input)
	assert.Equal(t, "query", got.InputType)
	assert.Equal(t, "voyage", e.Source())
}

func TestVoyageEngine_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e, err := NewVoyageEngine("pa-test", "", srv.URL, 0, 0)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x", InputDocument)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProvider))
	assert.Contains(t, err.Error(), "429")
}

func TestOllamaEngine_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[1,0]],"prompt_eval_count":4}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEngine(srv.URL, "nomic-embed-text", 2, 0)
	require.NoError(t, err)

	res, err := e.Embed(context.Background(), "hello", InputDocument)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, res.Vector)
	assert.Equal(t, int64(4), res.Tokens)
}

func TestOllamaEngine_EstimatesMissingTokenCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[1]]}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEngine(srv.URL, "", 1, 0)
	require.NoError(t, err)

	res, err := e.Embed(context.Background(), "twelve chars", InputDocument)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Tokens)
}

func TestOllamaEngine_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, err := NewOllamaEngine(url, "", 0, 0)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x", InputDocument)
	assert.True(t, errors.Is(err, ErrProvider))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(0), estimateTokens(""))
	assert.Equal(t, int64(1), estimateTokens("a"))
	assert.Equal(t, int64(1), estimateTokens("abcd"))
	assert.Equal(t, int64(2), estimateTokens("abcde"))
}

func TestTaskType(t *testing.T) {
	assert.Equal(t, "RETRIEVAL_QUERY", taskType(InputQuery))
	assert.Equal(t, "RETRIEVAL_DOCUMENT", taskType(InputDocument))
}
