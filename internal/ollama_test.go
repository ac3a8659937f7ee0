package internal

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedderBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL+"/", "nomic-embed-text", 3)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 1, 0}, vecs[1])

	vec, err := e.Embed(context.Background(), "single")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)
	assert.Equal(t, 3, e.Dimension())
}

func TestOllamaEmbedderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "missing" not found`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "missing", 3).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": [[1, 0]]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "m", 2).EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestHashEmbedderIsDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(32)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Keys on the table.")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "keys on the table")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	empty, err := e.Embed(ctx, "  ")
	require.NoError(t, err)
	assert.Equal(t, float32(1), empty[0])
}

func TestNewEmbedderFromConfig(t *testing.T) {
	e, err := NewEmbedderFromConfig(EmbeddingsConfig{Backend: "hash", Dimension: 8})
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)

	e, err = NewEmbedderFromConfig(EmbeddingsConfig{Backend: "ollama", Model: "m", Dimension: 8, CacheSize: 4})
	require.NoError(t, err)
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	cached.Close()

	_, err = NewEmbedderFromConfig(EmbeddingsConfig{Backend: "word2vec"})
	assert.Error(t, err)
}
