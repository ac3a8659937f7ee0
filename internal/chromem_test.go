package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemIndexUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	ix, err := NewMemoryIndex()
	require.NoError(t, err)
	emb := NewHashEmbedder(64)

	entries := []MemoryEntry{
		mustEntry(t, "2025-04-29 13:31", "keys on the kitchen table", "img_20250429_133100.jpg", SourceUser),
		mustEntry(t, "2025-04-29 14:00", "a red bicycle outside", "", SourceModel),
	}
	for _, e := range entries {
		vec, err := emb.Embed(ctx, e.Description)
		require.NoError(t, err)
		require.NoError(t, ix.Upsert(ctx, e.ID(), vec, e))
	}
	assert.Equal(t, 2, ix.Count())

	vec, err := emb.Embed(ctx, "kitchen keys")
	require.NoError(t, err)
	matches, err := ix.Query(ctx, vec, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	top := matches[0]
	assert.Equal(t, "keys on the kitchen table", top.Entry.Description)
	assert.Equal(t, SourceUser, top.Entry.Source)
	assert.Equal(t, "img_20250429_133100.jpg", top.Entry.ImagePath)
	assert.Equal(t, "2025-04-29 13:31", top.Entry.Timestamp.String())
	assert.Greater(t, top.Similarity(), matches[1].Similarity())
}

func TestChromemIndexExisting(t *testing.T) {
	ctx := context.Background()
	ix, err := NewMemoryIndex()
	require.NoError(t, err)

	e := mustEntry(t, "2025-04-29 13:31", "keys", "", SourceUser)
	found, err := ix.Existing(ctx, []string{e.ID()})
	require.NoError(t, err)
	assert.False(t, found[e.ID()])

	vec, _ := NewHashEmbedder(16).Embed(ctx, e.Description)
	require.NoError(t, ix.Upsert(ctx, e.ID(), vec, e))

	found, err = ix.Existing(ctx, []string{e.ID(), "memory-unknown"})
	require.NoError(t, err)
	assert.True(t, found[e.ID()])
	assert.False(t, found["memory-unknown"])
}

func TestChromemIndexQueryEmpty(t *testing.T) {
	ix, err := NewMemoryIndex()
	require.NoError(t, err)

	matches, err := ix.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemIndexPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := mustEntry(t, "2025-04-29 13:31", "keys", "", SourceUser)
	vec, _ := NewHashEmbedder(16).Embed(ctx, e.Description)

	ix, err := NewChromemIndex(dir)
	require.NoError(t, err)
	require.NoError(t, ix.Upsert(ctx, e.ID(), vec, e))

	reopened, err := NewChromemIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())

	found, err := reopened.Existing(ctx, []string{e.ID()})
	require.NoError(t, err)
	assert.True(t, found[e.ID()])
}

func TestMatchSimilarityClamps(t *testing.T) {
	assert.Equal(t, 1.0, Match{Distance: -0.5}.Similarity())
	assert.Equal(t, 0.0, Match{Distance: 1.5}.Similarity())
	assert.InDelta(t, 0.75, Match{Distance: 0.25}.Similarity(), 1e-6)
}
