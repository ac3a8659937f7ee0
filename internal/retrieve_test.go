package internal

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(t *testing.T, ts, desc string, source Source, distance float32) Match {
	t.Helper()
	return Match{Entry: mustEntry(t, ts, desc, "", source), Distance: distance}
}

func TestQuotas(t *testing.T) {
	tests := []struct {
		topK, userOverride, modelOverride int
		wantUser, wantModel               int
	}{
		{6, 0, 0, 3, 3},
		{5, 0, 0, 3, 3},
		{1, 0, 0, 1, 1},
		{0, 0, 0, 0, 0},
		{6, 4, 0, 4, 3},
		{6, 0, 1, 3, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("top%d_u%d_m%d", tt.topK, tt.userOverride, tt.modelOverride), func(t *testing.T) {
			u, m := Quotas(tt.topK, tt.userOverride, tt.modelOverride)
			assert.Equal(t, tt.wantUser, u)
			assert.Equal(t, tt.wantModel, m)
		})
	}
}

func TestStratifyKeepsQuotaPerSourceAndSortsByTime(t *testing.T) {
	matches := []Match{
		match(t, "2025-04-29 18:00", "user far", SourceUser, 0.9),
		match(t, "2025-04-29 10:00", "user near", SourceUser, 0.1),
		match(t, "2025-04-29 08:00", "user mid", SourceUser, 0.3),
		match(t, "2025-04-29 12:00", "model near", SourceModel, 0.05),
		match(t, "2025-04-29 07:00", "model mid", SourceModel, 0.2),
		match(t, "2025-04-29 23:00", "model far", SourceModel, 0.8),
	}

	out := Stratify(matches, 2, 2)
	var got []string
	for _, e := range out {
		got = append(got, e.Description)
	}
	assert.Equal(t, []string{"model mid", "user mid", "user near", "model near"}, got)
	assert.InDelta(t, 0.9, out[2].Similarity, 1e-6)
}

func TestStratifyDoesNotBackfill(t *testing.T) {
	matches := []Match{
		match(t, "2025-04-29 10:00", "only user", SourceUser, 0.1),
		match(t, "2025-04-29 11:00", "model a", SourceModel, 0.2),
		match(t, "2025-04-29 12:00", "model b", SourceModel, 0.3),
		match(t, "2025-04-29 13:00", "model c", SourceModel, 0.4),
		match(t, "2025-04-29 14:00", "model d", SourceModel, 0.5),
	}

	out := Stratify(matches, 2, 2)
	require.Len(t, out, 3)
	users := 0
	for _, e := range out {
		if e.Source == SourceUser {
			users++
		}
	}
	assert.Equal(t, 1, users)
}

func TestStratifyZeroQuota(t *testing.T) {
	matches := []Match{match(t, "2025-04-29 10:00", "note", SourceUser, 0.1)}
	assert.Empty(t, Stratify(matches, 0, 0))
	assert.Empty(t, Stratify(matches, -1, -1))
}

func TestRetrieverBalancesSources(t *testing.T) {
	layout := testLayout(t)
	var user, model []MemoryEntry
	for i := 0; i < 5; i++ {
		user = append(user, mustEntry(t, fmt.Sprintf("2025-04-29 1%d:00", i), fmt.Sprintf("keys note %d", i), "", SourceUser))
		model = append(model, mustEntry(t, fmt.Sprintf("2025-04-29 1%d:30", i), fmt.Sprintf("keys caption %d", i), "", SourceModel))
	}
	writeDoc(t, layout.UserNotesPath(), user...)
	writeDoc(t, layout.ModelDescriptionsPath(), model...)

	emb := NewHashEmbedder(64)
	p, ix := newTestPipeline(t, layout, emb)
	_, err := p.Sync(context.Background())
	require.NoError(t, err)

	r := NewRetriever(ix, emb, RetrievalConfig{TopK: 4}, zerolog.Nop())
	out, err := r.Retrieve(context.Background(), "where are my keys", 0)
	require.NoError(t, err)
	require.Len(t, out, 4)

	counts := map[Source]int{}
	for i, e := range out {
		counts[e.Source]++
		if i > 0 {
			assert.False(t, e.Timestamp.Before(out[i-1].Timestamp))
		}
	}
	assert.Equal(t, 2, counts[SourceUser])
	assert.Equal(t, 2, counts[SourceModel])
}

func TestRetrieverEmptyQuery(t *testing.T) {
	ix, err := NewMemoryIndex()
	require.NoError(t, err)
	r := NewRetriever(ix, NewHashEmbedder(16), RetrievalConfig{TopK: 6}, zerolog.Nop())

	out, err := r.Retrieve(context.Background(), "   ", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRetrieverEmptyIndex(t *testing.T) {
	ix, err := NewMemoryIndex()
	require.NoError(t, err)
	r := NewRetriever(ix, NewHashEmbedder(16), RetrievalConfig{TopK: 6}, zerolog.Nop())

	out, err := r.Retrieve(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRetrieverWithoutIndex(t *testing.T) {
	r := NewRetriever(nil, nil, RetrievalConfig{TopK: 6}, zerolog.Nop())
	_, err := r.Retrieve(context.Background(), "keys", 0)
	assert.ErrorIs(t, err, ErrNoIndex)
}
