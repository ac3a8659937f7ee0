package internal

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Retriever answers a question with memories from both sources, so model
// captions never crowd out what the user said.
type Retriever struct {
	index    SemanticIndex
	embedder Embedder
	cfg      RetrievalConfig
	log      zerolog.Logger
}

func NewRetriever(index SemanticIndex, embedder Embedder, cfg RetrievalConfig, log zerolog.Logger) *Retriever {
	return &Retriever{index: index, embedder: embedder, cfg: cfg, log: log}
}

// Retrieve returns at most quota entries per source, ordered by timestamp.
// topK <= 0 uses the configured top_k.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]MemoryEntry, error) {
	if r.index == nil || r.embedder == nil {
		return nil, ErrNoIndex
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.index.Query(ctx, vec, r.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}

	userQ, modelQ := Quotas(topK, r.cfg.UserQuota, r.cfg.ModelQuota)
	out := Stratify(matches, userQ, modelQ)

	r.log.Debug().
		Str("query", query).
		Int("candidates", len(matches)).
		Int("returned", len(out)).
		Msg("memories retrieved")

	return out, nil
}

// Quotas splits topK evenly between sources, rounding up. Positive
// overrides replace the computed share.
func Quotas(topK, userOverride, modelOverride int) (int, int) {
	half := (topK + 1) / 2
	userQ, modelQ := half, half
	if userOverride > 0 {
		userQ = userOverride
	}
	if modelOverride > 0 {
		modelQ = modelOverride
	}
	return userQ, modelQ
}

// Stratify keeps the userQ most similar user entries and the modelQ most
// similar model entries, then orders the union chronologically. A source
// with fewer candidates than its quota is not topped up from the other.
func Stratify(matches []Match, userQ, modelQ int) []MemoryEntry {
	var user, model []Match
	for _, m := range matches {
		switch m.Entry.Source {
		case SourceUser:
			user = append(user, m)
		case SourceModel:
			model = append(model, m)
		}
	}

	out := make([]MemoryEntry, 0, userQ+modelQ)
	out = append(out, topBySimilarity(user, userQ)...)
	out = append(out, topBySimilarity(model, modelQ)...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func topBySimilarity(ms []Match, n int) []MemoryEntry {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Distance < ms[j].Distance
	})
	if n < 0 {
		n = 0
	}
	if n < len(ms) {
		ms = ms[:n]
	}
	out := make([]MemoryEntry, len(ms))
	for i, m := range ms {
		e := m.Entry
		e.Similarity = m.Similarity()
		out[i] = e
	}
	return out
}
