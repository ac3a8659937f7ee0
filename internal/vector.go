package internal

import "context"

// Match is one semantic index hit. Distance is 1 - cosine similarity.
type Match struct {
	Entry    MemoryEntry
	Distance float32
}

// Similarity maps the distance into [0, 1], higher is better.
func (m Match) Similarity() float64 {
	s := 1 - float64(m.Distance)
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

type SemanticIndex interface {
	Upsert(ctx context.Context, id string, vec []float32, entry MemoryEntry) error
	// Existing reports which of ids are already indexed.
	Existing(ctx context.Context, ids []string) (map[string]bool, error)
	Query(ctx context.Context, vec []float32, k int) ([]Match, error)
	Count() int
}
