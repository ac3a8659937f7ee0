package internal

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "memories"

var _ SemanticIndex = (*ChromemIndex)(nil)

// ChromemIndex stores memory embeddings in an embedded chromem database.
// Embeddings are always supplied by the caller.
type ChromemIndex struct {
	db  *chromem.DB
	col *chromem.Collection
	mu  sync.RWMutex
}

// NewChromemIndex opens (or creates) a persistent index under dir.
func NewChromemIndex(dir string) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return newChromemIndex(db)
}

// NewMemoryIndex returns an index that lives only as long as the process.
func NewMemoryIndex() (*ChromemIndex, error) {
	return newChromemIndex(chromem.NewDB())
}

func newChromemIndex(db *chromem.DB) (*ChromemIndex, error) {
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return &ChromemIndex{db: db, col: col}, nil
}

func (ix *ChromemIndex) Upsert(ctx context.Context, id string, vec []float32, entry MemoryEntry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	doc := chromem.Document{
		ID:        id,
		Content:   entry.Description,
		Embedding: vec,
		Metadata: map[string]string{
			"timestamp":   entry.Timestamp.String(),
			"description": entry.Description,
			"image_path":  entry.ImagePath,
			"source":      entry.Source.String(),
		},
	}
	if err := ix.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	return nil
}

func (ix *ChromemIndex) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	found := make(map[string]bool, len(ids))
	if ix.col.Count() == 0 {
		return found, nil
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := ix.col.GetByID(ctx, id); err == nil {
			found[id] = true
		}
	}
	return found, nil
}

// Query returns up to k nearest entries, nearest first. Asking for more
// entries than the index holds returns all of them.
func (ix *ChromemIndex) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := ix.col.Count()
	if k <= 0 || k > n {
		k = n
	}
	if k == 0 {
		return nil, nil
	}

	results, err := ix.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		entry, err := entryFromMetadata(r.Metadata)
		if err != nil {
			// Written by an incompatible version; a resync re-adds it.
			continue
		}
		matches = append(matches, Match{Entry: entry, Distance: 1 - r.Similarity})
	}
	return matches, nil
}

func (ix *ChromemIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.col.Count()
}

func entryFromMetadata(md map[string]string) (MemoryEntry, error) {
	ts, err := ParseTimestamp(md["timestamp"])
	if err != nil {
		return MemoryEntry{}, err
	}
	return MemoryEntry{
		Timestamp:   ts,
		Description: md["description"],
		ImagePath:   md["image_path"],
		Source:      Source(md["source"]),
	}, nil
}
