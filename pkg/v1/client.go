package v1

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/4thel00z/memassist/internal"
)

// Client provides programmatic access to a memory data directory.
type Client struct {
	svc *internal.Services
}

// New opens the data directory with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{logOutput: io.Discard}
	for _, opt := range opts {
		opt(cfg)
	}

	dataDir := internal.ResolveDataDir(cfg.dataDir)
	configPath := cfg.configPath
	if configPath == "" {
		configPath = filepath.Join(dataDir, internal.ConfigFilename)
	}

	conf, err := internal.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.logLevel
	if level == "" {
		level = conf.LogLevel
	}
	log := internal.NewLogger(cfg.logOutput, level)

	var svcOpts []internal.ServiceOption
	if cfg.hashDims > 0 {
		svcOpts = append(svcOpts, internal.WithEmbedder(internal.NewHashEmbedder(cfg.hashDims)))
	}
	if cfg.inMemory {
		ix, err := internal.NewMemoryIndex()
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, internal.WithIndex(ix))
	}

	svc, err := internal.OpenServices(dataDir, conf, log, svcOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{svc: svc}, nil
}

// DataDir returns the directory the client operates on.
func (c *Client) DataDir() string {
	return c.svc.Layout.Root
}

// Note appends a user note for imagePath. imagePath may be empty.
func (c *Client) Note(ctx context.Context, imagePath, text string) (Memory, error) {
	e, err := c.svc.Pipeline.AppendNote(ctx, imagePath, text, time.Now())
	if err != nil {
		return Memory{}, fmt.Errorf("note: %w", err)
	}
	return toMemory(e), nil
}

// Sync merges notes and descriptions and brings the index up to date.
func (c *Client) Sync(ctx context.Context) (SyncReport, error) {
	r, err := c.svc.Pipeline.Sync(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("sync: %w", err)
	}
	return SyncReport{
		UserNotes:         r.UserNotes,
		ModelDescriptions: r.ModelDescriptions,
		Combined:          r.Combined,
		Indexed:           r.Indexed,
		EmbedFailures:     r.EmbedFailures,
		StoreChanged:      r.StoreChanged,
	}, nil
}

// Search returns the memories closest to query in chronological order.
// A topK of zero uses the configured budget.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]Memory, error) {
	entries, err := c.svc.Retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	memories := make([]Memory, 0, len(entries))
	for _, e := range entries {
		memories = append(memories, toMemory(e))
	}
	return memories, nil
}

// Ask answers question from the retrieved memories with the configured
// reasoning model. It returns a zero Answer when nothing related is stored.
func (c *Client) Ask(ctx context.Context, question string) (Answer, error) {
	entries, err := c.svc.Retriever.Retrieve(ctx, question, 0)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	if len(entries) == 0 {
		return Answer{}, nil
	}

	reasoner, err := c.svc.Reasoner(ctx)
	if err != nil {
		return Answer{}, err
	}
	r, err := reasoner.Answer(ctx, question, entries)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	return Answer{Summary: r.Summary, ImageRefs: r.ImageRefs}, nil
}

// History returns up to limit journal entries, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]Commit, error) {
	journal, err := c.svc.History()
	if err != nil {
		return nil, err
	}
	commits, err := journal.Log(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	out := make([]Commit, 0, len(commits))
	for _, cm := range commits {
		out = append(out, Commit{Hash: cm.Hash, Message: cm.Message, Timestamp: cm.Timestamp})
	}
	return out, nil
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	c.svc.Close()
	return nil
}

func toMemory(e internal.MemoryEntry) Memory {
	return Memory{
		ID:          e.ID(),
		Timestamp:   e.Timestamp.String(),
		Description: e.Description,
		ImagePath:   e.ImagePath,
		Source:      e.Source.String(),
		Similarity:  e.Similarity,
	}
}
