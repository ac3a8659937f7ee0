package internal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// SyncReport summarizes one Sync run.
type SyncReport struct {
	UserNotes         int  `json:"user_notes"`
	ModelDescriptions int  `json:"model_descriptions"`
	Combined          int  `json:"combined"`
	Skipped           int  `json:"skipped"`
	Collapsed         int  `json:"collapsed"`
	Indexed           int  `json:"indexed"`
	EmbedFailures     int  `json:"embed_failures"`
	StoreChanged      bool `json:"store_changed"`
}

func (r SyncReport) String() string {
	return fmt.Sprintf("sync: %d user + %d model -> %d combined, %d indexed", r.UserNotes, r.ModelDescriptions, r.Combined, r.Indexed)
}

// SyncPipeline owns the memory documents and keeps the semantic index in
// step with them.
type SyncPipeline struct {
	layout   Layout
	index    SemanticIndex
	embedder Embedder
	journal  *Journal
	log      zerolog.Logger
	now      func() time.Time
}

type SyncOption func(*SyncPipeline)

// WithJournal commits every document change to j.
func WithJournal(j *Journal) SyncOption {
	return func(p *SyncPipeline) { p.journal = j }
}

func WithClock(now func() time.Time) SyncOption {
	return func(p *SyncPipeline) { p.now = now }
}

// NewSyncPipeline wires the pipeline. index and embedder may be nil, in
// which case Sync only maintains the combined document.
func NewSyncPipeline(layout Layout, index SemanticIndex, embedder Embedder, log zerolog.Logger, opts ...SyncOption) *SyncPipeline {
	p := &SyncPipeline{
		layout:   layout,
		index:    index,
		embedder: embedder,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *SyncPipeline) Layout() Layout { return p.layout }

// Sync merges user notes and model descriptions into the combined document
// and indexes entries the index does not know yet. Running it twice without
// document changes writes nothing and embeds nothing.
func (p *SyncPipeline) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	err := WithLock(ctx, p.layout.LockPath(), func() error {
		var err error
		report, err = p.sync(ctx)
		return err
	})
	return report, err
}

func (p *SyncPipeline) sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	user, err := p.load(p.layout.UserNotesPath(), SourceUser, &report)
	if err != nil {
		return report, err
	}
	model, err := p.load(p.layout.ModelDescriptionsPath(), SourceModel, &report)
	if err != nil {
		return report, err
	}
	report.UserNotes = len(user)
	report.ModelDescriptions = len(model)

	merged, collapsed := MergeEntries(user, model)
	report.Combined = len(merged)
	report.Collapsed = collapsed

	changed, err := WriteEntries(p.layout.CombinedPath(), merged)
	if err != nil {
		return report, fmt.Errorf("write combined memories: %w", err)
	}
	report.StoreChanged = changed

	if p.index != nil && p.embedder != nil {
		indexed, failures, err := p.indexMissing(ctx, merged)
		report.Indexed = indexed
		report.EmbedFailures = failures
		if err != nil {
			return report, err
		}
	}

	if changed && p.journal != nil {
		if _, err := p.journal.Record(ctx, report.String(), p.layout.Documents()...); err != nil {
			p.log.Warn().Err(err).Msg("journal commit failed")
		}
	}

	p.log.Info().
		Int("user", report.UserNotes).
		Int("model", report.ModelDescriptions).
		Int("combined", report.Combined).
		Int("indexed", report.Indexed).
		Bool("changed", report.StoreChanged).
		Msg("memories synced")

	return report, nil
}

func (p *SyncPipeline) load(path string, source Source, report *SyncReport) ([]MemoryEntry, error) {
	entries, skipped, err := LoadEntries(path)
	if err != nil {
		return nil, fmt.Errorf("load %s entries: %w", source, err)
	}
	for _, e := range skipped {
		p.log.Warn().Err(e).Str("source", source.String()).Msg("skipping malformed entry")
	}
	report.Skipped += len(skipped)
	return entries, nil
}

// indexMissing embeds and upserts entries absent from the index. Entries
// that fail to embed are left out and picked up by a later sync.
func (p *SyncPipeline) indexMissing(ctx context.Context, entries []MemoryEntry) (int, int, error) {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID()
	}

	existing, err := p.index.Existing(ctx, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("check index: %w", err)
	}

	var missing []MemoryEntry
	for i, e := range entries {
		if !existing[ids[i]] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return 0, 0, nil
	}

	texts := make([]string, len(missing))
	for i, e := range missing {
		texts[i] = e.Description
	}

	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		p.log.Warn().Err(err).Int("count", len(texts)).Msg("batch embedding failed, embedding one by one")
		vecs = make([][]float32, len(texts))
		for i, t := range texts {
			if ctx.Err() != nil {
				return 0, 0, ctx.Err()
			}
			v, err := p.embedder.Embed(ctx, t)
			if err != nil {
				p.log.Warn().Err(err).Str("id", missing[i].ID()).Msg("embedding failed")
				continue
			}
			vecs[i] = v
		}
	}

	indexed, failures := 0, 0
	for i, e := range missing {
		if vecs[i] == nil {
			failures++
			continue
		}
		if err := p.index.Upsert(ctx, e.ID(), vecs[i], e); err != nil {
			p.log.Warn().Err(err).Str("id", e.ID()).Msg("index upsert failed")
			failures++
			continue
		}
		indexed++
	}
	return indexed, failures, nil
}

// AppendNote stores a dictated note for the photograph at imagePath. The
// timestamp comes from the capture filename, or from at when the name
// carries none.
func (p *SyncPipeline) AppendNote(ctx context.Context, imagePath, text string, at time.Time) (MemoryEntry, error) {
	ts, err := TimestampFromFilename(imagePath)
	if err != nil {
		if at.IsZero() {
			at = p.now()
		}
		p.log.Warn().Err(err).Str("image", imagePath).Msg("using save time for note")
		ts = NewTimestamp(at, PrecisionMinute)
	}

	entry, err := NewMemoryEntry(ts, text, imagePath, SourceUser)
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("create note: %w", err)
	}

	err = WithLock(ctx, p.layout.LockPath(), func() error {
		if err := AppendEntry(p.layout.UserNotesPath(), entry); err != nil {
			return err
		}
		if p.journal != nil {
			msg := fmt.Sprintf("note: %s", entry.Timestamp)
			if _, err := p.journal.Record(ctx, msg, p.layout.UserNotesPath()); err != nil {
				p.log.Warn().Err(err).Msg("journal commit failed")
			}
		}
		return nil
	})
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("save note: %w", err)
	}

	p.log.Info().Str("timestamp", entry.Timestamp.String()).Str("image", imagePath).Msg("note saved")
	return entry, nil
}

// MergeEntries orders user and model entries by timestamp. Entries with
// equal timestamps keep their input order, user entries first. Entries
// sharing an identifier are collapsed onto the first one.
func MergeEntries(user, model []MemoryEntry) ([]MemoryEntry, int) {
	all := make([]MemoryEntry, 0, len(user)+len(model))
	all = append(all, user...)
	all = append(all, model...)

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	seen := make(map[string]bool, len(all))
	merged := all[:0]
	collapsed := 0
	for _, e := range all {
		id := e.ID()
		if seen[id] {
			collapsed++
			continue
		}
		seen[id] = true
		merged = append(merged, e)
	}
	return merged, collapsed
}
