package internal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, layout Layout, emb Embedder, opts ...SyncOption) (*SyncPipeline, *ChromemIndex) {
	t.Helper()
	ix, err := NewMemoryIndex()
	require.NoError(t, err)
	return NewSyncPipeline(layout, ix, emb, zerolog.Nop(), opts...), ix
}

func TestSyncMergesInTimestampOrder(t *testing.T) {
	layout := testLayout(t)
	writeDoc(t, layout.UserNotesPath(),
		mustEntry(t, "2025-04-29 15:00", "evening walk", "", SourceUser),
		mustEntry(t, "2025-04-29 09:00", "breakfast", "", SourceUser),
	)
	writeDoc(t, layout.ModelDescriptionsPath(),
		mustEntry(t, "2025-04-29 12", "a plate of pasta", "img_2025042912.jpg", SourceModel),
		mustEntry(t, "2025-04-29 09:00", "a cup of coffee", "", SourceModel),
	)

	p, ix := newTestPipeline(t, layout, newCountingEmbedder())
	report, err := p.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.UserNotes)
	assert.Equal(t, 2, report.ModelDescriptions)
	assert.Equal(t, 4, report.Combined)
	assert.Equal(t, 4, report.Indexed)
	assert.True(t, report.StoreChanged)
	assert.Equal(t, 4, ix.Count())

	combined, _, err := LoadEntries(layout.CombinedPath())
	require.NoError(t, err)
	var got []string
	for _, e := range combined {
		got = append(got, e.Description)
	}
	assert.Equal(t, []string{"breakfast", "a cup of coffee", "a plate of pasta", "evening walk"}, got)
	assert.Equal(t, SourceModel, combined[1].Source)
}

func TestSyncIsIdempotent(t *testing.T) {
	layout := testLayout(t)
	writeDoc(t, layout.UserNotesPath(), mustEntry(t, "2025-04-29 13:31", "keys on the table", "", SourceUser))
	writeDoc(t, layout.ModelDescriptionsPath(), mustEntry(t, "2025-04-29 13:31", "a set of keys", "", SourceModel))

	emb := newCountingEmbedder()
	p, ix := newTestPipeline(t, layout, emb)

	_, err := p.Sync(context.Background())
	require.NoError(t, err)
	embedded := emb.total()

	report, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.False(t, report.StoreChanged)
	assert.Zero(t, report.Indexed)
	assert.Equal(t, embedded, emb.total())
	assert.Equal(t, 2, ix.Count())
}

func TestSyncIndexesOnlyNewEntries(t *testing.T) {
	layout := testLayout(t)
	writeDoc(t, layout.UserNotesPath(), mustEntry(t, "2025-04-29 13:31", "keys on the table", "", SourceUser))

	emb := newCountingEmbedder()
	p, _ := newTestPipeline(t, layout, emb)
	_, err := p.Sync(context.Background())
	require.NoError(t, err)

	writeDoc(t, layout.UserNotesPath(),
		mustEntry(t, "2025-04-29 13:31", "keys on the table", "", SourceUser),
		mustEntry(t, "2025-04-29 14:00", "wallet in the car", "", SourceUser),
	)
	report, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, []string{"keys on the table", "wallet in the car"}, emb.embedded)
}

func TestSyncCollapsesSharedIdentifiers(t *testing.T) {
	layout := testLayout(t)
	writeDoc(t, layout.UserNotesPath(), mustEntry(t, "2025-04-29 13:31", "a red bicycle", "img_user.jpg", SourceUser))
	writeDoc(t, layout.ModelDescriptionsPath(), mustEntry(t, "2025-04-29 13:31", "a red bicycle", "img_model.jpg", SourceModel))

	p, ix := newTestPipeline(t, layout, newCountingEmbedder())
	report, err := p.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Combined)
	assert.Equal(t, 1, report.Collapsed)
	assert.Equal(t, 1, ix.Count())

	combined, _, err := LoadEntries(layout.CombinedPath())
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, SourceUser, combined[0].Source)
	assert.Equal(t, "img_user.jpg", combined[0].ImagePath)
}

func TestSyncFallsBackToSingleEmbeddings(t *testing.T) {
	layout := testLayout(t)
	writeDoc(t, layout.UserNotesPath(),
		mustEntry(t, "2025-04-29 09:00", "breakfast", "", SourceUser),
		mustEntry(t, "2025-04-29 10:00", "unlucky note", "", SourceUser),
		mustEntry(t, "2025-04-29 11:00", "coffee break", "", SourceUser),
	)

	emb := newCountingEmbedder()
	emb.fail["unlucky note"] = true
	p, ix := newTestPipeline(t, layout, emb)

	report, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 1, report.EmbedFailures)
	assert.Equal(t, 2, ix.Count())

	delete(emb.fail, "unlucky note")
	report, err = p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Zero(t, report.EmbedFailures)
	assert.Equal(t, 3, ix.Count())
}

func TestSyncCountsSkippedRecords(t *testing.T) {
	layout := testLayout(t)
	touchDoc := `[{"timestamp": "2025-04-29 13:31", "description": "ok", "source": "user"}, {"timestamp": "soon", "description": "bad"}]`
	require.NoError(t, writeFileAtomic(layout.UserNotesPath(), []byte(touchDoc)))

	p, _ := newTestPipeline(t, layout, newCountingEmbedder())
	report, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Combined)
}

func TestSyncWithoutIndex(t *testing.T) {
	layout := testLayout(t)
	writeDoc(t, layout.UserNotesPath(), mustEntry(t, "2025-04-29 13:31", "keys", "", SourceUser))

	p := NewSyncPipeline(layout, nil, nil, zerolog.Nop())
	report, err := p.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Combined)
	assert.Zero(t, report.Indexed)
}

func TestSyncWaitsForLock(t *testing.T) {
	layout := testLayout(t)
	lock := NewFileLock(layout.LockPath())
	require.NoError(t, lock.Acquire(context.Background()))
	defer lock.Release()

	p, _ := newTestPipeline(t, layout, newCountingEmbedder())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := p.Sync(ctx)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestSyncRecordsJournal(t *testing.T) {
	layout := testLayout(t)
	journal, err := OpenJournal(layout.Root)
	require.NoError(t, err)

	writeDoc(t, layout.UserNotesPath(), mustEntry(t, "2025-04-29 13:31", "keys", "", SourceUser))
	p, _ := newTestPipeline(t, layout, newCountingEmbedder(), WithJournal(journal))

	_, err = p.Sync(context.Background())
	require.NoError(t, err)
	_, err = p.Sync(context.Background())
	require.NoError(t, err)

	commits, err := journal.Log(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Contains(t, commits[0].Message, "1 combined")
}

func TestAppendNoteUsesFilenameTimestamp(t *testing.T) {
	layout := testLayout(t)
	p, _ := newTestPipeline(t, layout, newCountingEmbedder())

	image := filepath.Join(layout.ImagesPath(), "img_20250429_133120.jpg")
	entry, err := p.AppendNote(context.Background(), image, "  keys on the table ", time.Now())
	require.NoError(t, err)

	assert.Equal(t, "2025-04-29 13:31:20", entry.Timestamp.String())
	assert.Equal(t, "keys on the table", entry.Description)
	assert.Equal(t, SourceUser, entry.Source)

	notes, _, err := LoadEntries(layout.UserNotesPath())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, entry.ID(), notes[0].ID())
}

func TestAppendNoteFallsBackToSaveTime(t *testing.T) {
	layout := testLayout(t)
	p, _ := newTestPipeline(t, layout, newCountingEmbedder())

	at := time.Date(2025, 5, 1, 8, 15, 42, 0, time.UTC)
	entry, err := p.AppendNote(context.Background(), "snapshot.jpg", "garden", at)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01 08:15", entry.Timestamp.String())

	clock := WithClock(func() time.Time { return at })
	p2, _ := newTestPipeline(t, layout, newCountingEmbedder(), clock)
	entry, err = p2.AppendNote(context.Background(), "", "no photo", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01 08:15", entry.Timestamp.String())
}

func TestAppendNoteRejectsEmptyText(t *testing.T) {
	layout := testLayout(t)
	p, _ := newTestPipeline(t, layout, newCountingEmbedder())

	_, err := p.AppendNote(context.Background(), "img_20250429_133120.jpg", "   ", time.Now())
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestMergeEntriesTiesKeepUserFirst(t *testing.T) {
	user := []MemoryEntry{mustEntry(t, "2025-04-29 13:31", "note", "", SourceUser)}
	model := []MemoryEntry{mustEntry(t, "2025-04-29 13:31", "caption", "", SourceModel)}

	merged, collapsed := MergeEntries(user, model)
	require.Len(t, merged, 2)
	assert.Zero(t, collapsed)
	assert.Equal(t, SourceUser, merged[0].Source)
	assert.Equal(t, SourceModel, merged[1].Source)
}
