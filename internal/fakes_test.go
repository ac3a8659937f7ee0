package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps HashEmbedder and records calls. Texts in fail are
// rejected, and failBatch makes every batch call fail.
type countingEmbedder struct {
	mu         sync.Mutex
	base       *HashEmbedder
	calls      int
	batchCalls int
	embedded   []string
	failBatch  bool
	fail       map[string]bool
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{base: NewHashEmbedder(64), fail: map[string]bool{}}
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail[text] {
		return nil, errors.New("embedding model unavailable")
	}
	e.embedded = append(e.embedded, text)
	return e.base.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batchCalls++
	failBatch := e.failBatch
	for _, t := range texts {
		if e.fail[t] {
			failBatch = true
		}
	}
	if failBatch {
		e.mu.Unlock()
		return nil, errors.New("batch embedding unavailable")
	}
	e.embedded = append(e.embedded, texts...)
	e.mu.Unlock()
	return e.base.EmbedBatch(ctx, texts)
}

func (e *countingEmbedder) Dimension() int { return e.base.Dimension() }

func (e *countingEmbedder) total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.embedded)
}

func testLayout(t *testing.T) Layout {
	t.Helper()
	return DefaultConfig().Layout(t.TempDir())
}

func writeDoc(t *testing.T, path string, entries ...MemoryEntry) {
	t.Helper()
	_, err := WriteEntries(path, entries)
	require.NoError(t, err)
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0644))
}

// scriptedWake replays wake events. Next returns the next queued label that
// the vocabulary accepts and ErrClassifierUnavailable once the queue is
// empty.
type scriptedWake struct {
	mu      sync.Mutex
	labels  []string
	starts  int
	stops   int
	asked   []string
	onEmpty error
}

func newScriptedWake(labels ...string) *scriptedWake {
	return &scriptedWake{labels: labels, onEmpty: ErrClassifierUnavailable}
}

func (w *scriptedWake) Start(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts++
	return nil
}

func (w *scriptedWake) Next(ctx context.Context, vocab Vocabulary) (WakeEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.asked = append(w.asked, vocab.Name)
	for len(w.labels) > 0 {
		label := w.labels[0]
		w.labels = w.labels[1:]
		if _, ok := vocab.Match(label); ok {
			return WakeEvent{Label: label, Confidence: 0.99, At: time.Now()}, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return WakeEvent{}, err
	}
	return WakeEvent{}, w.onEmpty
}

func (w *scriptedWake) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops++
	return nil
}

type recordingSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	return nil
}

func (s *recordingSpeaker) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type countingRecorder struct {
	calls int
}

func (r *countingRecorder) Record(context.Context) (string, error) {
	r.calls++
	return filepath.Join(os.TempDir(), "rec.wav"), nil
}

// queuedTranscriber returns its transcripts in order, then silence.
type queuedTranscriber struct {
	texts []string
}

func (q *queuedTranscriber) Transcribe(context.Context, string) (string, error) {
	if len(q.texts) == 0 {
		return "", nil
	}
	t := q.texts[0]
	q.texts = q.texts[1:]
	return t, nil
}

type fixedCapturer struct {
	path string
	err  error
}

func (c *fixedCapturer) Capture(context.Context) (string, error) {
	return c.path, c.err
}

type recordingDisplay struct {
	shown []string
}

func (d *recordingDisplay) Show(_ context.Context, paths []string, _ time.Duration) error {
	d.shown = append(d.shown, paths...)
	return nil
}

type stubReasoner struct {
	answer  Reasoning
	err     error
	queries []string
	seen    []MemoryEntry
	panics  bool
}

func (r *stubReasoner) Answer(_ context.Context, query string, entries []MemoryEntry) (Reasoning, error) {
	if r.panics {
		panic("reasoner exploded")
	}
	r.queries = append(r.queries, query)
	r.seen = entries
	return r.answer, r.err
}

type stubCaptioner struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (c *stubCaptioner) Caption(_ context.Context, imagePath string, ts Timestamp) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := filepath.Base(imagePath)
	c.calls = append(c.calls, base)
	if c.fail[base] {
		return "", errors.New("vision model timed out")
	}
	return "a photo taken at " + ts.String(), nil
}
