package internal

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Services wires the memory components of one data directory.
type Services struct {
	Config    *Config
	Layout    Layout
	Log       zerolog.Logger
	Index     SemanticIndex
	Embedder  Embedder
	Journal   *Journal
	Pipeline  *SyncPipeline
	Retriever *Retriever
}

type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	index    SemanticIndex
	embedder Embedder
}

// WithIndex replaces the persistent chromem index.
func WithIndex(ix SemanticIndex) ServiceOption {
	return func(o *serviceOptions) { o.index = ix }
}

// WithEmbedder replaces the configured embedder.
func WithEmbedder(e Embedder) ServiceOption {
	return func(o *serviceOptions) { o.embedder = e }
}

// OpenServices prepares the data directory at root and builds the
// pipeline and retriever on top of it.
func OpenServices(root string, cfg *Config, log zerolog.Logger, opts ...ServiceOption) (*Services, error) {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}

	layout := cfg.Layout(root)
	if err := os.MkdirAll(layout.Root, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	embedder := o.embedder
	if embedder == nil {
		var err error
		embedder, err = NewEmbedderFromConfig(cfg.Embeddings)
		if err != nil {
			return nil, err
		}
	}

	index := o.index
	if index == nil {
		ix, err := NewChromemIndex(layout.IndexPath())
		if err != nil {
			return nil, err
		}
		index = ix
	}

	var syncOpts []SyncOption
	var journal *Journal
	if cfg.History.Enabled {
		j, err := OpenJournal(layout.Root)
		if err != nil {
			return nil, err
		}
		journal = j
		syncOpts = append(syncOpts, WithJournal(j))
	}

	return &Services{
		Config:    cfg,
		Layout:    layout,
		Log:       log,
		Index:     index,
		Embedder:  embedder,
		Journal:   journal,
		Pipeline:  NewSyncPipeline(layout, index, embedder, log, syncOpts...),
		Retriever: NewRetriever(index, embedder, cfg.Retrieval, log),
	}, nil
}

// Reasoner builds the question answering model client.
func (s *Services) Reasoner(ctx context.Context) (Reasoner, error) {
	p, err := NewFantasyProviderFromConfig(ctx, s.Config, s.Config.Reasoning.Provider, s.Config.Reasoning.Model, 0)
	if err != nil {
		return nil, fmt.Errorf("reasoning provider: %w", err)
	}
	return NewProviderReasoner(p), nil
}

// Captions builds the refresher backed by the captioning model.
func (s *Services) Captions(ctx context.Context) (*CaptionRefresher, error) {
	c := s.Config.Captioning
	p, err := NewFantasyProviderFromConfig(ctx, s.Config, c.Provider, c.Model, c.MaxChars)
	if err != nil {
		return nil, fmt.Errorf("captioning provider: %w", err)
	}
	return NewCaptionRefresher(s.Layout, p, c, s.Log), nil
}

// History returns the journal, opening it on demand.
func (s *Services) History() (*Journal, error) {
	if s.Journal != nil {
		return s.Journal, nil
	}
	return OpenJournal(s.Layout.Root)
}

// WakeSource builds the configured classifier front end.
func (s *Services) WakeSource() WakeSource {
	w := s.Config.Wake
	if w.Backend == "stream" {
		return NewStreamSource(w.StreamEndpoint, w.Runner, s.Log)
	}
	runner := NewRunner(w.Runner, s.Layout.RunnerLogPath(), s.Log)
	return NewLogTailSource(runner, s.Layout.RunnerLogPath(), w.Runner, s.Log)
}

// Controller assembles the voice assistant. With captions false, or when
// no captioning model can be built, the capture flow skips describing photos.
func (s *Services) Controller(ctx context.Context, captions bool) (*Controller, error) {
	reasoner, err := s.Reasoner(ctx)
	if err != nil {
		return nil, err
	}

	v := s.Config.Voice
	deps := ControllerDeps{
		Wake:        s.WakeSource(),
		Store:       s.Pipeline,
		Search:      s.Retriever,
		Reasoner:    reasoner,
		Speaker:     NewCommandSpeaker(v.Speak, v.Timeout),
		Capturer:    NewCommandCapturer(v.Capture, s.Layout.ImagesPath(), v.CapturePrefix, v.Timeout),
		Recorder:    NewCommandRecorder(v.Record, s.Layout.RecordingsPath(), v.RecordSeconds),
		Transcriber: NewCommandTranscriber(v.Transcribe, v.Timeout),
	}
	if len(v.Display) > 0 {
		deps.Display = NewCommandDisplay(v.Display)
	}
	if captions {
		refresher, err := s.Captions(ctx)
		if err != nil {
			s.Log.Warn().Err(err).Msg("photo descriptions disabled")
		} else {
			deps.Captions = refresher
		}
	}

	return NewController(deps, ControllerConfigFrom(s.Config), s.Log), nil
}

func (s *Services) Close() {
	if c, ok := s.Embedder.(*CachedEmbedder); ok {
		c.Close()
	}
}
