package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

type WakeEvent struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Vocabulary is a set of labels the caller is waiting for. A vocabulary
// with a Model needs the classifier restarted on that model; one without
// is served by whatever general model is running.
type Vocabulary struct {
	Name      string
	Labels    []string
	Threshold float64
	Model     string
}

func VocabularyFromConfig(name string, c VocabularyConfig) Vocabulary {
	return Vocabulary{Name: name, Labels: c.Labels, Threshold: c.Threshold, Model: c.Model}
}

// Match returns the vocabulary's spelling of label.
func (v Vocabulary) Match(label string) (string, bool) {
	n := NormalizeLabel(label)
	for _, l := range v.Labels {
		if NormalizeLabel(l) == n {
			return l, true
		}
	}
	return "", false
}

// Accept applies the threshold and membership test to a classification.
func (v Vocabulary) Accept(c Classification) (WakeEvent, bool) {
	label, score := c.Top()
	if label == "" || score < v.Threshold {
		return WakeEvent{}, false
	}
	canonical, ok := v.Match(label)
	if !ok {
		return WakeEvent{}, false
	}
	return WakeEvent{Label: canonical, Confidence: score, At: time.Now()}, true
}

// NormalizeLabel folds "Take Photo", "take_photo" and "take-photo" into
// "takephoto".
func NormalizeLabel(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// WakeSource delivers wake words. Stop releases the microphone; the next
// Next call reacquires it.
type WakeSource interface {
	Start(ctx context.Context) error
	Next(ctx context.Context, vocab Vocabulary) (WakeEvent, error)
	Stop() error
}

// ClassifierProcess is the process lifecycle a LogTailSource drives.
type ClassifierProcess interface {
	Start(ctx context.Context, model string) error
	Alive() bool
	Stop() error
	Model() string
}

var (
	_ ClassifierProcess = (*Runner)(nil)
	_ WakeSource        = (*LogTailSource)(nil)
)

// LogTailSource detects wake words by tailing the classifier's log file.
type LogTailSource struct {
	proc         ClassifierProcess
	tail         *logTail
	logPath      string
	defaultModel string
	interval     time.Duration
	maxRestarts  int
	maxLogBytes  int64
	log          zerolog.Logger

	watcher *fsnotify.Watcher
}

func NewLogTailSource(proc ClassifierProcess, logPath string, cfg RunnerConfig, log zerolog.Logger) *LogTailSource {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 300 * time.Millisecond
	}
	return &LogTailSource{
		proc:         proc,
		tail:         newLogTail(logPath),
		logPath:      logPath,
		defaultModel: cfg.Model,
		interval:     interval,
		maxRestarts:  cfg.MaxRestarts,
		maxLogBytes:  cfg.MaxLogBytes,
		log:          log,
	}
}

func (s *LogTailSource) Start(ctx context.Context) error {
	if s.proc.Alive() {
		return nil
	}
	return s.acquire(ctx, s.defaultModel)
}

func (s *LogTailSource) acquire(ctx context.Context, model string) error {
	if err := s.proc.Start(ctx, model); err != nil {
		return err
	}
	s.tail.Rewind()

	if s.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.log.Warn().Err(err).Msg("log watcher unavailable, polling only")
			return nil
		}
		if err := w.Add(filepath.Dir(s.logPath)); err != nil {
			w.Close()
			s.log.Warn().Err(err).Msg("log watcher unavailable, polling only")
			return nil
		}
		s.watcher = w
	}
	return nil
}

func (s *LogTailSource) modelFor(vocab Vocabulary) string {
	if vocab.Model != "" {
		return vocab.Model
	}
	return s.defaultModel
}

// Next blocks until a record's top label belongs to vocab with enough
// confidence. A dead classifier is restarted; once the restart budget is
// spent Next returns ErrClassifierUnavailable.
func (s *LogTailSource) Next(ctx context.Context, vocab Vocabulary) (WakeEvent, error) {
	want := s.modelFor(vocab)
	attempts := 0
	var lastErr error

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		switch {
		case !s.proc.Alive():
			if attempts > s.maxRestarts {
				return WakeEvent{}, fmt.Errorf("%w: %d start attempts failed: %v", ErrClassifierUnavailable, attempts, lastErr)
			}
			if attempts > 0 {
				s.log.Warn().Int("attempt", attempts).Msg("classifier not running, restarting")
			}
			attempts++
			if err := s.acquire(ctx, want); err != nil {
				if ctx.Err() != nil {
					return WakeEvent{}, ctx.Err()
				}
				lastErr = err
				s.log.Warn().Err(err).Msg("classifier start failed")
			}
		case s.proc.Model() != want:
			s.log.Info().Str("model", want).Str("vocabulary", vocab.Name).Msg("switching classifier model")
			if err := s.acquire(ctx, want); err != nil {
				lastErr = err
				s.log.Warn().Err(err).Msg("classifier switch failed")
			}
		default:
			ev, parsed, err := s.poll(vocab)
			if err != nil {
				s.log.Warn().Err(err).Msg("reading classifier log failed")
			}
			if parsed {
				attempts = 0
			}
			if ev != nil {
				return *ev, nil
			}
		}

		if err := s.wait(ctx, ticker); err != nil {
			return WakeEvent{}, err
		}
	}
}

// wait returns on the next tick or when the log file is written.
func (s *LogTailSource) wait(ctx context.Context, ticker *time.Ticker) error {
	var events chan fsnotify.Event
	var errs chan error
	if s.watcher != nil {
		events, errs = s.watcher.Events, s.watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			return nil
		case ev, ok := <-events:
			if !ok {
				s.watcher = nil
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(s.logPath) && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				s.watcher = nil
				return nil
			}
			s.log.Debug().Err(err).Msg("log watcher error")
		}
	}
}

// poll inspects the records appended since the last call. parsed reports
// whether any classification record was seen.
func (s *LogTailSource) poll(vocab Vocabulary) (*WakeEvent, bool, error) {
	lines, err := s.tail.ReadNew()
	if err != nil {
		return nil, false, err
	}

	c, ok := LatestClassification(lines)
	if ok {
		if ev, hit := vocab.Accept(c); hit {
			s.log.Info().Str("label", ev.Label).Float64("confidence", ev.Confidence).Msg("wake word detected")
			if err := s.tail.Reset(); err != nil {
				return &ev, true, err
			}
			return &ev, true, nil
		}
		label, score := c.Top()
		s.log.Debug().Str("label", label).Float64("confidence", score).Str("vocabulary", vocab.Name).Msg("ignoring classification")
	}

	if s.maxLogBytes > 0 && s.tail.Cursor() > s.maxLogBytes {
		if err := s.tail.Reset(); err != nil {
			return nil, ok, err
		}
	}
	return nil, ok, nil
}

// Stop releases the classifier and its microphone.
func (s *LogTailSource) Stop() error {
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	s.tail.Rewind()
	if err := s.proc.Stop(); err != nil {
		return fmt.Errorf("stop classifier: %w", err)
	}
	return nil
}

// Cursor exposes the log read position.
func (s *LogTailSource) Cursor() int64 { return s.tail.Cursor() }
