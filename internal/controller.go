package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ConversationState int

const (
	StateIdle ConversationState = iota
	StateAwaitingCommandConfirmation
	StateExecutingCaptureFlow
	StateExecutingQueryFlow
)

func (s ConversationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCommandConfirmation:
		return "awaiting_confirmation"
	case StateExecutingCaptureFlow:
		return "capture_flow"
	case StateExecutingQueryFlow:
		return "query_flow"
	default:
		return "unknown"
	}
}

var transitions = map[ConversationState][]ConversationState{
	StateIdle:                        {StateExecutingCaptureFlow, StateExecutingQueryFlow},
	StateExecutingCaptureFlow:        {StateAwaitingCommandConfirmation, StateIdle},
	StateExecutingQueryFlow:          {StateAwaitingCommandConfirmation, StateIdle},
	StateAwaitingCommandConfirmation: {StateExecutingCaptureFlow, StateExecutingQueryFlow, StateIdle},
}

// CanTransition reports whether the controller may move from one state to
// another.
func CanTransition(from, to ConversationState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const (
	promptReady      = "Memory Assistant is ready. Listening for your commands."
	promptCapture    = "Ready to take a photo."
	promptSaved      = "Photo and note saved successfully."
	promptDescribe   = "Do you want me to describe photos? Please say yes or no."
	promptDescribed  = "The photos have been processed."
	promptSkipped    = "Okay, skipping image description."
	promptNoMemories = "I couldn't find any related memories."
	promptFailed     = "Sorry, something went wrong."
)

type NoteStore interface {
	AppendNote(ctx context.Context, imagePath, text string, at time.Time) (MemoryEntry, error)
	Sync(ctx context.Context) (SyncReport, error)
}

type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int) ([]MemoryEntry, error)
}

type Refresher interface {
	Refresh(ctx context.Context) (CaptionReport, error)
}

var (
	_ NoteStore = (*SyncPipeline)(nil)
	_ Searcher  = (*Retriever)(nil)
	_ Refresher = (*CaptionRefresher)(nil)
)

// ControllerDeps are the collaborators of a Controller. Captions may be nil,
// in which case the capture flow does not offer to describe photos.
type ControllerDeps struct {
	Wake        WakeSource
	Store       NoteStore
	Search      Searcher
	Captions    Refresher
	Reasoner    Reasoner
	Speaker     Speaker
	Capturer    Capturer
	Recorder    Recorder
	Transcriber Transcriber
	Display     Display
}

type ControllerConfig struct {
	Command      Vocabulary
	Confirm      Vocabulary
	CaptureLabel string
	QueryLabel   string
	YesLabel     string
	NoLabel      string
	MaxAttempts  int
	DisplayDelay time.Duration
	TopK         int
}

func ControllerConfigFrom(cfg *Config) ControllerConfig {
	return ControllerConfig{
		Command:      VocabularyFromConfig("command", cfg.Wake.Command),
		Confirm:      VocabularyFromConfig("confirm", cfg.Wake.Confirm),
		CaptureLabel: cfg.Wake.CaptureLabel,
		QueryLabel:   cfg.Wake.QueryLabel,
		YesLabel:     cfg.Wake.YesLabel,
		NoLabel:      cfg.Wake.NoLabel,
		MaxAttempts:  cfg.Dialog.MaxAttempts,
		DisplayDelay: cfg.Dialog.DisplayDelay,
		TopK:         cfg.Retrieval.TopK,
	}
}

// Controller runs the voice conversation on a single goroutine.
type Controller struct {
	deps  ControllerDeps
	cfg   ControllerConfig
	log   zerolog.Logger
	state ConversationState
	now   func() time.Time
}

func NewController(deps ControllerDeps, cfg ControllerConfig, log zerolog.Logger) *Controller {
	return &Controller{deps: deps, cfg: cfg, log: log, state: StateIdle, now: time.Now}
}

func (c *Controller) State() ConversationState { return c.state }

func (c *Controller) transition(to ConversationState) error {
	if !CanTransition(c.state, to) {
		from := c.state
		c.state = StateIdle
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.log.Debug().Str("from", c.state.String()).Str("to", to.String()).Msg("state transition")
	c.state = to
	return nil
}

// Run loops until ctx is cancelled or the classifier becomes unavailable.
// The classifier is always released on return.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		if err := c.deps.Wake.Stop(); err != nil {
			c.log.Warn().Err(err).Msg("stopping wake source")
		}
	}()

	if err := c.deps.Wake.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Msg("classifier did not start, retrying on first poll")
	}
	c.say(ctx, c.log, promptReady)

	for {
		err := c.Step(ctx)
		if ctx.Err() != nil {
			c.log.Info().Msg("shutting down")
			return nil
		}
		if errors.Is(err, ErrClassifierUnavailable) {
			return err
		}
	}
}

// Step waits for one command and runs the flow it selects.
func (c *Controller) Step(ctx context.Context) error {
	if c.state != StateIdle {
		c.log.Warn().Str("state", c.state.String()).Msg("resetting to idle")
		c.state = StateIdle
	}

	ev, err := c.deps.Wake.Next(ctx, c.cfg.Command)
	if err != nil {
		return err
	}

	switch NormalizeLabel(ev.Label) {
	case NormalizeLabel(c.cfg.CaptureLabel):
		return c.runFlow(ctx, StateExecutingCaptureFlow, c.captureFlow)
	case NormalizeLabel(c.cfg.QueryLabel):
		return c.runFlow(ctx, StateExecutingQueryFlow, c.queryFlow)
	default:
		c.log.Debug().Str("label", ev.Label).Msg("ignoring command")
		return nil
	}
}

// runFlow is the failure boundary of a conversation cycle: errors and
// panics end up in the log and the controller returns to Idle.
func (c *Controller) runFlow(ctx context.Context, state ConversationState, flow func(context.Context, zerolog.Logger) error) (err error) {
	log := c.log.With().Str("cycle", uuid.NewString()).Str("flow", state.String()).Logger()

	if err := c.transition(state); err != nil {
		log.Error().Err(err).Msg("cannot start flow")
		return nil
	}
	log.Info().Msg("flow started")

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("flow panicked")
			c.say(ctx, log, promptFailed)
			err = nil
		}
		if c.state != StateIdle {
			if terr := c.transition(StateIdle); terr != nil {
				log.Error().Err(terr).Msg("returning to idle")
			}
		}
		if ctx.Err() == nil && !errors.Is(err, ErrClassifierUnavailable) {
			c.say(ctx, log, promptReady)
		}
	}()

	ferr := flow(ctx, log)
	switch {
	case ferr == nil:
		log.Info().Msg("flow finished")
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(ferr, ErrClassifierUnavailable):
		log.Error().Err(ferr).Msg("classifier unavailable")
		return ferr
	case errors.Is(ferr, ErrDictationAbandoned):
		log.Warn().Err(ferr).Msg("dictation abandoned")
	default:
		log.Error().Err(ferr).Msg("flow failed")
		c.say(ctx, log, promptFailed)
	}
	return nil
}

func (c *Controller) say(ctx context.Context, log zerolog.Logger, text string) {
	if err := c.deps.Speaker.Speak(ctx, text); err != nil {
		log.Warn().Err(err).Msg("speak failed")
	}
}

// confirm polls yes/no, passing through AwaitingCommandConfirmation.
func (c *Controller) confirm(ctx context.Context) (bool, error) {
	prev := c.state
	if err := c.transition(StateAwaitingCommandConfirmation); err != nil {
		return false, err
	}
	yes, err := PollConfirmation(ctx, c.deps.Wake, c.cfg.Confirm, c.cfg.YesLabel, c.cfg.NoLabel)
	if terr := c.transition(prev); terr != nil && err == nil {
		err = terr
	}
	return yes, err
}

func (c *Controller) dictation(log zerolog.Logger) *Dictation {
	return NewDictation(c.deps.Wake, c.deps.Speaker, c.deps.Recorder, c.deps.Transcriber, c.confirm, c.cfg.MaxAttempts, log)
}

func (c *Controller) captureFlow(ctx context.Context, log zerolog.Logger) error {
	if err := c.deps.Speaker.Speak(ctx, promptCapture); err != nil {
		return fmt.Errorf("speak: %w", err)
	}

	imagePath, err := c.deps.Capturer.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture image: %w", err)
	}
	log.Info().Str("image", imagePath).Msg("photo captured")

	note, err := c.dictation(log).Run(ctx, NotePrompts)
	if err != nil {
		return err
	}

	if _, err := c.deps.Store.AppendNote(ctx, imagePath, note, c.now()); err != nil {
		return err
	}
	if err := c.deps.Speaker.Speak(ctx, promptSaved); err != nil {
		return fmt.Errorf("speak: %w", err)
	}

	if c.deps.Captions == nil {
		return nil
	}

	if err := c.deps.Speaker.Speak(ctx, promptDescribe); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	yes, err := c.confirm(ctx)
	if err != nil {
		return err
	}
	if !yes {
		return c.deps.Speaker.Speak(ctx, promptSkipped)
	}

	// Captioning needs neither microphone nor classifier.
	if err := c.deps.Wake.Stop(); err != nil {
		log.Warn().Err(err).Msg("stopping wake source")
	}
	report, err := c.deps.Captions.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("describe photos: %w", err)
	}
	log.Info().Int("captioned", report.Captioned).Int("failed", report.Failed).Msg("photos described")
	return c.deps.Speaker.Speak(ctx, promptDescribed)
}

func (c *Controller) queryFlow(ctx context.Context, log zerolog.Logger) error {
	question, err := c.dictation(log).Run(ctx, QuestionPrompts)
	if err != nil {
		return err
	}
	log.Info().Str("question", question).Msg("question confirmed")

	if _, err := c.deps.Store.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("sync failed, answering from the current index")
	}

	entries, err := c.deps.Search.Retrieve(ctx, question, c.cfg.TopK)
	if err != nil {
		return fmt.Errorf("retrieve memories: %w", err)
	}
	if len(entries) == 0 {
		return c.deps.Speaker.Speak(ctx, promptNoMemories)
	}

	answer, err := c.deps.Reasoner.Answer(ctx, question, entries)
	if err != nil {
		return err
	}

	if err := c.deps.Speaker.Speak(ctx, answer.Summary); err != nil {
		return fmt.Errorf("speak answer: %w", err)
	}

	if len(answer.ImageRefs) == 0 || c.deps.Display == nil {
		return nil
	}
	if err := c.deps.Display.Show(ctx, answer.ImageRefs, c.cfg.DisplayDelay); err != nil {
		return fmt.Errorf("show images: %w", err)
	}
	return nil
}
