package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// DictationPrompts are the lines spoken around one dictation.
type DictationPrompts struct {
	Ask      string
	Retry    string
	Readback string // formatted with the transcript
	Accepted string
	Rejected string
}

var (
	NotePrompts = DictationPrompts{
		Ask:      "Please describe the photo after the beep.",
		Retry:    "I didn't catch that. Please describe the photo again.",
		Readback: "Did you say: %s? Please say yes or no.",
		Accepted: "Got it.",
		Rejected: "Okay, let's try again.",
	}
	QuestionPrompts = DictationPrompts{
		Ask:      "What would you like to know?",
		Retry:    "I didn't catch that. Could you please repeat your question?",
		Readback: "Did you say: %s? Please say yes or no.",
		Accepted: "Understood. Processing your request.",
		Rejected: "Okay, let's try again.",
	}
)

type dictationStep int

const (
	stepRecord dictationStep = iota
	stepConfirm
)

// Dictation records speech until the user confirms the transcript.
type Dictation struct {
	wake        WakeSource
	speaker     Speaker
	recorder    Recorder
	transcriber Transcriber
	// confirm polls a yes/no answer; true means yes.
	confirm     func(ctx context.Context) (bool, error)
	maxAttempts int
	log         zerolog.Logger
}

func NewDictation(wake WakeSource, speaker Speaker, recorder Recorder, transcriber Transcriber, confirm func(context.Context) (bool, error), maxAttempts int, log zerolog.Logger) *Dictation {
	return &Dictation{
		wake:        wake,
		speaker:     speaker,
		recorder:    recorder,
		transcriber: transcriber,
		confirm:     confirm,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Run returns the confirmed transcript. With maxAttempts 0 it keeps asking
// until the user confirms or ctx ends.
func (d *Dictation) Run(ctx context.Context, p DictationPrompts) (string, error) {
	step := stepRecord
	attempts := 0
	silent := false
	text := ""

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		switch step {
		case stepRecord:
			if d.maxAttempts > 0 && attempts >= d.maxAttempts {
				return "", fmt.Errorf("%w after %d recordings", ErrDictationAbandoned, attempts)
			}
			attempts++

			prompt := p.Ask
			if silent {
				prompt = p.Retry
			}
			if err := d.speaker.Speak(ctx, prompt); err != nil {
				return "", fmt.Errorf("speak prompt: %w", err)
			}

			var err error
			text, err = d.listen(ctx)
			if err != nil {
				return "", err
			}
			silent = text == ""
			if silent {
				continue
			}
			step = stepConfirm

		case stepConfirm:
			if err := d.speaker.Speak(ctx, fmt.Sprintf(p.Readback, text)); err != nil {
				return "", fmt.Errorf("speak readback: %w", err)
			}
			yes, err := d.confirm(ctx)
			if err != nil {
				return "", err
			}
			if yes {
				if err := d.speaker.Speak(ctx, p.Accepted); err != nil {
					return "", fmt.Errorf("speak acknowledgement: %w", err)
				}
				return text, nil
			}
			if err := d.speaker.Speak(ctx, p.Rejected); err != nil {
				return "", fmt.Errorf("speak acknowledgement: %w", err)
			}
			text = ""
			step = stepRecord
		}
	}
}

// listen releases the microphone, records and transcribes. A failed
// transcription counts as silence.
func (d *Dictation) listen(ctx context.Context) (string, error) {
	if err := d.wake.Stop(); err != nil {
		return "", fmt.Errorf("release microphone: %w", err)
	}

	audio, err := d.recorder.Record(ctx)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}

	text, err := d.transcriber.Transcribe(ctx, audio)
	if err != nil {
		d.log.Warn().Err(err).Str("audio", audio).Msg("transcription failed")
		return "", nil
	}
	text = strings.TrimSpace(text)
	d.log.Debug().Str("text", text).Msg("transcribed")
	return text, nil
}

// PollConfirmation waits for yes or no on the confirmation vocabulary.
// Other labels are ignored.
func PollConfirmation(ctx context.Context, wake WakeSource, vocab Vocabulary, yes, no string) (bool, error) {
	for {
		ev, err := wake.Next(ctx, vocab)
		if err != nil {
			return false, err
		}
		switch NormalizeLabel(ev.Label) {
		case NormalizeLabel(yes):
			return true, nil
		case NormalizeLabel(no):
			return false, nil
		}
	}
}
