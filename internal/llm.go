package internal

import (
	"context"
	"time"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type Provider interface {
	GenerateObject(ctx context.Context, prompt string, target any) error
}

// Captioner describes one photograph in a few sentences.
type Captioner interface {
	Caption(ctx context.Context, imagePath string, ts Timestamp) (string, error)
}

type Reasoner interface {
	Answer(ctx context.Context, query string, entries []MemoryEntry) (Reasoning, error)
}

// Structured output types for AI features

// Reasoning is the answer to a spoken question.
type Reasoning struct {
	Summary   string   `json:"summary"`
	ImageRefs []string `json:"image_refs"`
}

// Speaker, Recorder, Transcriber, Capturer and Display are the physical I/O
// collaborators of the conversation controller.

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type Recorder interface {
	Record(ctx context.Context) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

type Display interface {
	Show(ctx context.Context, paths []string, delay time.Duration) error
}
