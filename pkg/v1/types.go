package v1

import "time"

// Memory is one timestamped note or photo description.
type Memory struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	Description string  `json:"description"`
	ImagePath   string  `json:"image_path,omitempty"`
	Source      string  `json:"source"`
	Similarity  float64 `json:"similarity,omitempty"`
}

// SyncReport summarizes one synchronization of the store and the index.
type SyncReport struct {
	UserNotes         int  `json:"user_notes"`
	ModelDescriptions int  `json:"model_descriptions"`
	Combined          int  `json:"combined"`
	Indexed           int  `json:"indexed"`
	EmbedFailures     int  `json:"embed_failures"`
	StoreChanged      bool `json:"store_changed"`
}

// Answer is the reply to a question about stored memories.
type Answer struct {
	Summary   string   `json:"summary"`
	ImageRefs []string `json:"image_refs"`
}

// Commit is one entry of the document journal.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
