package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrInvalidEntry          = errors.New("invalid memory entry")
	ErrBadTimestamp          = errors.New("unrecognized timestamp")
	ErrNoIndex               = errors.New("no semantic index available")
	ErrClassifierUnavailable = errors.New("wake word classifier unavailable")
	ErrDictationAbandoned    = errors.New("dictation abandoned")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrLocked                = errors.New("data directory is locked")
)

// IDPrefix prefixes every semantic index identifier.
const IDPrefix = "memory-"

type Source string

const (
	SourceUser  Source = "user"
	SourceModel Source = "model"
)

func (s Source) String() string {
	return string(s)
}

// MemoryEntry is the single durable memory record. Similarity is only set
// on entries returned by retrieval and is never persisted.
type MemoryEntry struct {
	Timestamp   Timestamp `json:"timestamp"`
	Description string    `json:"description"`
	ImagePath   string    `json:"image_path"`
	Source      Source    `json:"source"`
	Similarity  float64   `json:"-"`
}

func NewMemoryEntry(ts Timestamp, description, imagePath string, source Source) (MemoryEntry, error) {
	e := MemoryEntry{
		Timestamp:   ts,
		Description: strings.TrimSpace(description),
		ImagePath:   imagePath,
		Source:      source,
	}
	if err := e.Validate(); err != nil {
		return MemoryEntry{}, err
	}
	return e, nil
}

func (e MemoryEntry) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Timestamp, validation.By(func(any) error {
			if e.Timestamp.IsZero() {
				return errors.New("is required")
			}
			return nil
		})),
		validation.Field(&e.Description, validation.Required),
		validation.Field(&e.Source, validation.Required, validation.In(SourceUser, SourceModel)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

// ID is the stable content identifier of the entry. It covers
// only timestamp and description, so a user note and a model caption with
// identical text at the same moment share one identifier.
func (e MemoryEntry) ID() string {
	return EntryID(e.Timestamp, e.Description)
}

func EntryID(ts Timestamp, description string) string {
	sum := sha256.Sum256([]byte(ts.String() + description))
	return IDPrefix + hex.EncodeToString(sum[:])
}
