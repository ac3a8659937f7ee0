package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type storedEntry struct {
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
	Source      string `json:"source"`
}

// Document is a decoded entries file. Unreadable keeps the raw form of
// every record that failed to decode, so a rewrite can carry it through.
type Document struct {
	Entries    []MemoryEntry
	Unreadable []json.RawMessage
	Skipped    []error
}

// LoadDocument reads a JSON array of memory entries. A missing file is an
// empty document.
func LoadDocument(path string) (Document, error) {
	var doc Document

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return doc, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	doc.Entries = make([]MemoryEntry, 0, len(raw))
	for i, msg := range raw {
		entry, err := decodeEntry(msg)
		if err != nil {
			doc.Skipped = append(doc.Skipped, fmt.Errorf("%s[%d]: %w", filepath.Base(path), i, err))
			doc.Unreadable = append(doc.Unreadable, msg)
			continue
		}
		doc.Entries = append(doc.Entries, entry)
	}
	return doc, nil
}

// LoadEntries reads a JSON array of memory entries. Records that fail to
// parse or validate are returned in skipped and left out of the result.
func LoadEntries(path string) (entries []MemoryEntry, skipped []error, err error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, nil, err
	}
	return doc.Entries, doc.Skipped, nil
}

func decodeEntry(msg json.RawMessage) (MemoryEntry, error) {
	var rec storedEntry
	if err := json.Unmarshal(msg, &rec); err != nil {
		return MemoryEntry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	ts, err := ParseTimestamp(rec.Timestamp)
	if err != nil {
		return MemoryEntry{}, err
	}

	return NewMemoryEntry(ts, rec.Description, rec.ImagePath, Source(rec.Source))
}

func encodeRecords(entries []MemoryEntry, unreadable []json.RawMessage) ([]byte, error) {
	records := make([]any, 0, len(entries)+len(unreadable))
	for _, e := range entries {
		records = append(records, e)
	}
	for _, msg := range unreadable {
		records = append(records, msg)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode entries: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteEntries persists entries atomically. It reports false without
// touching the file when the encoded bytes equal what is already on disk.
func WriteEntries(path string, entries []MemoryEntry) (bool, error) {
	return WriteDocument(path, Document{Entries: entries})
}

// WriteDocument persists doc atomically. Unreadable records are written
// back verbatim after the entries.
func WriteDocument(path string, doc Document) (bool, error) {
	data, err := encodeRecords(doc.Entries, doc.Unreadable)
	if err != nil {
		return false, err
	}

	current, err := os.ReadFile(path)
	if err == nil && bytes.Equal(current, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return false, err
	}
	return true, nil
}

// AppendEntry adds entry to the document at path.
func AppendEntry(path string, entry MemoryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	entries, skipped, err := LoadEntries(path)
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		// Rewriting would silently drop the records we could not parse.
		return fmt.Errorf("append to %s: %d unreadable records: %w", filepath.Base(path), len(skipped), skipped[0])
	}

	if _, err := WriteEntries(path, append(entries, entry)); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
