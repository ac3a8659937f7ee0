package internal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustStamp(t *testing.T, s string) Timestamp {
	t.Helper()
	ts, err := ParseTimestamp(s)
	require.NoError(t, err)
	return ts
}

func mustEntry(t *testing.T, ts, desc, image string, source Source) MemoryEntry {
	t.Helper()
	e, err := NewMemoryEntry(mustStamp(t, ts), desc, image, source)
	require.NoError(t, err)
	return e
}

func TestNewMemoryEntryValidates(t *testing.T) {
	ts := mustStamp(t, "2025-04-29 13:31")

	_, err := NewMemoryEntry(ts, "   ", "", SourceUser)
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = NewMemoryEntry(Timestamp{}, "keys on the table", "", SourceUser)
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = NewMemoryEntry(ts, "keys on the table", "", Source("robot"))
	assert.ErrorIs(t, err, ErrInvalidEntry)

	e, err := NewMemoryEntry(ts, "  keys on the table \n", "", SourceUser)
	require.NoError(t, err)
	assert.Equal(t, "keys on the table", e.Description)
}

func TestEntryIDIsStable(t *testing.T) {
	a := mustEntry(t, "2025-04-29 13:31", "keys on the table", "img_1.jpg", SourceUser)
	b := mustEntry(t, "2025-04-29 13:31", "keys on the table", "img_1.jpg", SourceUser)

	assert.Equal(t, a.ID(), b.ID())
	assert.True(t, strings.HasPrefix(a.ID(), IDPrefix))
	assert.Len(t, a.ID(), len(IDPrefix)+64)
}

func TestEntryIDDependsOnTimestampAndDescription(t *testing.T) {
	base := mustEntry(t, "2025-04-29 13:31", "keys on the table", "", SourceUser)
	otherTime := mustEntry(t, "2025-04-29 13:32", "keys on the table", "", SourceUser)
	otherText := mustEntry(t, "2025-04-29 13:31", "keys in the drawer", "", SourceUser)

	assert.NotEqual(t, base.ID(), otherTime.ID())
	assert.NotEqual(t, base.ID(), otherText.ID())
}

func TestEntryIDIgnoresSourceAndImage(t *testing.T) {
	user := mustEntry(t, "2025-04-29 13:31", "a red bicycle", "img_a.jpg", SourceUser)
	model := mustEntry(t, "2025-04-29 13:31", "a red bicycle", "img_b.jpg", SourceModel)

	assert.Equal(t, user.ID(), model.ID())
}

func TestEntryIDDistinguishesPrecision(t *testing.T) {
	minute := mustEntry(t, "2025-04-29 13:00", "lunch", "", SourceUser)
	hour := mustEntry(t, "2025-04-29 13", "lunch", "", SourceUser)

	assert.NotEqual(t, minute.ID(), hour.ID())
}
