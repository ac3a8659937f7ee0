package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendLog(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestLogTailReadsOnlyNewCompleteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.log")
	tail := newLogTail(path)

	lines, err := tail.ReadNew()
	require.NoError(t, err)
	assert.Empty(t, lines)

	appendLog(t, path, "one\ntwo\nthr")
	lines, err = tail.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)

	appendLog(t, path, "ee\r\n\nfour\n")
	lines, err = tail.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, lines)

	lines, err = tail.ReadNew()
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestLogTailRestartsWhenFileShrinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.log")
	tail := newLogTail(path)

	appendLog(t, path, "a long first line\n")
	_, err := tail.ReadNew()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("new\n"), 0644))
	lines, err := tail.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, lines)
}

func TestLogTailReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.log")
	tail := newLogTail(path)

	appendLog(t, path, "classifyRes 1ms. { yes: '0.99' }\n")
	_, err := tail.ReadNew()
	require.NoError(t, err)
	assert.Positive(t, tail.Cursor())

	require.NoError(t, tail.Reset())
	assert.Zero(t, tail.Cursor())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	appendLog(t, path, "after\n")
	lines, err := tail.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, lines)
}

func TestLogTailBoundsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.log")
	tail := newLogTail(path)

	appendLog(t, path, strings.Repeat("x", maxPartialLine*2))
	lines, err := tail.ReadNew()
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Len(t, tail.partial, maxPartialLine)
}
