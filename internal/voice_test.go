package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTemplateExpand(t *testing.T) {
	tmpl := CommandTemplate{"espeak", "-s", "{rate}", "{text}", "{unknown}"}
	got := tmpl.Expand(map[string]string{"rate": "140", "text": "hello {rate}"})
	assert.Equal(t, []string{"espeak", "-s", "140", "hello {rate}", "{unknown}"}, got)
}

func TestCommandSpeaker(t *testing.T) {
	out := filepath.Join(t.TempDir(), "spoken.txt")
	s := NewCommandSpeaker([]string{"sh", "-c", `printf '%s' "$1" > "$2"`, "sh", "{text}", out}, time.Second)

	require.NoError(t, s.Speak(context.Background(), "   "))
	assert.NoFileExists(t, out)

	require.NoError(t, s.Speak(context.Background(), " Photo saved. "))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Photo saved.", string(data))
}

func TestCommandSpeakerWithoutCommand(t *testing.T) {
	err := NewCommandSpeaker(nil, time.Second).Speak(context.Background(), "hello")
	assert.Error(t, err)
}

func TestCommandTranscriber(t *testing.T) {
	tr := NewCommandTranscriber([]string{"sh", "-c", `printf '  where are \n my   keys  \n'`}, time.Second)
	text, err := tr.Transcribe(context.Background(), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "where are my keys", text)
}

func TestCommandTranscriberReportsStderr(t *testing.T) {
	tr := NewCommandTranscriber([]string{"sh", "-c", "echo model missing >&2; exit 2"}, time.Second)
	_, err := tr.Transcribe(context.Background(), "clip.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model missing")
}

func TestCommandCapturer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	c := NewCommandCapturer([]string{"sh", "-c", `touch "$1"`, "sh", "{out}"}, dir, "", time.Second)
	c.now = func() time.Time { return time.Date(2025, 4, 29, 13, 31, 20, 0, time.Local) }

	path, err := c.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "img_20250429_133120.jpg"), path)
	assert.FileExists(t, path)

	ts, err := TimestampFromFilename(path)
	require.NoError(t, err)
	assert.Equal(t, "2025-04-29 13:31:20", ts.String())
}

func TestCommandCapturerRequiresPhoto(t *testing.T) {
	c := NewCommandCapturer([]string{"true"}, t.TempDir(), "img", time.Second)
	_, err := c.Capture(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "photo not written")
}

func TestCommandRecorder(t *testing.T) {
	dir := t.TempDir()
	r := NewCommandRecorder([]string{"sh", "-c", `test "$2" = 4 && touch "$1"`, "sh", "{out}", "{seconds}"}, dir, 4)

	path, err := r.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ".wav", filepath.Ext(path))
	assert.Equal(t, dir, filepath.Dir(path))
	assert.FileExists(t, path)
}

func TestCommandDisplaySkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	shown := filepath.Join(dir, "shown.log")
	photo := filepath.Join(dir, "img_20250429_133120.jpg")
	touch(t, photo)

	d := NewCommandDisplay([]string{"sh", "-c", `echo "$1" >> "$2"`, "sh", "{in}", shown})
	err := d.Show(context.Background(), []string{filepath.Join(dir, "gone.jpg"), photo}, time.Second)
	require.NoError(t, err)

	data, err := os.ReadFile(shown)
	require.NoError(t, err)
	assert.Equal(t, photo+"\n", string(data))
}

func TestCommandDisplayStopsViewerAfterDelay(t *testing.T) {
	photo := filepath.Join(t.TempDir(), "img_20250429_133120.jpg")
	touch(t, photo)

	d := NewCommandDisplay([]string{"sleep", "5"})
	start := time.Now()
	require.NoError(t, d.Show(context.Background(), []string{photo}, 100*time.Millisecond))
	assert.Less(t, time.Since(start), 3*time.Second)
}
