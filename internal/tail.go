package internal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxPartialLine bounds the buffered tail of an unterminated line.
const maxPartialLine = 64 << 10

// logTail reads a growing log file incrementally from a cursor.
type logTail struct {
	path    string
	cursor  int64
	partial []byte
}

func newLogTail(path string) *logTail {
	return &logTail{path: path}
}

// ReadNew returns the complete lines appended since the last call. A file
// that shrank below the cursor is read again from the start.
func (t *logTail) ReadNew() ([]string, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}
	if info.Size() < t.cursor {
		t.cursor = 0
		t.partial = nil
	}
	if info.Size() == t.cursor {
		return nil, nil
	}

	if _, err := f.Seek(t.cursor, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek log: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(f, info.Size()-t.cursor))
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	t.cursor += int64(len(data))

	buf := append(t.partial, data...)
	last := bytes.LastIndexByte(buf, '\n')
	if last < 0 {
		t.keepPartial(buf)
		return nil, nil
	}
	t.keepPartial(buf[last+1:])

	var lines []string
	for _, line := range bytes.Split(buf[:last], []byte{'\n'}) {
		line = bytes.TrimRight(line, "\r")
		if len(line) > 0 {
			lines = append(lines, string(line))
		}
	}
	return lines, nil
}

func (t *logTail) keepPartial(b []byte) {
	if len(b) > maxPartialLine {
		b = b[len(b)-maxPartialLine:]
	}
	t.partial = append([]byte(nil), b...)
}

// Reset truncates the log and rewinds the cursor.
func (t *logTail) Reset() error {
	t.Rewind()
	if err := os.Truncate(t.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("truncate log: %w", err)
	}
	return nil
}

// Rewind forgets the read position without touching the file.
func (t *logTail) Rewind() {
	t.cursor = 0
	t.partial = nil
}

func (t *logTail) Cursor() int64 { return t.cursor }
