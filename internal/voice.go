package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CommandTemplate is an argv whose elements may contain {name}
// placeholders.
type CommandTemplate []string

// Expand substitutes vars into the template.
func (t CommandTemplate) Expand(vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(t))
	for i, a := range t {
		out[i] = r.Replace(a)
	}
	return out
}

func runTemplate(ctx context.Context, t CommandTemplate, vars map[string]string, timeout time.Duration) ([]byte, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("no command configured")
	}
	argv := t.Expand(vars)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(argv[0]), err, msg)
		}
		return nil, fmt.Errorf("%s: %w", filepath.Base(argv[0]), err)
	}
	return stdout.Bytes(), nil
}

var (
	_ Speaker     = (*CommandSpeaker)(nil)
	_ Recorder    = (*CommandRecorder)(nil)
	_ Transcriber = (*CommandTranscriber)(nil)
	_ Capturer    = (*CommandCapturer)(nil)
	_ Display     = (*CommandDisplay)(nil)
)

type CommandSpeaker struct {
	cmd     CommandTemplate
	timeout time.Duration
}

func NewCommandSpeaker(cmd []string, timeout time.Duration) *CommandSpeaker {
	return &CommandSpeaker{cmd: cmd, timeout: timeout}
}

// Speak says text; empty text is a no-op.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	_, err := runTemplate(ctx, s.cmd, map[string]string{"text": text}, s.timeout)
	return err
}

// CommandRecorder records a fixed length clip into dir.
type CommandRecorder struct {
	cmd     CommandTemplate
	dir     string
	seconds int
	now     func() time.Time
}

func NewCommandRecorder(cmd []string, dir string, seconds int) *CommandRecorder {
	if seconds <= 0 {
		seconds = 6
	}
	return &CommandRecorder{cmd: cmd, dir: dir, seconds: seconds, now: time.Now}
}

func (r *CommandRecorder) Record(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("create recordings directory: %w", err)
	}
	out := filepath.Join(r.dir, CaptureFilename("rec", r.now(), ".wav"))
	vars := map[string]string{"out": out, "seconds": strconv.Itoa(r.seconds)}
	if _, err := runTemplate(ctx, r.cmd, vars, 0); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("recording not written: %w", err)
	}
	return out, nil
}

// CommandTranscriber reads the transcript from the command's stdout.
type CommandTranscriber struct {
	cmd     CommandTemplate
	timeout time.Duration
}

func NewCommandTranscriber(cmd []string, timeout time.Duration) *CommandTranscriber {
	return &CommandTranscriber{cmd: cmd, timeout: timeout}
}

func (t *CommandTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	out, err := runTemplate(ctx, t.cmd, map[string]string{"in": audioPath}, t.timeout)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(string(out)), " "), nil
}

// CommandCapturer takes a photograph named so that its capture time can be
// recovered from the filename.
type CommandCapturer struct {
	cmd     CommandTemplate
	dir     string
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

func NewCommandCapturer(cmd []string, dir, prefix string, timeout time.Duration) *CommandCapturer {
	if prefix == "" {
		prefix = "img"
	}
	return &CommandCapturer{cmd: cmd, dir: dir, prefix: prefix, timeout: timeout, now: time.Now}
}

func (c *CommandCapturer) Capture(ctx context.Context) (string, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("create images directory: %w", err)
	}
	out := filepath.Join(c.dir, CaptureFilename(c.prefix, c.now(), ".jpg"))
	if _, err := runTemplate(ctx, c.cmd, map[string]string{"out": out}, c.timeout); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("photo not written: %w", err)
	}
	return out, nil
}

// CommandDisplay shows each image for delay by running the viewer with a
// deadline. Missing files are skipped.
type CommandDisplay struct {
	cmd CommandTemplate
}

func NewCommandDisplay(cmd []string) *CommandDisplay {
	return &CommandDisplay{cmd: cmd}
}

func (d *CommandDisplay) Show(ctx context.Context, paths []string, delay time.Duration) error {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_, err := runTemplate(ctx, d.cmd, map[string]string{"in": p}, delay)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !isKilledByDeadline(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// isKilledByDeadline recognizes a viewer terminated because its time ran out.
func isKilledByDeadline(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && !exitErr.Exited()
}
