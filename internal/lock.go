package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const lockRetryInterval = 50 * time.Millisecond

// FileLock is an exclusive lock file shared by every memassist process
// writing to the same data directory.
type FileLock struct {
	path string
	held bool
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire blocks until the lock is held or ctx is done. A lock left behind
// by a process that no longer exists is taken over.
func (l *FileLock) Acquire(ctx context.Context) error {
	if l.held {
		return nil
	}

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			l.held = true
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrLocked, l.path, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *FileLock) tryAcquire() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err == nil {
		_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
		cerr := f.Close()
		if werr != nil || cerr != nil {
			os.Remove(l.path)
			return false, fmt.Errorf("write lock file: %w", errors.Join(werr, cerr))
		}
		return true, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return false, fmt.Errorf("create lock file: %w", err)
	}

	if l.stale() {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return false, nil
}

func (l *FileLock) stale() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// Written by a process killed between create and write.
		info, serr := os.Stat(l.path)
		return serr == nil && time.Since(info.ModTime()) > time.Second
	}
	if pid == os.Getpid() {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	return errors.Is(proc.Signal(syscall.Signal(0)), os.ErrProcessDone)
}

func (l *FileLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the lock at path.
func WithLock(ctx context.Context, path string, fn func() error) error {
	lock := NewFileLock(path)
	if err := lock.Acquire(ctx); err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}
