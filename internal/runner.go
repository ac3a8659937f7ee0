package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

type RunnerState int

const (
	RunnerStopped RunnerState = iota
	RunnerStarting
	RunnerRunning
)

func (s RunnerState) String() string {
	switch s {
	case RunnerStopped:
		return "stopped"
	case RunnerStarting:
		return "starting"
	case RunnerRunning:
		return "running"
	default:
		return "unknown"
	}
}

const modelPlaceholder = "{model}"

// Runner owns the classifier process. Its stdout and stderr go to one
// append-only log file that the wake source tails.
type Runner struct {
	cfg     RunnerConfig
	logPath string
	log     zerolog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
	state   RunnerState
	model   string
}

func NewRunner(cfg RunnerConfig, logPath string, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, logPath: logPath, log: log}
}

// Start launches the classifier with model, or the configured model when
// empty. A live runner on the same model is left alone; one on another
// model is stopped first.
func (r *Runner) Start(ctx context.Context, model string) error {
	if model == "" {
		model = r.cfg.Model
	}

	r.mu.Lock()
	if r.state != RunnerStopped && r.aliveLocked() && r.model == model {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.Stop(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	logFile, err := os.OpenFile(r.logPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open runner log: %w", err)
	}

	args := make([]string, len(r.cfg.Args))
	for i, a := range r.cfg.Args {
		args[i] = strings.ReplaceAll(a, modelPlaceholder, model)
	}

	cmd := exec.Command(r.cfg.Command, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// Own process group, so children holding the microphone die with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("start runner: %w", err)
	}

	done := make(chan struct{})
	r.cmd = cmd
	r.done = done
	r.exitErr = nil
	r.model = model
	r.state = RunnerStarting

	go func() {
		err := cmd.Wait()
		logFile.Close()
		r.mu.Lock()
		if r.done == done {
			r.exitErr = err
		}
		r.mu.Unlock()
		close(done)
	}()

	r.log.Info().Int("pid", cmd.Process.Pid).Str("model", model).Msg("runner started")

	if r.cfg.Settle > 0 {
		timer := time.NewTimer(r.cfg.Settle)
		defer timer.Stop()
		r.mu.Unlock()
		select {
		case <-ctx.Done():
		case <-done:
		case <-timer.C:
		}
		r.mu.Lock()
	}

	if err := ctx.Err(); err != nil {
		r.mu.Unlock()
		stopErr := r.Stop()
		r.mu.Lock()
		return errors.Join(err, stopErr)
	}

	if !r.aliveLocked() {
		exitErr := r.exitErr
		r.resetLocked()
		return fmt.Errorf("runner exited during startup: %v", exitErr)
	}

	r.state = RunnerRunning
	return nil
}

// Alive reports whether the process is still running. It never blocks.
func (r *Runner) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aliveLocked()
}

func (r *Runner) aliveLocked() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Stop terminates the runner, killing it after the grace period, then waits
// StopSettle for the audio device to be released. Stopping a stopped runner
// is a no-op.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cmd, done := r.cmd, r.done
	if cmd == nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	pid := cmd.Process.Pid
	select {
	case <-done:
	default:
		if err := signalGroup(pid, syscall.SIGTERM); err != nil {
			r.log.Debug().Err(err).Int("pid", pid).Msg("sigterm failed")
		}

		grace := r.cfg.GracePeriod
		if grace <= 0 {
			grace = 5 * time.Second
		}
		timer := time.NewTimer(grace)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			r.log.Warn().Int("pid", pid).Dur("grace", grace).Msg("runner ignored sigterm, killing")
			if err := signalGroup(pid, syscall.SIGKILL); err != nil {
				return fmt.Errorf("kill runner: %w", err)
			}
			<-done
		}
	}

	r.mu.Lock()
	if r.cmd == cmd {
		r.resetLocked()
	}
	r.mu.Unlock()

	r.log.Info().Int("pid", pid).Msg("runner stopped")

	if r.cfg.StopSettle > 0 {
		time.Sleep(r.cfg.StopSettle)
	}
	return nil
}

func (r *Runner) resetLocked() {
	r.cmd = nil
	r.done = nil
	r.state = RunnerStopped
	r.model = ""
}

func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return syscall.Kill(pid, sig)
	}
	return nil
}

func (r *Runner) State() RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RunnerStopped && !r.aliveLocked() {
		return RunnerStopped
	}
	return r.state
}

// Model returns the model of the live runner, or "" when stopped.
func (r *Runner) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

func (r *Runner) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}
