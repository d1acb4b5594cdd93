// Package process spawns and supervises the Julia interpreter child
// process. The supervisor picks the pipe names, passes them to the child
// through the environment, and watches for unexpected exits. It never
// sends or parses protocol messages itself.
package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Environment variables the interpreter harness reads to find its pipes.
const (
	EnvToPipe   = "VESPER_TO_PIPE"
	EnvFromPipe = "VESPER_FROM_PIPE"
)

// stopGrace is how long Stop waits between SIGTERM and SIGKILL.
const stopGrace = 2 * time.Second

// ErrNotRunning is returned by PipeNames before a successful Start.
var ErrNotRunning = errors.New("process: interpreter not running")

// ExitHandler is invoked on an unexpected child exit with the exit code.
type ExitHandler func(code int)

// Supervisor owns the interpreter child process lifecycle.
type Supervisor struct {
	mu         sync.Mutex
	executable string
	args       []string

	cmd      *exec.Cmd
	toPipe   string
	fromPipe string
	stopping bool

	onExit ExitHandler
}

// New creates a supervisor for the given interpreter executable and
// harness arguments (typically the bootstrap script path).
func New(executable string, args ...string) *Supervisor {
	return &Supervisor{executable: executable, args: args}
}

// SetOnExit registers the handler called when the child exits without
// Stop having been requested. Must be set before Start.
func (s *Supervisor) SetOnExit(fn ExitHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// Start picks fresh pipe names, spawns the interpreter and begins
// watching it. Starting an already-running supervisor is an error.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("process: already running (pid %d)", s.cmd.Process.Pid)
	}

	session := uuid.New().String()[:8]
	s.toPipe = pipeName(session, "to")
	s.fromPipe = pipeName(session, "from")

	cmd := exec.Command(s.executable, s.args...)
	cmd.Env = append(os.Environ(),
		EnvToPipe+"="+s.toPipe,
		EnvFromPipe+"="+s.fromPipe,
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting interpreter: %w", err)
	}

	s.cmd = cmd
	s.stopping = false

	go s.watch(cmd)

	return nil
}

// watch waits for the child and reports unexpected exits.
func (s *Supervisor) watch(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	expected := s.stopping
	if s.cmd == cmd {
		s.cmd = nil
	}
	handler := s.onExit
	s.mu.Unlock()

	if expected || handler == nil {
		return
	}

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	handler(code)
}

// PipeNames returns the (to, from) pipe names of the current session.
func (s *Supervisor) PipeNames() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return "", "", ErrNotRunning
	}
	return s.toPipe, s.fromPipe, nil
}

// Running reports whether the child process is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Stop terminates the child. SIGTERM first, SIGKILL after a short grace.
// Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	s.stopping = true
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			s.mu.Lock()
			gone := s.cmd == nil
			s.mu.Unlock()
			if gone {
				close(done)
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-done
	}

	return nil
}

// Restart stops the child if needed, waits a brief grace period and
// starts a fresh session with new pipe names. Idempotent: restarting a
// stopped supervisor simply starts it.
func (s *Supervisor) Restart() error {
	if err := s.Stop(); err != nil {
		return fmt.Errorf("stopping for restart: %w", err)
	}
	time.Sleep(200 * time.Millisecond)
	return s.Start()
}
