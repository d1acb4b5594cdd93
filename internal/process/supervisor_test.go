package process

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStartAndStop(t *testing.T) {
	s := New("sleep", "30")

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.Running() {
		t.Fatal("expected Running after Start")
	}

	to, from, err := s.PipeNames()
	if err != nil {
		t.Fatalf("PipeNames failed: %v", err)
	}
	if to == "" || from == "" || to == from {
		t.Errorf("bad pipe names: %q, %q", to, from)
	}
	if !strings.Contains(to, "vesper-") {
		t.Errorf("pipe name missing session prefix: %q", to)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.Running() {
		t.Error("expected not Running after Stop")
	}
	if _, _, err := s.PipeNames(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestStartTwiceFails(t *testing.T) {
	s := New("sleep", "30")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); err == nil {
		t.Error("expected error starting a running supervisor")
	}
}

func TestUnexpectedExitReported(t *testing.T) {
	s := New("false")

	exited := make(chan int, 1)
	s.SetOnExit(func(code int) { exited <- code })

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case code := <-exited:
		if code == 0 {
			t.Errorf("expected nonzero exit code, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit handler")
	}
}

func TestStopSuppressesExitHandler(t *testing.T) {
	s := New("sleep", "30")

	exited := make(chan int, 1)
	s.SetOnExit(func(code int) { exited <- code })

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case code := <-exited:
		t.Errorf("exit handler fired on requested stop (code %d)", code)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRestartPicksFreshPipeNames(t *testing.T) {
	s := New("sleep", "30")
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	to1, _, _ := s.PipeNames()

	if err := s.Restart(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	to2, _, err := s.PipeNames()
	if err != nil {
		t.Fatalf("PipeNames after restart: %v", err)
	}
	if to1 == to2 {
		t.Error("expected fresh pipe names after restart")
	}
}

func TestRestartFromStopped(t *testing.T) {
	s := New("sleep", "30")
	if err := s.Restart(); err != nil {
		t.Fatalf("Restart from stopped failed: %v", err)
	}
	defer s.Stop()
	if !s.Running() {
		t.Error("expected Running after restart from stopped")
	}
}
