// Package log provides structured event logging for the backend: one
// JSON object per line in .vesper/log.jsonl, with size-based rotation so
// long-lived sessions cannot grow the file without bound.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventBackendStarted     = "backend_started"
	EventStartupPhase       = "startup_phase"
	EventStartupFailed      = "startup_failed"
	EventInterpreterStarted = "interpreter_started"
	EventInterpreterExited  = "interpreter_exited"
	EventPipeConnected      = "pipe_connected"
	EventPipeBroken         = "pipe_broken"
	EventExecutionStarted   = "execution_started"
	EventExecutionComplete  = "execution_complete"
	EventPipelineStarted    = "pipeline_started"
	EventPipelineComplete   = "pipeline_complete"
	EventPipelineSkipped    = "pipeline_skipped"
	EventCacheHit           = "cache_hit"
	EventCacheRebuild       = "cache_rebuild"
)

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time       time.Time              `json:"time"`
	Event      string                 `json:"event"`
	RequestID  string                 `json:"request_id,omitempty"`
	Kind       string                 `json:"kind,omitempty"`
	Phase      string                 `json:"phase,omitempty"`
	Pipeline   string                 `json:"pipeline,omitempty"`
	Package    string                 `json:"package,omitempty"`
	Path       string                 `json:"path,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ExitCode   int                    `json:"exit_code,omitempty"`
	Files      int                    `json:"files,omitempty"`
	Symbols    int                    `json:"symbols,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// defaultMaxSize rotates the log once it crosses 4 MiB. Indexing a large
// depot emits one event per skipped file, so unbounded growth is a real
// possibility.
const defaultMaxSize = 4 << 20

// rotatedSuffix names the single retained previous generation.
const rotatedSuffix = ".1"

// Logger writes append-only JSONL events, rotating log.jsonl to
// log.jsonl.1 when it grows past maxSize. One generation is retained.
type Logger struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	size    int64
	maxSize int64
}

// NewLogger creates a Logger writing to .vesper/log.jsonl inside dir,
// creating the .vesper/ directory as needed. An existing log file is
// appended to, never truncated. Call Close when done.
func NewLogger(dir string) (*Logger, error) {
	return newLoggerWithMaxSize(dir, defaultMaxSize)
}

func newLoggerWithMaxSize(dir string, maxSize int64) (*Logger, error) {
	vesperDir := filepath.Join(dir, ".vesper")
	if err := os.MkdirAll(vesperDir, 0755); err != nil {
		return nil, fmt.Errorf("create .vesper directory: %w", err)
	}

	l := &Logger{
		path:    filepath.Join(vesperDir, "log.jsonl"),
		maxSize: maxSize,
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// open opens the current log file for appending and records its size.
// Caller holds the mutex (or is the constructor).
func (l *Logger) open() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	l.f = f
	l.size = info.Size()
	return nil
}

// Append writes a single LogEvent as one JSON line, rotating first if
// the line would push the file past the size limit. A zero event.Time is
// set to time.Now().UTC(). Thread-safe.
func (l *Logger) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}
	line := append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return errors.New("logger closed")
	}

	if l.size+int64(len(line)) > l.maxSize && l.size > 0 {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.f.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("write log event: %w", err)
	}
	return nil
}

// rotate moves the current file to the .1 generation and starts a fresh
// one. Any previous .1 is replaced. Caller holds the mutex.
func (l *Logger) rotate() error {
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("close log for rotation: %w", err)
	}
	l.f = nil

	if err := os.Rename(l.path, l.path+rotatedSuffix); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return l.open()
}

// Close flushes and closes the log file. Appends after Close fail.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadAll returns every event still on disk: the rotated generation
// first, then the current file, in write order. A missing file yields an
// empty slice, not an error.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	events := []LogEvent{}
	for _, path := range []string{l.path + rotatedSuffix, l.path} {
		chunk, err := readEvents(path)
		if err != nil {
			return nil, err
		}
		events = append(events, chunk...)
	}
	return events, nil
}

func readEvents(path string) ([]LogEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", filepath.Base(path), lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return events, nil
}
