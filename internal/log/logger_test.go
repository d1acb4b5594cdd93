package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	if err := logger.Append(LogEvent{Event: EventBackendStarted, Path: dir}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventExecutionComplete, RequestID: "r1", Kind: "REPL"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Event != EventBackendStarted {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].RequestID != "r1" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	if events[0].Time.IsZero() {
		t.Error("timestamp not auto-populated")
	}
}

func TestReadAllMissingFile(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestAppendDoesNotTruncate(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventPipeConnected}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A second logger on the same directory appends to the same file.
	second, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer second.Close()
	if err := second.Append(LogEvent{Event: EventPipeBroken}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := second.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events across loggers, got %d", len(events))
	}

	if _, err := os.Stat(filepath.Join(dir, ".vesper", "log.jsonl")); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestRotationKeepsOneGeneration(t *testing.T) {
	dir := t.TempDir()

	// Small limit so a handful of events forces several rotations.
	logger, err := newLoggerWithMaxSize(dir, 256)
	if err != nil {
		t.Fatalf("newLoggerWithMaxSize failed: %v", err)
	}
	defer logger.Close()

	padding := strings.Repeat("x", 100)
	for i := 0; i < 10; i++ {
		if err := logger.Append(LogEvent{Event: EventPipelineSkipped, Reason: padding}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	current := filepath.Join(dir, ".vesper", "log.jsonl")
	rotated := current + rotatedSuffix

	info, err := os.Stat(current)
	if err != nil {
		t.Fatalf("current log missing: %v", err)
	}
	if info.Size() > 256+256 {
		t.Errorf("current log exceeds the rotation bound: %d bytes", info.Size())
	}
	if _, err := os.Stat(rotated); err != nil {
		t.Errorf("rotated generation missing: %v", err)
	}

	// ReadAll stitches the rotated generation and the current file.
	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) < 2 {
		t.Errorf("expected events across both generations, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Event != EventPipelineSkipped {
			t.Errorf("unexpected event after rotation: %+v", ev)
		}
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventPipeBroken}); err == nil {
		t.Error("expected error appending to a closed logger")
	}
}
