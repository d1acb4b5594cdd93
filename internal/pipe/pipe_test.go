package pipe

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/vesper-sci/vesper/internal/protocol"
)

// childHarness stands in for the interpreter side of the two pipes.
type childHarness struct {
	toPath   string
	fromPath string
	to       net.Conn // backend writes here
	from     net.Conn // backend reads from here

	// waitAccepted is closed once both halves are accepted.
	waitAccepted chan struct{}
}

func startChildHarness(t *testing.T) *childHarness {
	t.Helper()
	dir := t.TempDir()

	h := &childHarness{
		toPath:   filepath.Join(dir, "to.sock"),
		fromPath: filepath.Join(dir, "from.sock"),
	}

	toLn, err := net.Listen("unix", h.toPath)
	if err != nil {
		t.Fatalf("listen to.sock: %v", err)
	}
	fromLn, err := net.Listen("unix", h.fromPath)
	if err != nil {
		t.Fatalf("listen from.sock: %v", err)
	}

	accepted := make(chan struct{})
	go func() {
		h.to, _ = toLn.Accept()
		h.from, _ = fromLn.Accept()
		close(accepted)
	}()

	t.Cleanup(func() {
		_ = toLn.Close()
		_ = fromLn.Close()
		if h.to != nil {
			_ = h.to.Close()
		}
		if h.from != nil {
			_ = h.from.Close()
		}
	})

	h.waitAccepted = accepted
	return h
}

func (h *childHarness) sendLine(t *testing.T, line string) {
	t.Helper()
	if _, err := h.from.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("harness write: %v", err)
	}
}

func TestWriteMessageReachesChild(t *testing.T) {
	h := startChildHarness(t)

	conn, err := Dial(h.toPath, h.fromPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	<-h.waitAccepted

	req := protocol.Request{ID: "r1", Kind: protocol.KindREPL, Code: "1 + 2"}
	if err := conn.WriteMessage(req); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	reader := bufio.NewReader(h.to)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("harness read: %v", err)
	}

	var decoded protocol.Request
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decoding written frame: %v", err)
	}
	if decoded != req {
		t.Errorf("frame mismatch: %+v != %+v", decoded, req)
	}
}

func TestInboundMessageParsed(t *testing.T) {
	h := startChildHarness(t)

	conn, err := Dial(h.toPath, h.fromPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	<-h.waitAccepted

	h.sendLine(t, `{"ExecutionComplete":{"id":"r1","kind":"REPL","ok":true,"value":"3"}}`)

	select {
	case msg := <-conn.Messages():
		if msg.ExecutionComplete == nil || msg.ExecutionComplete.Value != "3" {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestMalformedFrameSkipped(t *testing.T) {
	h := startChildHarness(t)

	conn, err := Dial(h.toPath, h.fromPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	<-h.waitAccepted

	h.sendLine(t, `{garbage`)
	h.sendLine(t, `{"StreamOutput":{"stream":"stdout","text":"ok"}}`)

	select {
	case msg := <-conn.Messages():
		if msg.StreamOutput == nil || msg.StreamOutput.Text != "ok" {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message after malformed frame")
	}

	if conn.SkippedFrames() != 1 {
		t.Errorf("expected 1 skipped frame, got %d", conn.SkippedFrames())
	}
}

func TestReadEOFIsPipeBroken(t *testing.T) {
	h := startChildHarness(t)

	conn, err := Dial(h.toPath, h.fromPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	<-h.waitAccepted

	// Closing the child's write end delivers EOF to the reader.
	_ = h.from.Close()

	select {
	case err := <-conn.Fatal():
		if !errors.Is(err, ErrPipeBroken) {
			t.Errorf("expected ErrPipeBroken, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fatal error")
	}

	// Writes after the break fail fast.
	if err := conn.WriteMessage(protocol.Request{ID: "r2"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after break, got %v", err)
	}
}

func TestWriteAfterCloseReturnsNotConnected(t *testing.T) {
	h := startChildHarness(t)

	conn, err := Dial(h.toPath, h.fromPath)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	<-h.waitAccepted
	_ = conn.Close()

	if err := conn.WriteMessage(protocol.Request{ID: "r1"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
