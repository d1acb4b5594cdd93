package exec

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vesper-sci/vesper/internal/events"
	"github.com/vesper-sci/vesper/internal/hub"
	"github.com/vesper-sci/vesper/internal/protocol"
)

// startScriptedChild runs a fake interpreter: for every request it
// receives, it calls respond and writes whatever frames that returns.
func startScriptedChild(t *testing.T, respond func(req protocol.Request) []string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	toPath := filepath.Join(dir, "to.sock")
	fromPath := filepath.Join(dir, "from.sock")

	toLn, err := net.Listen("unix", toPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fromLn, err := net.Listen("unix", fromPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() {
		_ = toLn.Close()
		_ = fromLn.Close()
	})

	go func() {
		to, err := toLn.Accept()
		if err != nil {
			return
		}
		from, err := fromLn.Accept()
		if err != nil {
			return
		}
		defer to.Close()
		defer from.Close()

		scanner := bufio.NewScanner(to)
		for scanner.Scan() {
			var req protocol.Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			for _, frame := range respond(req) {
				if _, err := from.Write([]byte(frame + "\n")); err != nil {
					return
				}
			}
		}
	}()

	return toPath, fromPath
}

func newDispatcher(t *testing.T, respond func(req protocol.Request) []string) (*Dispatcher, *events.Subscription) {
	t.Helper()
	toPath, fromPath := startScriptedChild(t, respond)

	bus := events.NewBus()
	sub := bus.Subscribe(256)

	h := hub.New(bus, nil)
	if err := h.Connect(toPath, fromPath); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(h.Disconnect)

	return New(h, bus, nil), sub
}

func completeFrame(req protocol.Request, ok bool, value string) string {
	return fmt.Sprintf(`{"ExecutionComplete":{"id":%q,"kind":%q,"ok":%v,"value":%q}}`,
		req.ID, req.Kind, ok, value)
}

func TestExecuteREPLRoundTrip(t *testing.T) {
	d, _ := newDispatcher(t, func(req protocol.Request) []string {
		if req.Kind != protocol.KindREPL || req.Code != "1 + 2" {
			return []string{completeFrame(req, false, "unexpected request")}
		}
		return []string{completeFrame(req, true, "3")}
	})

	complete, err := d.ExecuteREPL(context.Background(), "1 + 2")
	if err != nil {
		t.Fatalf("ExecuteREPL failed: %v", err)
	}
	if !complete.OK || complete.Value != "3" {
		t.Errorf("unexpected result: %+v", complete)
	}
	if d.IsBusy() {
		t.Error("busy after completion")
	}
}

func TestExecuteFileWrapsWithChdir(t *testing.T) {
	var got protocol.Request
	d, _ := newDispatcher(t, func(req protocol.Request) []string {
		got = req
		return []string{completeFrame(req, true, "")}
	})

	if _, err := d.ExecuteFile(context.Background(), "/work/proj/script.jl"); err != nil {
		t.Fatalf("ExecuteFile failed: %v", err)
	}
	if got.Kind != protocol.KindFile || got.Path != "/work/proj/script.jl" {
		t.Errorf("unexpected request: %+v", got)
	}
	if !strings.Contains(got.Code, `cd("/work/proj")`) || !strings.Contains(got.Code, "include(") {
		t.Errorf("unexpected wrapping: %q", got.Code)
	}
}

func TestNotebookBatchTwoCells(t *testing.T) {
	d, sub := newDispatcher(t, func(req protocol.Request) []string {
		switch {
		case strings.Contains(req.Code, "x = 41"):
			return []string{completeFrame(req, true, "")}
		case strings.Contains(req.Code, "x + 1"):
			return []string{
				`{"StreamOutput":{"stream":"stdout","text":"42\n"}}`,
				completeFrame(req, true, "42"),
			}
		}
		return []string{completeFrame(req, false, "")}
	})

	cells := []Cell{
		{ID: "cell-0", Code: "x = 41"},
		{ID: "cell-1", Code: "x + 1"},
	}
	if err := d.ExecuteNotebookCellsBatch(context.Background(), cells, "/work/nb/notebook.jl"); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	var cellEvents []events.Event
	var sawComplete bool
	deadline := time.After(2 * time.Second)
	for !sawComplete {
		select {
		case ev := <-sub.Events():
			if ev.Category != events.CategoryNotebook {
				continue
			}
			switch ev.Name {
			case "cell-output":
				cellEvents = append(cellEvents, ev)
			case "complete":
				sawComplete = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for notebook events")
		}
	}

	if len(cellEvents) != 2 {
		t.Fatalf("expected 2 cell-output events, got %d", len(cellEvents))
	}

	// First cell: empty outputs.
	first := cellEvents[0].Payload["outputs"].([]Output)
	if len(first) != 0 {
		t.Errorf("cell A should have no outputs, got %+v", first)
	}

	// Second cell: stdout containing 42 and an execute_result.
	second := cellEvents[1].Payload["outputs"].([]Output)
	var sawStdout, sawResult bool
	for _, out := range second {
		if out.Type == "stream" && out.Stream == "stdout" && strings.Contains(out.Text, "42") {
			sawStdout = true
		}
		if out.Type == "execute_result" && out.Value == "42" {
			sawResult = true
		}
	}
	if !sawStdout || !sawResult {
		t.Errorf("cell B outputs missing 42: %+v", second)
	}

	if cellEvents[1].Payload["cell_index"] != 1 {
		t.Errorf("unexpected cell_index: %v", cellEvents[1].Payload["cell_index"])
	}
}

func TestContextCancellation(t *testing.T) {
	d, _ := newDispatcher(t, func(req protocol.Request) []string {
		return nil // never respond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := d.ExecuteREPL(ctx, "sleep(60)"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if d.IsBusy() {
		t.Error("busy after cancellation")
	}
}

func TestWrapCellCodeHoistsImports(t *testing.T) {
	code := "using Plots\nx = 1\nimport LinearAlgebra\ny = x + 1"
	wrapped := WrapCellCode(code, "/nb/dir/file.jl")

	lines := strings.Split(wrapped, "\n")
	// Imports first, then cd, then remaining code.
	if lines[0] != "using Plots" || lines[1] != "import LinearAlgebra" {
		t.Errorf("imports not hoisted: %q", wrapped)
	}
	cdIdx := -1
	for i, line := range lines {
		if strings.HasPrefix(line, `cd(`) {
			cdIdx = i
		}
	}
	if cdIdx != 2 {
		t.Errorf("cd not after imports: %q", wrapped)
	}
	if !strings.Contains(wrapped, "x = 1") || !strings.Contains(wrapped, "y = x + 1") {
		t.Errorf("body lost: %q", wrapped)
	}
}

func TestWrapCellCodeNoPath(t *testing.T) {
	wrapped := WrapCellCode("x = 1", "")
	if strings.Contains(wrapped, "cd(") {
		t.Errorf("unexpected cd without a path: %q", wrapped)
	}
}
