// Package exec implements the execution dispatcher: typed entry points for
// REPL, file, notebook-cell and internal API execution, submitted to the
// communication hub with the wrapping each kind needs.
package exec

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vesper-sci/vesper/internal/events"
	"github.com/vesper-sci/vesper/internal/hub"
	"github.com/vesper-sci/vesper/internal/protocol"
)

// Cell is one notebook cell submitted to ExecuteNotebookCellsBatch.
type Cell struct {
	ID   string
	Code string
}

// Output is one entry of a cell's output list.
type Output struct {
	Type   string `json:"type"` // "stream" | "plot" | "execute_result"
	Stream string `json:"stream,omitempty"`
	Text   string `json:"text,omitempty"`
	Mime   string `json:"mime,omitempty"`
	Data   string `json:"data,omitempty"`
	Value  string `json:"value,omitempty"`
}

// HistoryRecorder persists completed executions. Nil recorders are fine.
type HistoryRecorder interface {
	Record(kind, code string, ok bool, value string)
}

// Dispatcher submits typed execution requests to the hub. Notebook batch
// runs are serialized: a second batch waits for the first.
type Dispatcher struct {
	hub     *hub.Hub
	bus     *events.Bus
	history HistoryRecorder

	notebookMu sync.Mutex
}

// New creates a dispatcher. history may be nil.
func New(h *hub.Hub, bus *events.Bus, history HistoryRecorder) *Dispatcher {
	return &Dispatcher{hub: h, bus: bus, history: history}
}

// ExecuteREPL runs one REPL input and waits for its completion.
func (d *Dispatcher) ExecuteREPL(ctx context.Context, code string) (*protocol.ExecutionComplete, error) {
	return d.run(ctx, protocol.Request{
		ID:   uuid.New().String(),
		Kind: protocol.KindREPL,
		Code: code,
	}, false)
}

// ExecuteFile runs a whole file. The working directory is switched to the
// file's directory before inclusion so relative paths inside it resolve.
func (d *Dispatcher) ExecuteFile(ctx context.Context, path string) (*protocol.ExecutionComplete, error) {
	dir := filepath.ToSlash(filepath.Dir(path))
	code := fmt.Sprintf("cd(%q)\ninclude(%q)", dir, filepath.ToSlash(path))
	return d.run(ctx, protocol.Request{
		ID:   uuid.New().String(),
		Kind: protocol.KindFile,
		Code: code,
		Path: path,
	}, false)
}

// ExecuteInternalAPI runs backend-internal code without flipping the busy
// indicator.
func (d *Dispatcher) ExecuteInternalAPI(ctx context.Context, code string) (*protocol.ExecutionComplete, error) {
	return d.run(ctx, protocol.Request{
		ID:   uuid.New().String(),
		Kind: protocol.KindInternalAPI,
		Code: code,
	}, true)
}

// ExecuteNotebookCell runs a single cell: activates its buffer, runs the
// wrapped code, drains the buffer and returns the outputs.
func (d *Dispatcher) ExecuteNotebookCell(ctx context.Context, cellID, code, path string) ([]Output, *protocol.ExecutionComplete, error) {
	d.hub.SetCell(cellID)
	defer d.hub.SetCell("")

	complete, err := d.run(ctx, protocol.Request{
		ID:   uuid.New().String(),
		Kind: protocol.KindNotebookCell,
		Code: WrapCellCode(code, path),
		Path: path,
	}, false)

	buffered := d.hub.DrainCellOutput(cellID)
	outputs := buildOutputs(buffered, complete)
	if err != nil {
		return outputs, nil, err
	}
	return outputs, complete, nil
}

// ExecuteNotebookCellsBatch runs cells serially: set cell id, run, drain,
// emit the per-cell output event, clear, repeat; finally emit
// notebook:complete. Batches never interleave.
func (d *Dispatcher) ExecuteNotebookCellsBatch(ctx context.Context, cells []Cell, path string) error {
	d.notebookMu.Lock()
	defer d.notebookMu.Unlock()

	for idx, cell := range cells {
		if strings.TrimSpace(cell.Code) == "" {
			continue
		}

		outputs, _, err := d.ExecuteNotebookCell(ctx, cell.ID, cell.Code, path)

		d.emit(events.CategoryNotebook, "cell-output", map[string]any{
			"cell_id":    cell.ID,
			"cell_index": idx,
			"outputs":    outputs,
		})

		if err != nil {
			d.emit(events.CategoryNotebook, "complete", map[string]any{})
			return fmt.Errorf("executing cell %s: %w", cell.ID, err)
		}
	}

	d.emit(events.CategoryNotebook, "complete", map[string]any{})
	return nil
}

// IsBusy reports whether a non-suppressed request is in flight.
func (d *Dispatcher) IsBusy() bool {
	return d.hub.IsBusy()
}

// run submits one request and waits for its single result.
func (d *Dispatcher) run(ctx context.Context, req protocol.Request, suppressBusy bool) (*protocol.ExecutionComplete, error) {
	ch, err := d.hub.Execute(req, suppressBusy)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if d.history != nil {
			d.history.Record(string(req.Kind), req.Code, res.Complete.OK, res.Complete.Value)
		}
		return res.Complete, nil
	case <-ctx.Done():
		d.hub.Cancel(req.ID)
		// The cancel result is delivered to the sink; drain it so the
		// channel's single send never blocks.
		<-ch
		return nil, ctx.Err()
	}
}

// WrapCellCode prepares a cell's code for execution. `using`/`import`
// lines run at top level so generated closures observe correct scoping;
// the remaining lines run after switching into the cell's directory.
func WrapCellCode(code, path string) string {
	var importLines, otherLines []string
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "using ") || strings.HasPrefix(trimmed, "import ") {
			importLines = append(importLines, line)
		} else {
			otherLines = append(otherLines, line)
		}
	}

	importCode := strings.Join(importLines, "\n")
	otherCode := strings.TrimRight(strings.Join(otherLines, "\n"), "\n")

	var b strings.Builder
	if importCode != "" {
		b.WriteString(importCode)
		b.WriteString("\n")
	}
	if path != "" {
		dir := filepath.ToSlash(filepath.Dir(path))
		fmt.Fprintf(&b, "cd(%q)\n", dir)
	}
	b.WriteString(otherCode)
	return b.String()
}

// buildOutputs flattens a drained cell buffer into the UI output list.
// Plot payloads are normalized; discarded payloads are dropped.
func buildOutputs(buf *hub.CellOutput, complete *protocol.ExecutionComplete) []Output {
	outputs := []Output{}

	if text := strings.Join(buf.Stdout, ""); text != "" {
		outputs = append(outputs, Output{Type: "stream", Stream: "stdout", Text: text})
	}
	if text := strings.Join(buf.Stderr, ""); text != "" {
		outputs = append(outputs, Output{Type: "stream", Stream: "stderr", Text: text})
	}
	for _, plot := range buf.Plots {
		data, keep := NormalizePlotPayload(plot.Mime, plot.Data)
		if !keep {
			continue
		}
		outputs = append(outputs, Output{Type: "plot", Mime: plot.Mime, Data: data})
	}
	if complete != nil && complete.OK && complete.Value != "" {
		outputs = append(outputs, Output{Type: "execute_result", Value: complete.Value})
	}

	return outputs
}

func (d *Dispatcher) emit(category, name string, payload map[string]any) {
	if d.bus != nil {
		_ = d.bus.Emit(category, name, payload)
	}
}
