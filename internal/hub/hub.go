// Package hub implements the communication hub that multiplexes execution
// requests onto the interpreter pipes and correlates streamed responses
// back to waiting callers.
package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vesper-sci/vesper/internal/events"
	"github.com/vesper-sci/vesper/internal/pipe"
	"github.com/vesper-sci/vesper/internal/protocol"
)

// Errors surfaced by the hub.
var (
	// ErrNotConnected is returned by Execute while disconnected.
	ErrNotConnected = errors.New("hub: not connected to interpreter")

	// ErrCancelled is delivered to a sink whose request was cancelled.
	ErrCancelled = errors.New("hub: request cancelled")
)

// Result is delivered exactly once per request: either the matching
// ExecutionComplete or a terminal error (pipe break, cancellation).
type Result struct {
	Complete *protocol.ExecutionComplete
	Err      error
}

// Plot is one buffered plot payload of a notebook cell.
type Plot struct {
	Mime string
	Data string
}

// CellOutput is the per-cell output buffer. It exists only while a
// notebook cell is executing and is drained atomically afterwards.
type CellOutput struct {
	Stdout []string
	Stderr []string
	Plots  []Plot
}

// PlotSink receives a copy of every inbound plot payload. The plot
// subsystem (HTTP server, gallery) lives outside the core.
type PlotSink interface {
	HandlePlotData(plot protocol.PlotData)
}

// pendingEntry is a one-shot completion sink.
type pendingEntry struct {
	ch       chan Result
	suppress bool
}

// Hub owns the pending-request table and the per-cell buffer. All state
// mutation happens under one mutex; pipe I/O runs on the transport's own
// goroutines.
type Hub struct {
	mu       sync.Mutex
	conn     *pipe.Conn
	pending  map[string]*pendingEntry
	cellID   string
	cellBuf  *CellOutput
	plotSink PlotSink

	bus *events.Bus
}

// New creates a disconnected hub. plotSink may be nil.
func New(bus *events.Bus, plotSink PlotSink) *Hub {
	return &Hub{
		pending:  make(map[string]*pendingEntry),
		plotSink: plotSink,
		bus:      bus,
	}
}

// Connect dials both pipe halves and starts the dispatch loop. The hub
// becomes Connected once both halves are usable; on failure it stays
// Disconnected.
func (h *Hub) Connect(toPipe, fromPipe string) error {
	conn, err := pipe.Dial(toPipe, fromPipe)
	if err != nil {
		return fmt.Errorf("connecting to interpreter pipes: %w", err)
	}

	h.mu.Lock()
	if h.conn != nil {
		_ = h.conn.Close()
	}
	h.conn = conn
	h.mu.Unlock()

	h.emit(events.CategoryCommunication, "connected", map[string]any{"status": "connected"})

	go h.dispatch(conn)
	return nil
}

// Disconnect closes the transport and releases all pending sinks with
// pipe.ErrPipeBroken.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	h.failAllPending(pipe.ErrPipeBroken)
}

// Connected reports whether the transport is up.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// Execute registers the request id, writes the request frame, and returns
// a sink fulfilled by the first matching ExecutionComplete or failed with
// a terminal error. suppressBusy hides this request from IsBusy.
func (h *Hub) Execute(req protocol.Request, suppressBusy bool) (<-chan Result, error) {
	h.mu.Lock()
	conn := h.conn
	if conn == nil {
		h.mu.Unlock()
		return nil, ErrNotConnected
	}
	if _, exists := h.pending[req.ID]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("hub: duplicate request id %q", req.ID)
	}
	entry := &pendingEntry{ch: make(chan Result, 1), suppress: suppressBusy}
	h.pending[req.ID] = entry
	h.mu.Unlock()

	if err := conn.WriteMessage(req); err != nil {
		h.removePending(req.ID)
		return nil, fmt.Errorf("writing request: %w", err)
	}

	if !suppressBusy {
		h.emit(events.CategoryCommunication, "backend:busy", map[string]any{"request_id": req.ID})
	}

	return entry.ch, nil
}

// Cancel releases the pending request with ErrCancelled. Unknown ids are
// ignored.
func (h *Hub) Cancel(id string) {
	if entry := h.removePending(id); entry != nil {
		entry.ch <- Result{Err: ErrCancelled}
	}
}

// IsBusy reports whether any non-suppressed request is pending.
func (h *Hub) IsBusy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, entry := range h.pending {
		if !entry.suppress {
			return true
		}
	}
	return false
}

// SetCell activates buffering for the given notebook cell id. An empty id
// clears the active cell and its buffer. At most one cell is active.
func (h *Hub) SetCell(cellID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cellID = cellID
	if cellID == "" {
		h.cellBuf = nil
	} else {
		h.cellBuf = &CellOutput{}
	}
}

// DrainCellOutput atomically takes the buffer for the given cell. Returns
// an empty buffer when the cell is not the active one.
func (h *Hub) DrainCellOutput(cellID string) *CellOutput {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cellID != cellID || h.cellBuf == nil {
		return &CellOutput{}
	}
	out := h.cellBuf
	h.cellBuf = &CellOutput{}
	return out
}

// Reset cancels all pending requests, disposes the cell buffer and clears
// the busy state. Used by interpreter restart.
func (h *Hub) Reset() {
	h.mu.Lock()
	h.cellID = ""
	h.cellBuf = nil
	h.mu.Unlock()

	h.failAllPending(ErrCancelled)
}

// dispatch consumes inbound messages until the transport dies.
func (h *Hub) dispatch(conn *pipe.Conn) {
	for msg := range conn.Messages() {
		h.handleMessage(msg)
	}

	// Reader closed: surface the fatal error exactly once.
	var fatal error
	select {
	case fatal = <-conn.Fatal():
	default:
		fatal = pipe.ErrPipeBroken
	}

	h.mu.Lock()
	current := h.conn == conn
	if current {
		h.conn = nil
	}
	h.mu.Unlock()

	if current {
		h.failAllPending(fatal)
		h.emit(events.CategorySystem, "error", map[string]any{
			"message": "The connection to the interpreter has been lost.",
		})
		h.emit(events.CategoryCommunication, "disconnected", map[string]any{"status": "disconnected"})
	}
}

// handleMessage routes one inbound message per §4.3.
func (h *Hub) handleMessage(msg *protocol.Message) {
	switch {
	case msg.ExecutionComplete != nil:
		ec := msg.ExecutionComplete
		entry := h.removePending(ec.ID)
		if entry != nil {
			entry.ch <- Result{Complete: ec}
			if !entry.suppress {
				h.emit(events.CategoryCommunication, "backend:done", map[string]any{"request_id": ec.ID})
			}
		}

	case msg.StreamOutput != nil:
		so := msg.StreamOutput
		h.emit(events.CategoryCommunication, "stream:output", map[string]any{
			"stream": so.Stream,
			"text":   so.Text,
		})
		h.mu.Lock()
		if h.cellBuf != nil {
			if so.Stream == "stderr" {
				h.cellBuf.Stderr = append(h.cellBuf.Stderr, so.Text)
			} else {
				h.cellBuf.Stdout = append(h.cellBuf.Stdout, so.Text)
			}
		}
		h.mu.Unlock()

	case msg.PlotData != nil:
		pd := msg.PlotData
		h.emit(events.CategoryPlot, "added", map[string]any{
			"plot_id": pd.ID,
			"mime":    pd.Mime,
		})
		if h.plotSink != nil {
			h.plotSink.HandlePlotData(*pd)
		}
		h.mu.Lock()
		if h.cellBuf != nil {
			h.cellBuf.Plots = append(h.cellBuf.Plots, Plot{Mime: pd.Mime, Data: pd.Data})
		}
		h.mu.Unlock()

	case msg.ReadyForInput != nil:
		h.emit(events.CategoryCommunication, "ready", nil)

	case msg.Error != nil:
		em := msg.Error
		if em.ID != "" {
			if entry := h.removePending(em.ID); entry != nil {
				entry.ch <- Result{Err: fmt.Errorf("interpreter error: %s", em.Message)}
			}
			return
		}
		h.emit(events.CategorySystem, "error", map[string]any{"message": em.Message})
	}
}

// removePending removes and returns the pending entry for id, or nil.
func (h *Hub) removePending(id string) *pendingEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := h.pending[id]
	delete(h.pending, id)
	return entry
}

// failAllPending releases every pending sink with err.
func (h *Hub) failAllPending(err error) {
	h.mu.Lock()
	pending := h.pending
	h.pending = make(map[string]*pendingEntry)
	h.mu.Unlock()

	for _, entry := range pending {
		entry.ch <- Result{Err: err}
	}
}

func (h *Hub) emit(category, name string, payload map[string]any) {
	if h.bus != nil {
		_ = h.bus.Emit(category, name, payload)
	}
}
