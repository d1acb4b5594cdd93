// Package server exposes the backend's UI-facing operations over a
// localhost HTTP control API: execution, interpreter lifecycle, language
// server queries and the event stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.lsp.dev/protocol"

	"github.com/vesper-sci/vesper/internal/events"
	wire "github.com/vesper-sci/vesper/internal/protocol"
	"github.com/vesper-sci/vesper/internal/exec"
	"github.com/vesper-sci/vesper/internal/history"
	"github.com/vesper-sci/vesper/internal/hub"
	"github.com/vesper-sci/vesper/internal/lsp"
	"github.com/vesper-sci/vesper/internal/startup"
)

// Deps are the components the server fronts. History and ChangeProject
// may be nil.
type Deps struct {
	Dispatcher   *exec.Dispatcher
	Hub          *hub.Hub
	Orchestrator *startup.Orchestrator
	Lsp          *lsp.Service
	History      *history.Store
	Bus          *events.Bus

	// ChangeProject switches the backend to a new project directory.
	ChangeProject func(path string) error
}

// Server is the control API server bound to localhost.
type Server struct {
	deps     Deps
	listener net.Listener
	server   *http.Server
	sub      *events.Subscription
}

// NewServer creates a server bound to 127.0.0.1:port (port 0 picks a
// random free port).
func NewServer(deps Deps, port int) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("server: binding listener: %w", err)
	}

	s := &Server{
		deps:     deps,
		listener: ln,
	}
	if deps.Bus != nil {
		s.sub = deps.Bus.Subscribe(events.DefaultQueueSize)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/execute_code", s.handleExecuteCode)
	mux.HandleFunc("/execute_file", s.handleExecuteFile)
	mux.HandleFunc("/execute_notebook_cell", s.handleExecuteNotebookCell)
	mux.HandleFunc("/execute_notebook_cells_batch", s.handleExecuteBatch)
	mux.HandleFunc("/restart_interpreter", s.handleRestart)
	mux.HandleFunc("/is_backend_busy", s.handleIsBusy)
	mux.HandleFunc("/get_startup_phase", s.handleStartupPhase)
	mux.HandleFunc("/change_project_directory", s.handleChangeProject)
	mux.HandleFunc("/lsp/hover", s.handleHover)
	mux.HandleFunc("/lsp/completion", s.handleCompletion)
	mux.HandleFunc("/lsp/definition", s.handleDefinition)
	mux.HandleFunc("/lsp/references", s.handleReferences)
	mux.HandleFunc("/lsp/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/lsp/did_open", s.handleDidOpen)
	mux.HandleFunc("/lsp/did_change", s.handleDidChange)
	mux.HandleFunc("/history/recent", s.handleHistory)
	mux.HandleFunc("/events", s.handleEvents)

	s.server = &http.Server{Handler: mux}
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. Call in a goroutine.
func (s *Server) Start() error {
	return s.server.Serve(s.listener)
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.sub != nil {
		s.sub.Close()
	}
	return s.server.Close()
}

// --- Request/response shapes ---

type executeCodeRequest struct {
	Code string `json:"code"`
}

type executeFileRequest struct {
	Path string `json:"path"`
}

type notebookCellRequest struct {
	CellID string `json:"cell_id"`
	Code   string `json:"code"`
	Path   string `json:"path,omitempty"`
}

type batchRequest struct {
	Cells []struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	} `json:"cells"`
	Path string `json:"path,omitempty"`
}

type executeResponse struct {
	OK    bool   `json:"ok"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

type positionRequest struct {
	URI                string `json:"uri"`
	Line               uint32 `json:"line"`
	Character          uint32 `json:"character"`
	IncludeDeclaration bool   `json:"include_declaration,omitempty"`
}

type documentRequest struct {
	URI     string `json:"uri"`
	Text    string `json:"text"`
	Version int32  `json:"version"`
}

type changeProjectRequest struct {
	Path string `json:"path"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleExecuteCode(w http.ResponseWriter, r *http.Request) {
	var req executeCodeRequest
	if !readJSON(w, r, &req) {
		return
	}

	complete, err := s.deps.Dispatcher.ExecuteREPL(r.Context(), req.Code)
	writeExecuteResult(w, complete, err)
}

func (s *Server) handleExecuteFile(w http.ResponseWriter, r *http.Request) {
	var req executeFileRequest
	if !readJSON(w, r, &req) {
		return
	}

	complete, err := s.deps.Dispatcher.ExecuteFile(r.Context(), req.Path)
	writeExecuteResult(w, complete, err)
}

func (s *Server) handleExecuteNotebookCell(w http.ResponseWriter, r *http.Request) {
	var req notebookCellRequest
	if !readJSON(w, r, &req) {
		return
	}

	outputs, complete, err := s.deps.Dispatcher.ExecuteNotebookCell(r.Context(), req.CellID, req.Code, req.Path)
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": err.Error(), "outputs": outputs})
		return
	}
	writeJSON(w, map[string]any{"ok": complete.OK, "value": complete.Value, "outputs": outputs})
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !readJSON(w, r, &req) {
		return
	}

	cells := make([]exec.Cell, 0, len(req.Cells))
	for _, c := range req.Cells {
		cells = append(cells, exec.Cell{ID: c.ID, Code: c.Code})
	}

	// Cell results are streamed as notebook events; the response only
	// acknowledges the batch.
	if err := s.deps.Dispatcher.ExecuteNotebookCellsBatch(r.Context(), cells, req.Path); err != nil {
		writeJSON(w, executeResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, executeResponse{OK: true})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.deps.Orchestrator.Post(startup.Event{Name: startup.EventRestartInterpreter})
	writeJSON(w, map[string]string{"status": "restarting"})
}

func (s *Server) handleIsBusy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]bool{"busy": s.deps.Hub.IsBusy()})
}

func (s *Server) handleStartupPhase(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{
		"phase":  string(s.deps.Orchestrator.Phase()),
		"reason": s.deps.Orchestrator.FailureReason(),
	})
}

func (s *Server) handleChangeProject(w http.ResponseWriter, r *http.Request) {
	var req changeProjectRequest
	if !readJSON(w, r, &req) {
		return
	}
	if s.deps.ChangeProject == nil {
		httpError(w, http.StatusNotImplemented, "project switching not available")
		return
	}
	if err := s.deps.ChangeProject(req.Path); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !readJSON(w, r, &req) {
		return
	}
	hover := s.deps.Lsp.Hover(req.URI, protocol.Position{Line: req.Line, Character: req.Character})
	writeJSON(w, map[string]any{"hover": hover})
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !readJSON(w, r, &req) {
		return
	}
	items := s.deps.Lsp.Completion(req.URI, protocol.Position{Line: req.Line, Character: req.Character})
	writeJSON(w, map[string]any{"items": items})
}

func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !readJSON(w, r, &req) {
		return
	}
	locations := s.deps.Lsp.Definition(req.URI, protocol.Position{Line: req.Line, Character: req.Character})
	writeJSON(w, map[string]any{"locations": locations})
}

func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !readJSON(w, r, &req) {
		return
	}
	locations := s.deps.Lsp.References(req.URI,
		protocol.Position{Line: req.Line, Character: req.Character}, req.IncludeDeclaration)
	writeJSON(w, map[string]any{"locations": locations})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !readJSON(w, r, &req) {
		return
	}
	writeJSON(w, map[string]any{"diagnostics": s.deps.Lsp.Diagnostics(req.URI)})
}

func (s *Server) handleDidOpen(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.deps.Lsp.DidOpen(req.URI, req.Text, req.Version); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDidChange(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := s.deps.Lsp.DidChange(req.URI, req.Text, req.Version); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, map[string]any{"entries": []history.Entry{}})
		return
	}
	entries, err := s.deps.History.Recent(50)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// handleEvents drains the subscriber queue, waiting briefly for the first
// event so the UI can long-poll.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.sub == nil {
		writeJSON(w, map[string]any{"events": []events.Event{}})
		return
	}

	var drained []events.Event
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	select {
	case ev := <-s.sub.Events():
		drained = append(drained, ev)
	case <-ctx.Done():
		writeJSON(w, map[string]any{"events": drained})
		return
	}

	for {
		select {
		case ev := <-s.sub.Events():
			drained = append(drained, ev)
		default:
			writeJSON(w, map[string]any{"events": drained})
			return
		}
	}
}

// --- Helpers ---

func writeExecuteResult(w http.ResponseWriter, complete *wire.ExecutionComplete, err error) {
	if err != nil {
		writeJSON(w, executeResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, executeResponse{OK: complete.OK, Value: complete.Value})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "POST required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func httpError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
