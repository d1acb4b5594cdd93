// serve.go wires the whole backend together and runs it: supervisor,
// pipes, hub, dispatcher, orchestrator, language server and the control
// API.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesper-sci/vesper/internal/config"
	"github.com/vesper-sci/vesper/internal/events"
	vexec "github.com/vesper-sci/vesper/internal/exec"
	"github.com/vesper-sci/vesper/internal/history"
	"github.com/vesper-sci/vesper/internal/hub"
	vlog "github.com/vesper-sci/vesper/internal/log"
	"github.com/vesper-sci/vesper/internal/lsp"
	"github.com/vesper-sci/vesper/internal/process"
	"github.com/vesper-sci/vesper/internal/server"
	"github.com/vesper-sci/vesper/internal/startup"
)

var serveProjectDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend and expose the localhost control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := serveProjectDir
		if dir == "" {
			var err error
			dir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
		}
		return runServe(dir)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveProjectDir, "project", "p", "", "project directory (default: cwd)")
}

// backend groups everything serve wires together.
type backend struct {
	cfg    *config.Config
	bus    *events.Bus
	logger *vlog.Logger

	supervisor *process.Supervisor
	hub        *hub.Hub
	dispatcher *vexec.Dispatcher
	lspService *lsp.Service
	orch       *startup.Orchestrator
	hist       *history.Store
}

func runServe(projectDir string) error {
	cfg, err := config.ReadConfig(projectDir)
	if err != nil {
		// Config not found or invalid: use defaults.
		cfg = config.DefaultConfig()
	}

	logger, err := vlog.NewLogger(projectDir)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Close()
	_ = logger.Append(vlog.LogEvent{Event: vlog.EventBackendStarted, Path: projectDir})

	b, err := buildBackend(projectDir, cfg, logger)
	if err != nil {
		return err
	}

	go b.orch.Run()
	defer b.orch.Stop()

	srv, err := server.NewServer(server.Deps{
		Dispatcher:   b.dispatcher,
		Hub:          b.hub,
		Orchestrator: b.orch,
		Lsp:          b.lspService,
		History:      b.hist,
		Bus:          b.bus,
		ChangeProject: func(path string) error {
			return b.changeProject(path)
		},
	}, cfg.Server.Port)
	if err != nil {
		return err
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop()

	fmt.Printf("vesper backend listening on %s\n", srv.Addr())

	b.orch.Begin()

	// Run until interrupted.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	_ = b.supervisor.Stop()
	if b.hist != nil {
		_ = b.hist.Close()
	}
	return nil
}

// buildBackend constructs all actors and their late-bound wiring.
func buildBackend(projectDir string, cfg *config.Config, logger *vlog.Logger) (*backend, error) {
	bus := events.NewBus()

	executable := cfg.Interpreter.Executable
	if executable == "" {
		executable = "julia"
	}

	var hist *history.Store
	if cfg.History.Enabled {
		store, err := history.NewStore(filepath.Join(projectDir, ".vesper", "history.db"), cfg.History.KeepEntries)
		if err == nil {
			hist = store
		} else {
			_ = logger.Append(vlog.LogEvent{Event: vlog.EventStartupFailed, Error: err.Error(), Reason: "history store"})
		}
	}

	h := hub.New(bus, nil)
	var recorder vexec.HistoryRecorder
	if hist != nil {
		recorder = hist
	}
	dispatcher := vexec.New(h, bus, recorder)

	supervisor := process.New(executable, harnessArgs()...)

	lspService := lsp.NewService(lsp.Options{
		WorkspaceRoot:      projectDir,
		DataDir:            dataDir(),
		CacheDir:           filepath.Join(dataDir(), "package_cache"),
		Executable:         executable,
		DepotPath:          depotPath(cfg),
		StdlibCacheMaxAge:  time.Duration(cfg.Lsp.StdlibCacheMaxAgeDays) * 24 * time.Hour,
		DiagnosticDebounce: time.Duration(cfg.Lsp.DiagnosticsDebounceMs) * time.Millisecond,
		IndexPackages:      cfg.Lsp.IndexPackages,
		Bus:                bus,
		Logger:             logger,
	})

	var orch *startup.Orchestrator
	collab := startup.Collaborators{
		CheckInstalled: func() (bool, error) {
			_, err := exec.LookPath(executable)
			return err == nil, nil
		},
		Install: func() error {
			// Interpreter installation belongs to the external installer.
			return fmt.Errorf("interpreter %q not found: installation required", executable)
		},
		StartInterp: func() error {
			if err := supervisor.Start(); err != nil {
				return err
			}
			toPipe, fromPipe, err := supervisor.PipeNames()
			if err != nil {
				return err
			}
			if err := h.Connect(toPipe, fromPipe); err != nil {
				return err
			}
			_ = logger.Append(vlog.LogEvent{Event: vlog.EventInterpreterStarted})
			return nil
		},
		StopInterp: func() error {
			h.Disconnect()
			return supervisor.Stop()
		},
		ResetHub: func() { h.Reset() },
		StartPlots: func() error {
			// The plot HTTP server is an external collaborator.
			return nil
		},
		StartFiles: func() error {
			_ = bus.Emit(events.CategoryFileServer, "started", map[string]any{})
			return nil
		},
		Activate: func() error {
			code := fmt.Sprintf("import Pkg; Pkg.activate(%q); nothing", filepath.ToSlash(projectDir))
			_, err := dispatcher.ExecuteInternalAPI(context.Background(), code)
			return err
		},
		StartLsp: func() error {
			lspService.StartIndexing(context.Background(), func() {
				orch.Post(startup.Event{Name: startup.EventLspReady})
			})
			return nil
		},
	}

	timeouts := startup.DefaultTimeouts()
	if cfg.Execution.InstallTimeout > 0 {
		timeouts[startup.PhaseInstallingInterpreter] = time.Duration(cfg.Execution.InstallTimeout) * time.Second
	}
	if cfg.Execution.ActivateTimeout > 0 {
		timeouts[startup.PhaseActivatingProject] = time.Duration(cfg.Execution.ActivateTimeout) * time.Second
	}
	if cfg.Execution.LspReadyTimeout > 0 {
		timeouts[startup.PhaseWaitingForLspReady] = time.Duration(cfg.Execution.LspReadyTimeout) * time.Second
	}
	if cfg.Execution.StartupTimeout > 0 {
		light := time.Duration(cfg.Execution.StartupTimeout) * time.Second
		for _, phase := range []startup.Phase{
			startup.PhaseCheckingForUpdates, startup.PhaseCheckingInterpreter,
			startup.PhaseStartingPlotServer, startup.PhaseStartingFileServer,
		} {
			timeouts[phase] = light
		}
	}

	orch = startup.New(collab, timeouts, bus)

	// Unexpected child exits surface to the UI and drive a restart.
	supervisor.SetOnExit(func(code int) {
		_ = logger.Append(vlog.LogEvent{Event: vlog.EventInterpreterExited, ExitCode: code})
		_ = bus.Emit(events.CategorySystem, "error", map[string]any{
			"message": fmt.Sprintf("The interpreter exited unexpectedly (code %d).", code),
		})
		h.Disconnect()
		orch.Post(startup.Event{Name: startup.EventRestartInterpreter})
	})

	return &backend{
		cfg:        cfg,
		bus:        bus,
		logger:     logger,
		supervisor: supervisor,
		hub:        h,
		dispatcher: dispatcher,
		lspService: lspService,
		orch:       orch,
		hist:       hist,
	}, nil
}

// changeProject switches the backend to a new project directory:
// activates it in the interpreter and re-runs the indexing pipelines.
// The UI sees progress via lsp:status events.
func (b *backend) changeProject(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("not a project directory: %s", path)
	}

	_ = b.bus.Emit(events.CategoryLsp, "status", map[string]any{
		"status":  "switching",
		"message": "Switching project…",
	})

	if b.hub.Connected() {
		code := fmt.Sprintf("import Pkg; Pkg.activate(%q); nothing", filepath.ToSlash(path))
		if _, err := b.dispatcher.ExecuteInternalAPI(context.Background(), code); err != nil {
			return fmt.Errorf("activating project: %w", err)
		}
	}

	b.lspService.ChangeWorkspace(context.Background(), path, nil)
	return nil
}

// harnessArgs builds the interpreter invocation: the bootstrap script
// connects back over the pipes named in the environment.
func harnessArgs() []string {
	return []string{
		"--startup-file=no",
		"--history-file=no",
		filepath.Join(dataDir(), "harness", "vesper_server.jl"),
	}
}

// dataDir is the per-user data directory holding caches and the harness.
func dataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "vesper")
}

func depotPath(cfg *config.Config) string {
	if cfg.Interpreter.DepotPath != "" {
		return cfg.Interpreter.DepotPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".julia")
}
