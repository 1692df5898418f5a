package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	xterm "golang.org/x/term"

	"github.com/gluk-w/claworc/console/internal/config"
	"github.com/gluk-w/claworc/console/internal/database"
	"github.com/gluk-w/claworc/console/internal/handlers"
	"github.com/gluk-w/claworc/console/internal/instances"
	"github.com/gluk-w/claworc/console/internal/inventory"
	"github.com/gluk-w/claworc/console/internal/logging"
	"github.com/gluk-w/claworc/console/internal/terminal"
	"github.com/gluk-w/claworc/console/internal/termsession"
	"github.com/gluk-w/claworc/console/internal/tui"
)

// backendSetting overrides ORCHESTRATOR_BACKEND when stored in the settings table.
const backendSetting = "orchestrator_backend"

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 && os.Args[1] == "--console" {
		if err := runConsole(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	config.Load()
	logging.Init()
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	if err := syncInventory(config.Cfg.InventoryFile); err != nil {
		log.Fatalf("Inventory: %v", err)
	}

	ctx := context.Background()
	if err := initInstances(ctx); err != nil {
		log.Printf("WARNING: %v", err)
	}

	termMgr := newTerminalManager()
	handlers.Terminals = termMgr
	handlers.LiveEnabled = config.Cfg.BridgeURL != ""
	log.Printf("Terminal manager initialized (default mode=%s, live=%v, recording=%v)",
		config.Cfg.DefaultMode, handlers.LiveEnabled, config.Cfg.TerminalRecording)

	scheduler, err := startJobs(termMgr)
	if err != nil {
		log.Fatalf("Scheduler: %v", err)
	}

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: newRouter(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	<-scheduler.Stop().Done()
	termMgr.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/instances", handlers.ListInstances)
		r.Get("/instances/{id}", handlers.GetInstance)

		// Terminal WebSocket, open terminals and the audit history
		r.Get("/instances/{id}/console", handlers.ConsoleWS)
		r.Get("/instances/{id}/console/sessions", handlers.ListConsoleSessions)
		r.Delete("/instances/{id}/console/sessions/{sessionId}", handlers.CloseConsoleSession)
		r.Get("/instances/{id}/console/history", handlers.ListConsoleHistory)
		r.Get("/instances/{id}/console/history/{sessionId}/transcript", handlers.GetConsoleTranscript)

		r.Get("/server-logs", handlers.GetServerLogs)
		r.Delete("/server-logs", handlers.ClearServerLogs)
	})
	return r
}

// syncInventory loads the inventory file, if one is configured, into the
// instances table.
func syncInventory(path string) error {
	if path == "" {
		return nil
	}
	inv, err := inventory.Load(path)
	if err != nil {
		return err
	}
	created, updated, err := database.SyncInstances(inv.Rows())
	if err != nil {
		return fmt.Errorf("sync instances: %w", err)
	}
	log.Printf("Inventory %s: %d created, %d updated", path, created, updated)
	return nil
}

func initInstances(ctx context.Context) error {
	backend := config.Cfg.OrchestratorBackend
	if v, err := database.GetSetting(backendSetting); err == nil && v != "" {
		backend = v
	}
	return instances.Init(ctx, backend, config.Cfg.DockerHost)
}

func newDialer() termsession.Dialer {
	if config.Cfg.BridgeURL == "" {
		return nil
	}
	header := http.Header{}
	if config.Cfg.BridgeToken != "" {
		header.Set("Authorization", "Bearer "+config.Cfg.BridgeToken)
	}
	return &termsession.WebSocketDialer{BaseURL: config.Cfg.BridgeURL, Header: header}
}

func newTerminalManager() *terminal.Manager {
	return terminal.NewManager(terminal.ManagerConfig{
		Dialer:       newDialer(),
		PingInterval: config.Cfg.PingInterval,
		Record:       config.Cfg.TerminalRecording,
		RecordLimit:  config.Cfg.RecordingLimit,
		Retention:    config.Cfg.SessionRetention,
		OnClose:      handlers.RecordConsoleSession,
	})
}

// runConsole opens a terminal to one instance in the local terminal UI.
func runConsole(args []string) error {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	mode := fs.String("mode", "", "Initial mode: simulated or live (default from TERMINAL_DEFAULT_MODE)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: console --console [--mode simulated|live] <instance-name>")
	}
	name := fs.Arg(0)
	if !xterm.IsTerminal(int(os.Stdin.Fd())) || !xterm.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("--console needs an interactive terminal")
	}

	config.Load()
	logging.InitFileOnly()
	defer logging.Close()

	if err := database.Init(); err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	defer database.Close()

	if err := syncInventory(config.Cfg.InventoryFile); err != nil {
		return fmt.Errorf("inventory: %w", err)
	}
	inst, err := database.GetInstanceByName(name)
	if err != nil {
		return fmt.Errorf("instance %q: %w", name, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := initInstances(ctx); err != nil {
		log.Printf("WARNING: %v", err)
	}

	m := *mode
	if m == "" {
		m = config.Cfg.DefaultMode
	}

	mgr := newTerminalManager()
	defer mgr.Stop()
	term := mgr.Create(terminal.CreateOptions{
		Target:        inst.Target(),
		Controller:    instances.Get(),
		InstanceName:  inst.ControlName(),
		Clipboard:     tui.NewClipboard(),
		AuthorizedKey: inst.SSHPublicKey,
	})
	if err := term.Open(ctx, termsession.Mode(m)); err != nil {
		log.Printf("[console] %s: open %s: %v", term.ID(), m, err)
	}
	return tui.Run(ctx, term)
}
