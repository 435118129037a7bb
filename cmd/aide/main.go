// Aide is a local desktop assistant.
//
// It serves a browser UI and JSON API on localhost, reasons over user
// requests with a hosted LLM, and executes desktop actions (apps,
// files, input, email, tracking) on the user's machine. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]); every setting has a usable default.
//
// Usage:
//
//	aide serve             Start the assistant server
//	aide ask <question>    Ask a single question (for testing)
//	aide version           Print version and build information
//	aide -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aide-agent/aide/internal/actions"
	"github.com/aide-agent/aide/internal/agent"
	"github.com/aide-agent/aide/internal/aiassist"
	"github.com/aide-agent/aide/internal/api"
	"github.com/aide-agent/aide/internal/automation"
	"github.com/aide-agent/aide/internal/browserctl"
	"github.com/aide-agent/aide/internal/buildinfo"
	"github.com/aide-agent/aide/internal/code"
	"github.com/aide-agent/aide/internal/comms"
	"github.com/aide-agent/aide/internal/config"
	"github.com/aide-agent/aide/internal/events"
	"github.com/aide-agent/aide/internal/files"
	"github.com/aide-agent/aide/internal/health"
	"github.com/aide-agent/aide/internal/input"
	"github.com/aide-agent/aide/internal/learning"
	"github.com/aide-agent/aide/internal/llm"
	"github.com/aide-agent/aide/internal/notify"
	"github.com/aide-agent/aide/internal/productivity"
	"github.com/aide-agent/aide/internal/scheduler"
	"github.com/aide-agent/aide/internal/scrape"
	"github.com/aide-agent/aide/internal/store"
	"github.com/aide-agent/aide/internal/system"
	"github.com/aide-agent/aide/internal/voice"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the aide command. All OS-level
// dependencies are injected as parameters so the lifecycle is testable.
// Arguments are parsed by hand: the flag package relies on package-level
// globals, and our argument surface is small enough that manual parsing
// is clearer than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: aide ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "aide - local desktop assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: aide [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the assistant server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/aide/config.yaml, /etc/aide/config.yaml")
	return nil
}

// runAsk boots the store and the full action registry, processes a
// single question, and prints the reply. Useful for smoke tests and
// scripting without the HTTP server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger, err := config.NewLogger(stdout, "warn", "text")
	if err != nil {
		return err
	}
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}

	env, err := buildEnvironment(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer env.store.Close()
	defer env.browser.Close()

	reply, err := env.agent.Process(ctx, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, reply.Response)
	for _, res := range reply.Results {
		status := "ok"
		if !res.Success {
			status = "failed"
		}
		fmt.Fprintf(stdout, "  [%s] %s: %s\n", status, res.Action, res.Result)
	}
	return nil
}

// runServe is the primary operating mode: load config, open the
// database, build the action registry and agent, start the reminder
// scheduler and the HTTP server, and block until a shutdown signal.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger, err := config.NewLogger(stdout, "info", "text")
	if err != nil {
		return err
	}
	logger.Info("starting aide", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. Everything before this point logs at Info in text format.
	logger, err = config.NewLogger(stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.Groq.Model)

	if cfg.Groq.APIKey == "" {
		logger.Warn("no Groq API key configured; chat and transcription will fail (set GROQ_API_KEY)")
	}

	bus := events.New()
	env, err := buildEnvironment(cfg, bus, logger)
	if err != nil {
		return err
	}
	defer env.store.Close()
	defer env.browser.Close()

	// --- Reminder notifiers ---
	// The voice engine always participates (it no-ops when disabled).
	// MQTT is added when a broker is configured.
	notifiers := []scheduler.Notifier{env.voice}

	var mqttSink *notify.MQTTSink
	if cfg.MQTT.Enabled && cfg.MQTT.Broker != "" {
		mqttSink = notify.NewMQTTSink(cfg.MQTT, logger)
		if err := mqttSink.Start(ctx); err != nil {
			logger.Error("mqtt sink failed to start", "error", err)
		} else {
			notifiers = append(notifiers, mqttSink)
			logger.Info("mqtt notifications enabled", "broker", cfg.MQTT.Broker, "device_name", cfg.MQTT.DeviceName)
		}
	} else {
		logger.Info("mqtt notifications disabled (not configured)")
	}

	// --- Reminder scheduler ---
	interval := time.Duration(cfg.Scheduler.PollIntervalSec) * time.Second
	sched := scheduler.New(env.store, interval, bus, logger, notifiers...)
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	// --- HTTP server ---
	server := api.NewServer(cfg.Listen, cfg.CORS, api.Deps{
		Agent:        env.agent,
		Store:        env.store,
		Voice:        env.voice,
		System:       env.system,
		Productivity: env.productivity,
		Learning:     env.learning,
		Health:       env.health,
		Input:        env.input,
		Bus:          bus,
	}, logger)

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttSink != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttSink.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("aide stopped")
	return nil
}

// environment bundles everything runServe and runAsk share: the open
// database, the capability stores, and the agent wired to the full
// action registry.
type environment struct {
	store        *store.Store
	agent        *agent.Agent
	voice        *voice.Engine
	system       *system.System
	input        *input.Controller
	browser      *browserctl.Manager
	productivity *productivity.Store
	learning     *learning.Store
	health       *health.Store
}

// buildEnvironment opens the database and constructs every capability
// package, registering all their actions. bus may be nil (ask mode).
func buildEnvironment(cfg *config.Config, bus *events.Bus, logger *slog.Logger) (*environment, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			dataDir = "data"
		} else {
			dataDir = filepath.Join(home, ".local", "share", "aide")
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	st, err := store.NewStore(filepath.Join(dataDir, "aide.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database opened", "path", filepath.Join(dataDir, "aide.db"))

	workspace := cfg.Workspace.Path
	if workspace == "" {
		if home, err := os.UserHomeDir(); err == nil {
			workspace = filepath.Join(home, "aide-workspace")
		} else {
			workspace = "aide-workspace"
		}
	}

	groq := llm.NewGroqClient(cfg.Groq.BaseURL, cfg.Groq.APIKey, logger)
	voiceEngine := voice.New(cfg.Voice, cfg.Groq.WhisperModel, groq, bus, logger)
	inputCtl := input.New(logger)
	browser := browserctl.NewManager(cfg.Browser, logger)

	commsHub, err := comms.New(st.DB(), cfg.Email, workspace, inputCtl, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init contacts: %w", err)
	}
	prodStore, err := productivity.NewStore(st.DB(), logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init productivity store: %w", err)
	}
	healthStore, err := health.NewStore(st.DB(), logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init health store: %w", err)
	}
	learnStore, err := learning.NewStore(st.DB(), logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init learning store: %w", err)
	}

	sys := system.New(workspace, logger)

	registry := actions.NewRegistry(logger)
	if bus != nil {
		registry.SetBus(bus)
	}
	for _, set := range [][]*actions.Action{
		st.Actions(),
		automation.New(logger).Actions(),
		files.New(cfg.Workspace.Path, cfg.Workspace.Downloads, logger).Actions(),
		code.New(workspace, cfg.RunCommand, logger).Actions(),
		sys.Actions(),
		inputCtl.Actions(),
		commsHub.Actions(),
		scrape.New(browser, logger).Actions(),
		voiceEngine.Actions(),
		aiassist.New(groq, cfg.Groq.Model, logger).Actions(),
		prodStore.Actions(),
		healthStore.Actions(),
		learnStore.Actions(),
	} {
		if err := registry.RegisterAll(set); err != nil {
			st.Close()
			return nil, fmt.Errorf("register actions: %w", err)
		}
	}
	logger.Info("action registry ready", "actions", registry.Len())

	ag := agent.New(groq, cfg.Groq.Model, registry, st, bus, logger)

	return &environment{
		store:        st,
		agent:        ag,
		voice:        voiceEngine,
		system:       sys,
		input:        inputCtl,
		browser:      browser,
		productivity: prodStore,
		learning:     learnStore,
		health:       healthStore,
	}, nil
}

// loadConfig locates and parses the YAML configuration. When no config
// file exists anywhere in the search path, built-in defaults are used
// (the Groq key can come from the GROQ_API_KEY environment variable).
func loadConfig(explicit string, logger *slog.Logger) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		logger.Info("no config file found, using defaults")
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
