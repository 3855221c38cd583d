// Package main is the entry point for CozyReq. It initializes configuration
// and the session engine, then either runs a headless verb or the TUI.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cozyreq/cozyreq/internal/app"
	"github.com/cozyreq/cozyreq/internal/config"
	"github.com/cozyreq/cozyreq/internal/session"
	"github.com/cozyreq/cozyreq/internal/version"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Handle help flag
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		printUsage()
		os.Exit(0)
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run contains the main application logic, separated for cleaner error handling.
func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	engine, err := session.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	// Ensure cleanup on exit
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing session: %v\n", closeErr)
		}
	}()

	if len(args) > 0 {
		return runVerb(engine, args)
	}
	return runTUI(engine)
}

// runVerb dispatches the headless subcommands.
func runVerb(engine *session.Engine, args []string) error {
	switch args[0] {
	case "--list":
		return listTemplates(engine)
	case "--exec":
		if len(args) < 2 {
			return fmt.Errorf("usage: cozyreq --exec <template-id> [name=value ...]")
		}
		return execTemplate(engine, args[1], args[2:])
	case "--import":
		if len(args) < 2 {
			return fmt.Errorf("usage: cozyreq --import <path-or-url>")
		}
		return importSpec(engine, args[1])
	case "--prune":
		age := 30 * 24 * time.Hour
		if len(args) > 1 {
			parsed, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid prune age %q: %w", args[1], err)
			}
			age = parsed
		}
		n, err := engine.PruneResponses(time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d response bodies\n", n)
		return nil
	default:
		return fmt.Errorf("unknown argument %q, see --help", args[0])
	}
}

func listTemplates(engine *session.Engine) error {
	templates, err := engine.Templates()
	if err != nil {
		return err
	}
	for _, tmpl := range templates {
		fmt.Printf("%s  rev %d  %-7s %s  %s\n", tmpl.ID, tmpl.Revision, tmpl.Method, tmpl.Name, tmpl.URLPattern)
	}
	return nil
}

// execTemplate runs one template synchronously and prints the result as JSON.
func execTemplate(engine *session.Engine, templateID string, kvArgs []string) error {
	params := make(map[string]any, len(kvArgs))
	for _, kv := range kvArgs {
		name, value, found := strings.Cut(kv, "=")
		if !found {
			return fmt.Errorf("parameter %q is not in name=value form", kv)
		}
		params[name] = value
	}

	id, err := engine.Execute(templateID, params)
	if err != nil {
		return err
	}

	result, err := engine.AwaitResult(id, 5*time.Minute)
	if err != nil {
		return err
	}

	out := map[string]any{
		"invocation_id": result.Invocation.ID,
		"status":        result.Invocation.Status,
		"attempts":      result.Invocation.Attempts,
	}
	if result.Invocation.Error != "" {
		out["error"] = result.Invocation.Error
	}
	if result.Response != nil {
		out["status_code"] = result.Response.StatusCode
		out["duration_ms"] = result.Response.DurationMs
		out["body"] = string(result.Response.Body)
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func importSpec(engine *session.Engine, source string) error {
	created, err := engine.ImportOpenAPI(source)
	if err != nil {
		return err
	}
	for _, tmpl := range created {
		fmt.Printf("imported %s  %-7s %s\n", tmpl.ID, tmpl.Method, tmpl.Name)
	}
	fmt.Printf("%d templates created\n", len(created))
	return nil
}

func runTUI(engine *session.Engine) error {
	model := app.NewModel(engine)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	go func() {
		<-sigChan
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// printUsage prints the command-line usage information.
func printUsage() {
	fmt.Println(`CozyReq - run saved HTTP request templates from your terminal

Usage:
  cozyreq                                 Launch the TUI
  cozyreq --list                          List request templates
  cozyreq --exec <template-id> [k=v ...]  Execute a template and print JSON
  cozyreq --import <path-or-url>          Import endpoints from an OpenAPI 3.x document
  cozyreq --prune [age]                   Drop response bodies older than age (default 720h)

Flags:
  -h, --help      Show this help message
  -v, --version   Show version information

Keyboard Shortcuts:
  Tab             Switch pane
  j/k, Up/Down    Navigate lists
  Enter           Execute selected template
  c               Cancel selected invocation
  v               View recorded response
  r               Refresh
  ?               Toggle help
  q, Ctrl+C       Quit

Environment Variables:
  COZYREQ_DB_PATH           SQLite database path
  COZYREQ_CREDENTIAL_PATH   Credential JSON file path
  COZYREQ_AUTH_URL          Token refresh endpoint
  COZYREQ_CONCURRENCY       Parallel request workers (default: 4)
  COZYREQ_TIMEOUT           Per-attempt timeout (default: 30s)
  COZYREQ_MAX_RETRIES       Transport retries per request (default: 3)

Configuration:
  The application looks for .env files in the following locations:
  - Current directory
  - ~/.cozyreq/.env`)
}
