// StoryForge: requirements-to-tests MCP server
//
// An MCP server that ingests feature descriptions (from Jira epics or mock
// data), derives user stories and test cases from them (Gemini with a
// deterministic template fallback), and exports the results.
//
// Usage:
//
//	storyforge serve    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/storyforge/internal/config"
	sfserver "github.com/HendryAvila/storyforge/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("storyforge v%s\n", sfserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	s, cleanup, err := sfserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Run cleanup on interrupt too: ServeStdio blocks until stdin closes,
	// but editors usually kill MCP servers with a signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `StoryForge: requirements-to-tests MCP server

Usage:
  storyforge serve      Start the MCP server (stdio transport)
  storyforge version    Print version
  storyforge help       Show this help

Environment:
  JIRA_BASE_URL           Jira Cloud base URL (enables Jira ingestion)
  JIRA_EMAIL              Jira account email
  JIRA_API_TOKEN          Jira API token
  GEMINI_API_KEY          Gemini API key (enables AI generation)
  GEMINI_MODEL            Gemini model (default gemini-2.0-flash)
  GEMINI_TIMEOUT_SECONDS  AI request timeout (default 30)
  STORYFORGE_DB           Request log path (default ~/.storyforge/requests.db)

All settings are optional: without Jira only mock ingestion is available,
and without Gemini generation uses deterministic templates.`)
}
