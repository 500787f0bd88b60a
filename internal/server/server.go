// Package server wires all StoryForge components and creates the MCP
// server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools that depend on them. No business logic lives
// here, only wiring.
package server

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/config"
	"github.com/HendryAvila/storyforge/internal/gemini"
	"github.com/HendryAvila/storyforge/internal/jira"
	"github.com/HendryAvila/storyforge/internal/pipeline"
	"github.com/HendryAvila/storyforge/internal/requestlog"
	"github.com/HendryAvila/storyforge/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function closes the request log's database
// connection and must be called on shutdown (typically via defer). It is
// always non-nil and safe to call even if the request log failed to open.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	store := artifact.NewStore()

	// --- Optional subsystems ---
	//
	// The request log, Gemini and Jira are all independent: a missing
	// credential or a failed database open disables that subsystem with a
	// stderr warning, and the rest of the pipeline keeps working.

	cleanup := noop
	var reqlog *requestlog.Store
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = requestlog.DefaultPath()
	}
	if rl, err := requestlog.Open(dbPath); err != nil {
		log.Printf("WARNING: request log disabled: %v", err)
	} else {
		reqlog = rl
		cleanup = func() {
			if err := rl.Close(); err != nil {
				log.Printf("WARNING: request log close: %v", err)
			}
		}
	}

	var gen pipeline.Generator
	if cfg.GeminiConfigured() {
		client := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel).
			WithTimeout(cfg.GeminiTimeout)
		if reqlog != nil {
			client = client.WithRecorder(reqlog)
		}
		gen = client
	} else {
		log.Printf("WARNING: GEMINI_API_KEY not set, story and test generation will use templates only")
	}

	var jiraClient *jira.Client
	if cfg.JiraConfigured() {
		jc, err := jira.New(cfg.JiraBaseURL, cfg.JiraEmail, cfg.JiraAPIToken)
		if err != nil {
			log.Printf("WARNING: jira ingestion disabled: %v", err)
		} else {
			jiraClient = jc
		}
	} else {
		log.Printf("WARNING: Jira credentials not set, only mock ingestion is available")
	}

	orch := pipeline.New(store, gen)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"storyforge",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	ingestJiraTool := tools.NewIngestJiraTool(jiraClient, store)
	s.AddTool(ingestJiraTool.Definition(), ingestJiraTool.Handle)

	ingestFeaturesTool := tools.NewIngestFeaturesTool(store)
	s.AddTool(ingestFeaturesTool.Definition(), ingestFeaturesTool.Handle)

	generateStoriesTool := tools.NewGenerateStoriesTool(orch)
	s.AddTool(generateStoriesTool.Definition(), generateStoriesTool.Handle)

	generateTestsTool := tools.NewGenerateTestsTool(orch)
	s.AddTool(generateTestsTool.Definition(), generateTestsTool.Handle)

	exportTool := tools.NewExportTool(store)
	s.AddTool(exportTool.Definition(), exportTool.Handle)

	statusTool := tools.NewStatusTool(store, orch, reqlog, tools.StatusConfig{
		JiraConfigured:   jiraClient != nil,
		GeminiConfigured: gen != nil,
		MaskedAPIKey:     config.Mask(cfg.GeminiAPIKey),
		GeminiModel:      cfg.GeminiModel,
	})
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	return s, cleanup, nil
}

func serverInstructions() string {
	return `StoryForge turns feature descriptions into user stories and test cases.

Typical flow:
1. Ingest features: storyforge_ingest_jira (JQL against Jira epics) or
   storyforge_ingest_features (JSON/YAML mock data).
2. storyforge_generate_stories derives one story per feature.
3. storyforge_generate_tests derives one test case per story.
4. storyforge_export renders everything as json, csv or markdown.

Generation uses Gemini when GEMINI_API_KEY is set and deterministic
templates otherwise; every result reports which engine produced it.
Regenerating replaces the earlier batch for the same inputs.
storyforge_status shows artifact counts and subsystem health.`
}

// noop is the default cleanup when the request log never opened.
func noop() {}
