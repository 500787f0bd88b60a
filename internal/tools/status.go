package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/pipeline"
	"github.com/HendryAvila/storyforge/internal/requestlog"
)

// StatusTool handles the storyforge_status MCP tool. It reports artifact
// counts, generation diagnostics and which optional subsystems are live.
type StatusTool struct {
	store      *artifact.Store
	orch       *pipeline.Orchestrator
	reqlog     *requestlog.Store
	jiraReady  bool
	aiReady    bool
	maskedKey  string
	geminiName string
}

// StatusConfig carries the environment facts the status tool reports.
type StatusConfig struct {
	JiraConfigured   bool
	GeminiConfigured bool
	MaskedAPIKey     string
	GeminiModel      string
}

// NewStatusTool creates a StatusTool. reqlog may be nil when the request
// log failed to initialize.
func NewStatusTool(store *artifact.Store, orch *pipeline.Orchestrator, reqlog *requestlog.Store, cfg StatusConfig) *StatusTool {
	return &StatusTool{
		store:      store,
		orch:       orch,
		reqlog:     reqlog,
		jiraReady:  cfg.JiraConfigured,
		aiReady:    cfg.GeminiConfigured,
		maskedKey:  cfg.MaskedAPIKey,
		geminiName: cfg.GeminiModel,
	}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("storyforge_status",
		mcp.WithDescription(
			"Report pipeline status: artifact counts, which engine served the "+
				"last generation call, the last AI error absorbed by the fallback, "+
				"and whether Jira, Gemini and the request log are configured. "+
				"Credentials are masked.",
		),
	)
}

type statusReport struct {
	Counts      artifactCounts       `json:"counts"`
	Diagnostics pipeline.Diagnostics `json:"diagnostics"`
	Jira        subsystemStatus      `json:"jira"`
	Gemini      geminiStatus         `json:"gemini"`
	RequestLog  requestLogStatus     `json:"request_log"`
}

type artifactCounts struct {
	Features  int `json:"features"`
	Stories   int `json:"stories"`
	TestCases int `json:"tests"`
}

type subsystemStatus struct {
	Configured bool `json:"configured"`
}

type geminiStatus struct {
	Configured   bool   `json:"configured"`
	Model        string `json:"model,omitempty"`
	MaskedAPIKey string `json:"masked_api_key,omitempty"`
}

type requestLogStatus struct {
	Enabled  bool `json:"enabled"`
	Requests int  `json:"requests,omitempty"`
}

// Handle processes the storyforge_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	features, stories, testCases := t.store.Counts()
	report := statusReport{
		Counts:      artifactCounts{Features: features, Stories: stories, TestCases: testCases},
		Diagnostics: t.orch.Diagnostics(),
		Jira:        subsystemStatus{Configured: t.jiraReady},
		Gemini: geminiStatus{
			Configured:   t.aiReady,
			Model:        t.geminiName,
			MaskedAPIKey: t.maskedKey,
		},
	}
	if t.reqlog != nil {
		report.RequestLog.Enabled = true
		// Count failures are not worth failing the whole status call over.
		if n, err := t.reqlog.Count(ctx); err == nil {
			report.RequestLog.Requests = n
		}
	}

	return jsonResult(report)
}
