package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/jira"
)

// IngestJiraTool handles the storyforge_ingest_jira MCP tool.
// It runs a JQL query against Jira and loads the resulting epics as
// features.
type IngestJiraTool struct {
	client *jira.Client
	store  *artifact.Store
}

// NewIngestJiraTool creates an IngestJiraTool. client may be nil when Jira
// credentials are absent; the tool then reports a usage error on every call.
func NewIngestJiraTool(client *jira.Client, store *artifact.Store) *IngestJiraTool {
	return &IngestJiraTool{client: client, store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *IngestJiraTool) Definition() mcp.Tool {
	return mcp.NewTool("storyforge_ingest_jira",
		mcp.WithDescription(
			"Fetch epics from Jira with a JQL query and load them as features. "+
				"Only issues of type Epic are kept; their descriptions are flattened "+
				"to plain text. Requires JIRA_BASE_URL, JIRA_EMAIL and JIRA_API_TOKEN.",
		),
		mcp.WithString("jql",
			mcp.Required(),
			mcp.Description("JQL query. Example: 'project = PROJ AND issuetype = Epic'"),
		),
	)
}

// Handle processes the storyforge_ingest_jira tool call.
func (t *IngestJiraTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.client == nil {
		return mcp.NewToolResultError(
			"Jira is not configured: set JIRA_BASE_URL, JIRA_EMAIL and JIRA_API_TOKEN, " +
				"or use storyforge_ingest_features with mock data instead",
		), nil
	}

	jql := strings.TrimSpace(req.GetString("jql", ""))
	if jql == "" {
		return mcp.NewToolResultError("'jql' is required: provide a JQL query selecting the epics to ingest"), nil
	}

	features, err := t.client.Search(ctx, jql)
	if err != nil {
		if errors.Is(err, jira.ErrRequest) || errors.Is(err, artifact.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("searching jira: %w", err)
	}
	if len(features) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("query %q matched no epics", jql)), nil
	}

	added, err := t.store.AddFeatures(features)
	if err != nil {
		if errors.Is(err, artifact.ErrDuplicateID) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("storing features: %w", err)
	}

	return jsonResult(map[string]any{
		"count":    len(added),
		"features": added,
	})
}
