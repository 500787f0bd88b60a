package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/ingest"
)

// IngestFeaturesTool handles the storyforge_ingest_features MCP tool.
// It loads features from an uploaded mock document instead of Jira.
type IngestFeaturesTool struct {
	store *artifact.Store
}

// NewIngestFeaturesTool creates an IngestFeaturesTool.
func NewIngestFeaturesTool(store *artifact.Store) *IngestFeaturesTool {
	return &IngestFeaturesTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *IngestFeaturesTool) Definition() mcp.Tool {
	return mcp.NewTool("storyforge_ingest_features",
		mcp.WithDescription(
			"Load features from a mock data document instead of Jira. "+
				"The content is a JSON or YAML document with a top-level 'features' "+
				"list; each feature needs at least a title. Features without an id "+
				"get one assigned.",
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The feature document itself, as a string."),
		),
		mcp.WithString("format",
			mcp.Description("Document format: 'json' or 'yaml'. Omit to auto-detect."),
		),
	)
}

// Handle processes the storyforge_ingest_features tool call.
func (t *IngestFeaturesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := req.GetString("content", "")
	if content == "" {
		return mcp.NewToolResultError("'content' is required: provide a JSON or YAML feature document"), nil
	}
	format := req.GetString("format", ingest.FormatAuto)

	features, err := ingest.ParseFeaturesAs([]byte(content), format)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("parsing features: %w", err)
	}

	added, err := t.store.AddFeatures(features)
	if err != nil {
		if errors.Is(err, artifact.ErrDuplicateID) || errors.Is(err, artifact.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("storing features: %w", err)
	}

	return jsonResult(map[string]any{
		"count":    len(added),
		"features": added,
	})
}
