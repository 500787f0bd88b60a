package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/pipeline"
)

// GenerateStoriesTool handles the storyforge_generate_stories MCP tool.
type GenerateStoriesTool struct {
	orch *pipeline.Orchestrator
}

// NewGenerateStoriesTool creates a GenerateStoriesTool.
func NewGenerateStoriesTool(orch *pipeline.Orchestrator) *GenerateStoriesTool {
	return &GenerateStoriesTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *GenerateStoriesTool) Definition() mcp.Tool {
	return mcp.NewTool("storyforge_generate_stories",
		mcp.WithDescription(
			"Derive one user story per feature. Uses the AI engine when "+
				"GEMINI_API_KEY is set and falls back to deterministic templates "+
				"otherwise; the result reports which engine produced the batch. "+
				"Regenerating replaces earlier stories for the same features.",
		),
		mcp.WithArray("feature_ids",
			mcp.Description("Feature ids to generate stories for. Omit to use every ingested feature."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the storyforge_generate_stories tool call.
func (t *GenerateStoriesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	featureIDs := stringListArg(req, "feature_ids")

	res, err := t.orch.GenerateStories(ctx, featureIDs)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidInput) || errors.Is(err, artifact.ErrDanglingParent) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("generating stories: %w", err)
	}

	return jsonResult(res)
}
