package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/pipeline"
)

// GenerateTestsTool handles the storyforge_generate_tests MCP tool.
type GenerateTestsTool struct {
	orch *pipeline.Orchestrator
}

// NewGenerateTestsTool creates a GenerateTestsTool.
func NewGenerateTestsTool(orch *pipeline.Orchestrator) *GenerateTestsTool {
	return &GenerateTestsTool{orch: orch}
}

// Definition returns the MCP tool definition for registration.
func (t *GenerateTestsTool) Definition() mcp.Tool {
	return mcp.NewTool("storyforge_generate_tests",
		mcp.WithDescription(
			"Derive one test case per user story, with steps and expected "+
				"results aligned one to one. Uses the AI engine when available and "+
				"deterministic templates otherwise. Regenerating replaces earlier "+
				"test cases for the same stories.",
		),
		mcp.WithArray("story_ids",
			mcp.Description("Story ids to generate tests for. Omit to use every story."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the storyforge_generate_tests tool call.
func (t *GenerateTestsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	storyIDs := stringListArg(req, "story_ids")

	res, err := t.orch.GenerateTests(ctx, storyIDs)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidInput) || errors.Is(err, artifact.ErrDanglingParent) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("generating tests: %w", err)
	}

	return jsonResult(res)
}
