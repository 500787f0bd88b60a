package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/export"
)

// ExportTool handles the storyforge_export MCP tool.
type ExportTool struct {
	store *artifact.Store
}

// NewExportTool creates an ExportTool.
func NewExportTool(store *artifact.Store) *ExportTool {
	return &ExportTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *ExportTool) Definition() mcp.Tool {
	return mcp.NewTool("storyforge_export",
		mcp.WithDescription(
			"Export all features, stories and test cases in one document. "+
				"Supported formats: "+strings.Join(export.Formats, ", ")+". "+
				"An empty store exports a valid empty document.",
		),
		mcp.WithString("format",
			mcp.Required(),
			mcp.Description("Output format: 'json', 'csv' or 'markdown'."),
		),
	)
}

// Handle processes the storyforge_export tool call.
func (t *ExportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := req.GetString("format", "")

	doc, err := export.Render(format, t.store.Snapshot())
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("rendering export: %w", err)
	}

	return mcp.NewToolResultText(doc), nil
}
