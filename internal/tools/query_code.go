package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// QueryCodeTool handles the query_code MCP tool: retrieval only, no
// generation.
type QueryCodeTool struct {
	source engine.Source
	logger *slog.Logger
}

// NewQueryCodeTool creates a QueryCodeTool over the engine source.
func NewQueryCodeTool(source engine.Source, logger *slog.Logger) *QueryCodeTool {
	return &QueryCodeTool{source: source, logger: orDiscard(logger)}
}

// Definition returns the MCP tool definition for registration.
func (t *QueryCodeTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Quick code retrieval: returns previews of the repository files most " +
				"relevant to the query, without generating an answer.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for in the code"),
		),
	}
	opts = append(opts, repoOptions()...)
	opts = append(opts, engineOptions()...)
	return mcp.NewTool("query_code", opts...)
}

// Handle processes the query_code tool call.
func (t *QueryCodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	params := engineParams(req)
	if params.Ref.Location == "" {
		return mcp.NewToolResultError("'repo_url' is required"), nil
	}

	eng, err := t.source.QueryEngine(ctx, params)
	if err != nil {
		t.logger.Error("query_code failed", "repo", params.Ref.Location, "error", err)
		return mcp.NewToolResultText(fmt.Sprintf("Error processing query: %v", err)), nil
	}

	res := eng.Answer(ctx, engine.Query{Text: query, Language: language(req)})
	if res.Kind == engine.KindError {
		t.logger.Error("query_code failed", "repo", params.Ref.Location, "error", res.Err)
		return mcp.NewToolResultText(fmt.Sprintf("Error processing query: %v", res.Err)), nil
	}
	if len(res.Documents) == 0 {
		return mcp.NewToolResultText("No relevant information found in the repository for your query."), nil
	}

	docs := res.Documents
	if len(docs) > 3 {
		docs = docs[:3]
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf("**File: %s**\n%s", d.FilePath, preview(d.Text, 200)))
	}
	return mcp.NewToolResultText(
		"Based on the repository content, here are the most relevant findings:\n\n" +
			strings.Join(parts, "\n\n---\n\n"),
	), nil
}
