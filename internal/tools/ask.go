package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// AskTool handles the ask_deepwiki MCP tool.
// It runs the full retrieval and generation pipeline and falls back to
// document previews when generation fails.
type AskTool struct {
	source engine.Source
	logger *slog.Logger
}

// NewAskTool creates an AskTool over the engine source.
func NewAskTool(source engine.Source, logger *slog.Logger) *AskTool {
	return &AskTool{source: source, logger: orDiscard(logger)}
}

// Definition returns the MCP tool definition for registration.
func (t *AskTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Ask a question about a code repository. Retrieves the most relevant " +
				"files and generates a comprehensive answer with the configured model. " +
				"The repository is cloned and indexed on first use.",
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Your question about the codebase"),
		),
		mcp.WithBoolean("deep_research",
			mcp.Description("Enable deep research mode for a more thorough analysis"),
		),
	}
	opts = append(opts, repoOptions()...)
	opts = append(opts, engineOptions()...)
	return mcp.NewTool("ask_deepwiki", opts...)
}

// Handle processes the ask_deepwiki tool call.
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(req.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("'question' is required"), nil
	}
	params := engineParams(req)
	if params.Ref.Location == "" {
		return mcp.NewToolResultError("'repo_url' is required"), nil
	}

	eng, err := t.source.QueryEngine(ctx, params)
	if err != nil {
		t.logger.Error("ask_deepwiki failed", "repo", params.Ref.Location, "error", err)
		return mcp.NewToolResultText(fmt.Sprintf("Error processing your question: %v", err)), nil
	}

	if req.GetBool("deep_research", false) {
		question = "[DEEP RESEARCH] " + question
	}

	res := eng.Answer(ctx, engine.Query{Text: question, Language: language(req), Generate: true})
	switch res.Kind {
	case engine.KindAnswer:
		return mcp.NewToolResultText(res.Answer), nil
	case engine.KindError:
		t.logger.Error("ask_deepwiki failed", "repo", params.Ref.Location, "error", res.Err)
		return mcp.NewToolResultText(fmt.Sprintf("Error processing your question: %v", res.Err)), nil
	}

	if res.Err != nil {
		t.logger.Warn("answer generation failed, returning documents", "repo", params.Ref.Location, "error", res.Err)
	}
	if len(res.Documents) == 0 {
		return mcp.NewToolResultText("I couldn't find relevant information in the repository to answer your question."), nil
	}

	docs := res.Documents
	if len(docs) > 3 {
		docs = docs[:3]
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf("**%s:**\n%s", d.FilePath, preview(d.Text, 500)))
	}
	return mcp.NewToolResultText("Based on the repository content:\n\n" + strings.Join(parts, "\n\n")), nil
}
