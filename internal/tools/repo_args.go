// Package tools implements the MCP tool handlers that answer questions
// about repositories.
//
// Each tool receives its dependencies via its struct and exposes a
// Definition for registration and a Handle compatible with mcp-go's
// CallToolRequest signature. Collaborator failures are rendered as text;
// only invalid input produces an error result.
package tools

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/kratos06/deepwiki-open/internal/logging"
	"github.com/kratos06/deepwiki-open/internal/repo"
	"github.com/mark3labs/mcp-go/mcp"
)

// repoOptions are the parameters shared by every repository tool.
func repoOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("repo_url",
			mcp.Required(),
			mcp.Description("URL of the repository (e.g. https://github.com/owner/repo), or a local path when repo_type is local"),
		),
		mcp.WithString("repo_type",
			mcp.Description("Repository type. Default: detected from repo_url (github for unknown hosts)"),
			mcp.Enum(repo.TypeGitHub, repo.TypeGitLab, repo.TypeBitbucket, repo.TypeLocal),
		),
		mcp.WithString("access_token",
			mcp.Description("Access token for private repositories (optional)"),
		),
	}
}

// engineOptions are the parameters of the tools that query an engine.
func engineOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("provider",
			mcp.Description("Model provider: google, openai, openrouter, ollama or anthropic. Only the first request for a repository picks it."),
		),
		mcp.WithString("model",
			mcp.Description("Model name (optional, uses the provider default)"),
		),
		mcp.WithString("language",
			mcp.Description("Response language code. Default: en"),
		),
	}
}

func repoRef(req mcp.CallToolRequest) engine.RepoRef {
	location := strings.TrimSpace(req.GetString("repo_url", ""))
	typ := strings.TrimSpace(req.GetString("repo_type", ""))
	if typ == "" {
		typ = repo.DetectType(location)
	}
	return engine.RepoRef{
		Location:    location,
		Type:        typ,
		AccessToken: req.GetString("access_token", ""),
	}
}

func engineParams(req mcp.CallToolRequest) engine.Params {
	return engine.Params{
		Ref:      repoRef(req),
		Provider: strings.TrimSpace(req.GetString("provider", "")),
		Model:    strings.TrimSpace(req.GetString("model", "")),
	}
}

func language(req mcp.CallToolRequest) string {
	if l := strings.TrimSpace(req.GetString("language", "")); l != "" {
		return l
	}
	return "en"
}

// preview cuts s to n runes, appending "..." when anything was dropped.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return logging.Discard()
	}
	return l
}
