package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/text/encoding/charmap"
)

// binaryPreviewRunes bounds the preview of files that are not UTF-8.
const binaryPreviewRunes = 1000

// FileContentTool handles the get_file_content MCP tool.
type FileContentTool struct {
	source engine.Source
	logger *slog.Logger
}

// NewFileContentTool creates a FileContentTool over the engine source.
func NewFileContentTool(source engine.Source, logger *slog.Logger) *FileContentTool {
	return &FileContentTool{source: source, logger: orDiscard(logger)}
}

// Definition returns the MCP tool definition for registration.
func (t *FileContentTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Get the content of a specific file from the repository."),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to the file, relative to the repository root"),
		),
	}
	opts = append(opts, repoOptions()...)
	return mcp.NewTool("get_file_content", opts...)
}

// Handle processes the get_file_content tool call.
func (t *FileContentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath := strings.TrimSpace(req.GetString("file_path", ""))
	if filePath == "" {
		return mcp.NewToolResultError("'file_path' is required"), nil
	}
	ref := repoRef(req)
	if ref.Location == "" {
		return mcp.NewToolResultError("'repo_url' is required"), nil
	}

	im, err := t.source.Index(ctx, ref)
	if err != nil {
		t.logger.Error("get_file_content failed", "repo", ref.Location, "error", err)
		return mcp.NewToolResultText(fmt.Sprintf("Error reading file: %v", err)), nil
	}
	root := im.RootPath()
	if info, err := os.Stat(root); root == "" || err != nil || !info.IsDir() {
		return mcp.NewToolResultText("Error: Repository not found or not indexed"), nil
	}

	full, ok := resolveInRoot(root, filePath)
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("Error: File '%s' not found in repository", filePath)), nil
	}
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.logger.Warn("stat failed", "path", full, "error", err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Error: File '%s' not found in repository", filePath)), nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("Error reading file: %v", err)), nil
	}
	if utf8.Valid(data) {
		return mcp.NewToolResultText(fmt.Sprintf("File: %s\n\n%s", filePath, data)), nil
	}

	// Latin-1 maps every byte, so this cannot fail.
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("File: %s\n\nError: Cannot read file content (binary file)", filePath)), nil
	}
	runes := []rune(string(decoded))
	if len(runes) > binaryPreviewRunes {
		runes = runes[:binaryPreviewRunes]
	}
	return mcp.NewToolResultText(fmt.Sprintf("File: %s (binary content)\n\n%s...", filePath, string(runes))), nil
}

// resolveInRoot joins rel onto root and rejects paths that escape it.
func resolveInRoot(root, rel string) (string, bool) {
	full := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}
