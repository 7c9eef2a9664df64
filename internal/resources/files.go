package resources

import (
	"context"
	"log/slog"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/kratos06/deepwiki-open/internal/repo"
	"github.com/mark3labs/mcp-go/mcp"
)

// FilesResource serves repo://files/{repo_url}/{file_pattern}: the visible
// files whose relative path or base name match a shell pattern.
type FilesResource struct {
	source engine.Source
	logger *slog.Logger
}

// NewFilesResource creates a FilesResource.
func NewFilesResource(source engine.Source, logger *slog.Logger) *FilesResource {
	return &FilesResource{source: source, logger: logger}
}

func (r *FilesResource) URITemplate() string { return "repo://files/{repo_url}/{file_pattern}" }

func (r *FilesResource) Definition() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(r.URITemplate(), "Repository Files",
		mcp.WithTemplateDescription("Files in a repository matching a shell pattern such as *.go"),
		mcp.WithTemplateMIMEType(MIMEType),
	)
}

type fileList struct {
	Files   []string `json:"files"`
	Pattern string   `json:"pattern"`
}

func (r *FilesResource) Read(ctx context.Context, vars map[string]string) []byte {
	pattern := vars["file_pattern"]
	if pattern == "" {
		pattern = "*"
	}
	root, errDoc := checkout(ctx, r.source, vars["repo_url"])
	if errDoc != nil {
		return errDoc
	}
	files, err := repo.MatchFiles(root, pattern)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("file listing failed", "pattern", pattern, "error", err)
		}
		return errorJSON(err.Error())
	}
	return marshal(fileList{Files: files, Pattern: pattern})
}
