package resources

import (
	"context"
	"log/slog"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/kratos06/deepwiki-open/internal/repo"
	"github.com/mark3labs/mcp-go/mcp"
)

// StructureResource serves repo://structure/{repo_url}: every visible
// directory mapped to its subdirectories and files.
type StructureResource struct {
	source engine.Source
	logger *slog.Logger
}

// NewStructureResource creates a StructureResource.
func NewStructureResource(source engine.Source, logger *slog.Logger) *StructureResource {
	return &StructureResource{source: source, logger: logger}
}

func (r *StructureResource) URITemplate() string { return "repo://structure/{repo_url}" }

func (r *StructureResource) Definition() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(r.URITemplate(), "Repository Structure",
		mcp.WithTemplateDescription("Directory tree of a repository, excluding hidden and build directories"),
		mcp.WithTemplateMIMEType(MIMEType),
	)
}

func (r *StructureResource) Read(ctx context.Context, vars map[string]string) []byte {
	root, errDoc := checkout(ctx, r.source, vars["repo_url"])
	if errDoc != nil {
		return errDoc
	}
	tree, err := repo.Structure(root)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("repository structure failed", "root", root, "error", err)
		}
		return errorJSON(err.Error())
	}
	return marshal(tree)
}
