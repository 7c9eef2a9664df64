package resources

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// WikiResource serves wiki://cache/{owner}/{repo}/{repo_type}/{language}.
type WikiResource struct {
	cache  engine.WikiCacheReader
	logger *slog.Logger
}

// NewWikiResource creates a WikiResource. cache may be nil when the wiki
// cache is unavailable; reads then report an error document.
func NewWikiResource(cache engine.WikiCacheReader, logger *slog.Logger) *WikiResource {
	return &WikiResource{cache: cache, logger: logger}
}

func (r *WikiResource) URITemplate() string {
	return "wiki://cache/{owner}/{repo}/{repo_type}/{language}"
}

func (r *WikiResource) Definition() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(r.URITemplate(), "Cached Wiki",
		mcp.WithTemplateDescription("Previously generated wiki for a repository, by language"),
		mcp.WithTemplateMIMEType(MIMEType),
	)
}

func (r *WikiResource) Read(ctx context.Context, vars map[string]string) []byte {
	if r.cache == nil {
		return errorJSON("wiki cache is not available")
	}
	key := engine.WikiKey{
		Owner:    vars["owner"],
		Repo:     vars["repo"],
		RepoType: vars["repo_type"],
		Language: vars["language"],
	}
	if key.Language == "" {
		key.Language = "en"
	}
	data, ok, err := r.cache.Read(ctx, key)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("wiki cache read failed", "owner", key.Owner, "repo", key.Repo, "error", err)
		}
		return errorJSON(err.Error())
	}
	if !ok {
		return marshal(map[string]string{"message": "No cached wiki data found"})
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errorJSON("cached wiki is not valid JSON")
	}
	return marshal(doc)
}
