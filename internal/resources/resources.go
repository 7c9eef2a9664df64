// Package resources implements the MCP resource templates that expose
// repository structure, file listings and cached wikis.
//
// Resources are read-only and always answer with a JSON document; a
// failure is reported inside the document as {"error": "..."}.
package resources

import (
	"context"
	"encoding/json"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/kratos06/deepwiki-open/internal/repo"
	"github.com/mark3labs/mcp-go/mcp"
)

// MIMEType of every resource payload.
const MIMEType = "application/json"

// errNotIndexed is reported when a repository has no local checkout.
const errNotIndexed = "Repository not found or not indexed"

// Template is one resource template with its reader.
type Template interface {
	// Definition returns the MCP resource template for registration.
	Definition() mcp.ResourceTemplate
	// URITemplate is the raw template, e.g. "repo://structure/{repo_url}".
	URITemplate() string
	// Read resolves the template variables into a JSON document.
	Read(ctx context.Context, vars map[string]string) []byte
}

func marshal(v any) []byte {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorJSON(err.Error())
	}
	return data
}

func errorJSON(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

// checkout resolves repoURL to a local root through the engine source.
// The repository type is derived from the URL, so the cache key matches
// the one tools use for the same repository.
func checkout(ctx context.Context, source engine.Source, repoURL string) (string, []byte) {
	if repoURL == "" {
		return "", errorJSON("repo_url is required")
	}
	ref := engine.RepoRef{Location: repoURL, Type: repo.DetectType(repoURL)}
	im, err := source.Index(ctx, ref)
	if err != nil {
		return "", errorJSON(err.Error())
	}
	root := im.RootPath()
	if root == "" || !repo.IsDir(root) {
		return "", errorJSON(errNotIndexed)
	}
	return root, nil
}
