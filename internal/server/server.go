// Package server wires the MCP components and creates the server instance.
//
// This is the composition root: it creates the concrete collaborators
// (engine pool, repository checkouts, wiki cache) and injects them into the
// tools, resources and prompts that depend on abstractions. No business
// logic lives here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/kratos06/deepwiki-open/internal/dispatch"
	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/kratos06/deepwiki-open/internal/prompts"
	"github.com/kratos06/deepwiki-open/internal/rag"
	"github.com/kratos06/deepwiki-open/internal/repo"
	"github.com/kratos06/deepwiki-open/internal/resources"
	"github.com/kratos06/deepwiki-open/internal/tools"
	"github.com/kratos06/deepwiki-open/internal/wikicache"
	"github.com/mark3labs/mcp-go/server"
)

// Name is the MCP server name announced to clients.
const Name = "deepwiki"

// Version is set at build time via ldflags.
var Version = "dev"

// Deps are the inputs of New. Only Config is required; nil factories and a
// nil wiki cache are replaced by the production implementations.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger

	EngineFactory engine.EngineFactory
	IndexFactory  engine.IndexFactory
	WikiCache     engine.WikiCache
}

// Component is everything one running MCP service owns.
type Component struct {
	MCP        *server.MCPServer
	Dispatcher *dispatch.Dispatcher
	Pool       *engine.Pool
	// Wiki is nil when the wiki cache could not be opened.
	Wiki engine.WikiCache

	cleanup func()
}

// Close releases the component's resources. Safe to call more than once.
func (c *Component) Close() {
	if c == nil || c.cleanup == nil {
		return
	}
	c.cleanup()
	c.cleanup = nil
}

// New creates the operation catalogue and the MCP server on top of it.
//
// The wiki cache is an independent subsystem: if it fails to open, the
// wiki resource answers with an error document and everything else keeps
// working.
func New(deps Deps) (*Component, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// --- Create shared dependencies ---

	var pool *engine.Pool
	newIndex := deps.IndexFactory
	if newIndex == nil {
		newIndex = repo.Factory(cfg.ReposDir(), logger)
	}
	newEngine := deps.EngineFactory
	if newEngine == nil {
		newEngine = rag.Factory(cfg, func(ctx context.Context, ref engine.RepoRef) (string, error) {
			im, err := pool.Index(ctx, ref)
			if err != nil {
				return "", err
			}
			return im.RootPath(), nil
		})
	}
	pool = engine.NewPool(newEngine, newIndex)

	cleanup := noop
	wiki := deps.WikiCache
	if wiki == nil {
		store, err := wikicache.New(wikicache.Config{
			Path:            cfg.WikiCachePath(),
			DefaultLanguage: cfg.Engine.DefaultLanguage,
		})
		if err != nil {
			logger.Warn("wiki cache disabled", "path", cfg.WikiCachePath(), "error", err)
		} else {
			wiki = store
			cleanup = func() {
				if err := store.Close(); err != nil {
					logger.Warn("wiki cache close", "error", err)
				}
			}
		}
	}

	// --- Build the catalogue ---

	d := dispatch.New(logger)

	d.AddTool(tools.NewAskTool(pool, logger))
	d.AddTool(tools.NewQueryCodeTool(pool, logger))
	d.AddTool(tools.NewFileContentTool(pool, logger))

	d.AddResource(resources.NewStructureResource(pool, logger))
	d.AddResource(resources.NewWikiResource(wikiReader(wiki), logger))
	d.AddResource(resources.NewFilesResource(pool, logger))

	for _, p := range prompts.All() {
		d.AddPrompt(p)
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	d.Register(s)

	logger.Debug("mcp catalogue built",
		"tools", len(d.Catalogue().Tools),
		"resources", len(d.Catalogue().Resources),
		"prompts", len(d.Catalogue().Prompts),
	)

	return &Component{
		MCP:        s,
		Dispatcher: d,
		Pool:       pool,
		Wiki:       wiki,
		cleanup:    cleanup,
	}, nil
}

// wikiReader keeps a nil cache a nil interface value.
func wikiReader(w engine.WikiCache) engine.WikiCacheReader {
	if w == nil {
		return nil
	}
	return w
}

// noop is the cleanup used when nothing needs closing.
func noop() {}

// Resolver returns a function building a fresh Component from deps, for
// service.Manager.
func Resolver(deps Deps) func(ctx context.Context) (*Component, error) {
	return func(ctx context.Context) (*Component, error) {
		c, err := New(deps)
		if err != nil {
			return nil, fmt.Errorf("building mcp component: %w", err)
		}
		return c, nil
	}
}

// serverInstructions tells the client how to use the catalogue.
func serverInstructions() string {
	return `You have access to DeepWiki, a code repository question-answering server.

## Tools
- ask_deepwiki: ask a natural-language question about a repository. The
  repository is cloned and indexed on first use, which may take a while.
  Set deep_research for a more thorough investigation.
- query_code: search a repository for the code most relevant to a query.
- get_file_content: read one file from a repository by its relative path.

Every tool takes repo_url (a GitHub, GitLab or Bitbucket URL, or a local
path with repo_type=local) and an optional access_token for private
repositories.

## Resources
- repo://structure/{repo_url}: directory layout of a repository.
- repo://files/{repo_url}/{file_pattern}: files matching a glob pattern.
- wiki://cache/{owner}/{repo}/{repo_type}/{language}: a previously
  generated wiki, if one is cached.

Percent-encode repo_url when it is followed by another placeholder.

## Prompts
analyze_code_structure, debug_code_issue, explain_code_functionality and
code_review_checklist start common investigations of a repository.`
}
