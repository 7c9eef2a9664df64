package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/kratos06/deepwiki-open/internal/dispatch"
	"github.com/kratos06/deepwiki-open/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestNew_Catalogue(t *testing.T) {
	c, err := New(Deps{Config: testConfig(t), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	tools, resources, prompts := c.Dispatcher.Catalogue().Names()
	if got := strings.Join(tools, ","); got != "ask_deepwiki,query_code,get_file_content" {
		t.Errorf("tools = %s", got)
	}
	wantRes := "repo://structure/{repo_url},wiki://cache/{owner}/{repo}/{repo_type}/{language},repo://files/{repo_url}/{file_pattern}"
	if got := strings.Join(resources, ","); got != wantRes {
		t.Errorf("resources = %s", got)
	}
	if got := strings.Join(prompts, ","); got != "analyze_code_structure,debug_code_issue,explain_code_functionality,code_review_checklist" {
		t.Errorf("prompts = %s", got)
	}
	if c.MCP == nil || c.Pool == nil {
		t.Error("component is incomplete")
	}
	if c.Wiki == nil {
		t.Error("wiki cache should open under the data dir")
	}
}

func TestNew_WikiCacheFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	// A regular file where the data directory should be makes the cache
	// directory impossible to create.
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.DataDir = filepath.Join(blocker, "data")

	c, err := New(Deps{Config: cfg, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if c.Wiki != nil {
		t.Error("wiki cache should be disabled")
	}

	resp := c.Dispatcher.Dispatch(context.Background(), dispatch.Request{
		Category: dispatch.CategoryResource,
		Name:     "wiki://cache/a/b/github/en",
	})
	if resp.Kind != dispatch.KindJSON || !strings.Contains(string(resp.JSON), `"error"`) {
		t.Errorf("resp = %+v", resp)
	}
}

func TestNew_LocalRepositoryEndToEnd(t *testing.T) {
	repoDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(repoDir, "main.go"), []byte("package main\n\nfunc handleLogin() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(Deps{Config: testConfig(t), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	resp := c.Dispatcher.Dispatch(context.Background(), dispatch.Request{
		Category:  dispatch.CategoryTool,
		Name:      "query_code",
		Arguments: map[string]any{"repo_url": repoDir, "repo_type": "local", "query": "handleLogin", "provider": "ollama"},
	})
	if resp.Kind != dispatch.KindText || !strings.Contains(resp.Text, "main.go") {
		t.Errorf("resp = %+v", resp)
	}

	resp = c.Dispatcher.Dispatch(context.Background(), dispatch.Request{
		Category:  dispatch.CategoryTool,
		Name:      "get_file_content",
		Arguments: map[string]any{"repo_url": repoDir, "repo_type": "local", "file_path": "missing.go"},
	})
	if resp.Text != "Error: File 'missing.go' not found in repository" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestComponentCloseIsIdempotent(t *testing.T) {
	c, err := New(Deps{Config: testConfig(t), Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	c.Close()
	var nilComponent *Component
	nilComponent.Close()
}
