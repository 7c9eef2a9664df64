package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- Test helpers ---

type fakeEngine struct {
	result  engine.Result
	queries []engine.Query
}

func (e *fakeEngine) Prepare(ctx context.Context, ref engine.RepoRef) error { return nil }

func (e *fakeEngine) Answer(ctx context.Context, q engine.Query) engine.Result {
	e.queries = append(e.queries, q)
	return e.result
}

type fakeIndex struct{ root string }

func (i fakeIndex) Prepare(ctx context.Context, ref engine.RepoRef) error { return nil }
func (i fakeIndex) RootPath() string                                      { return i.root }

type fakeSource struct {
	eng      *fakeEngine
	engErr   error
	index    engine.IndexManager
	indexErr error
	params   []engine.Params
}

func (s *fakeSource) QueryEngine(ctx context.Context, p engine.Params) (engine.QueryEngine, error) {
	s.params = append(s.params, p)
	if s.engErr != nil {
		return nil, s.engErr
	}
	return s.eng, nil
}

func (s *fakeSource) Index(ctx context.Context, ref engine.RepoRef) (engine.IndexManager, error) {
	if s.indexErr != nil {
		return nil, s.indexErr
	}
	return s.index, nil
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// isErrorResult checks if a CallToolResult represents an error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func docs(n int, size int) []engine.Document {
	out := make([]engine.Document, n)
	for i := range out {
		out[i] = engine.Document{FilePath: "pkg/file" + string(rune('a'+i)) + ".go", Text: strings.Repeat("x", size)}
	}
	return out
}

// --- AskTool ---

func TestAskTool_Definition(t *testing.T) {
	def := NewAskTool(&fakeSource{}, nil).Definition()
	if def.Name != "ask_deepwiki" {
		t.Errorf("name = %s", def.Name)
	}
	required := strings.Join(def.InputSchema.Required, ",")
	if !strings.Contains(required, "repo_url") || !strings.Contains(required, "question") {
		t.Errorf("required = %v", def.InputSchema.Required)
	}
	if _, ok := def.InputSchema.Properties["deep_research"]; !ok {
		t.Error("missing deep_research property")
	}
}

func TestAskTool_Answer(t *testing.T) {
	src := &fakeSource{eng: &fakeEngine{result: engine.AnswerResult("It is a CLI.", nil)}}
	result, err := NewAskTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url":      "https://github.com/a/b",
		"question":      "What is it?",
		"provider":      "openai",
		"deep_research": true,
		"language":      "ja",
	}))
	if err != nil || isErrorResult(result) {
		t.Fatalf("unexpected failure: %v %s", err, getResultText(result))
	}
	if getResultText(result) != "It is a CLI." {
		t.Errorf("text = %q", getResultText(result))
	}
	q := src.eng.queries[0]
	if q.Text != "[DEEP RESEARCH] What is it?" || q.Language != "ja" || !q.Generate {
		t.Errorf("query = %+v", q)
	}
	p := src.params[0]
	if p.Provider != "openai" || p.Ref.Type != "github" || p.Ref.Key() != "github:https://github.com/a/b" {
		t.Errorf("params = %+v", p)
	}
}

func TestAskTool_GenerationFailureFallsBackToDocuments(t *testing.T) {
	src := &fakeSource{eng: &fakeEngine{result: engine.DocumentsResult(docs(4, 600), errors.New("quota"))}}
	result, _ := NewAskTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url": "https://github.com/a/b",
		"question": "q",
	}))
	text := getResultText(result)
	if !strings.HasPrefix(text, "Based on the repository content:\n\n**pkg/filea.go:**\n") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, "filed.go") {
		t.Error("only the top 3 documents should be shown")
	}
	if !strings.Contains(text, strings.Repeat("x", 500)+"...") || strings.Contains(text, strings.Repeat("x", 501)) {
		t.Error("previews should be cut to 500 characters")
	}
}

func TestAskTool_NoDocuments(t *testing.T) {
	src := &fakeSource{eng: &fakeEngine{result: engine.DocumentsResult(nil, errors.New("quota"))}}
	result, _ := NewAskTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url": "https://github.com/a/b",
		"question": "q",
	}))
	if !strings.HasPrefix(getResultText(result), "I couldn't find relevant information") {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestAskTool_CollaboratorFailure(t *testing.T) {
	src := &fakeSource{engErr: &engine.CollaboratorError{Op: "prepare retriever", Err: errors.New("clone failed")}}
	result, err := NewAskTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url": "https://github.com/a/b",
		"question": "q",
	}))
	if err != nil || isErrorResult(result) {
		t.Fatal("collaborator failures must be successful-shaped text")
	}
	if getResultText(result) != "Error processing your question: prepare retriever: clone failed" {
		t.Errorf("text = %q", getResultText(result))
	}

	src = &fakeSource{eng: &fakeEngine{result: engine.ErrorResult(errors.New("index gone"))}}
	result, _ = NewAskTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url": "https://github.com/a/b",
		"question": "q",
	}))
	if getResultText(result) != "Error processing your question: index gone" {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestAskTool_MissingArguments(t *testing.T) {
	tool := NewAskTool(&fakeSource{}, nil)
	result, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{"repo_url": "x"}))
	if !isErrorResult(result) {
		t.Error("missing question should be an error result")
	}
	result, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{"question": "q"}))
	if !isErrorResult(result) {
		t.Error("missing repo_url should be an error result")
	}
}

// --- QueryCodeTool ---

func TestQueryCodeTool_Findings(t *testing.T) {
	src := &fakeSource{eng: &fakeEngine{result: engine.DocumentsResult(docs(5, 250), nil)}}
	result, _ := NewQueryCodeTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url":  "https://gitlab.com/a/b",
		"repo_type": "gitlab",
		"query":     "auth",
	}))
	text := getResultText(result)
	if !strings.HasPrefix(text, "Based on the repository content, here are the most relevant findings:\n\n**File: pkg/filea.go**\n") {
		t.Errorf("text = %q", text)
	}
	if strings.Count(text, "\n\n---\n\n") != 2 {
		t.Errorf("expected 3 sections, got %q", text)
	}
	if !strings.Contains(text, strings.Repeat("x", 200)+"...") {
		t.Error("previews should be cut to 200 characters")
	}
	if src.eng.queries[0].Generate {
		t.Error("query_code must not generate")
	}
	if src.params[0].Ref.Key() != "gitlab:https://gitlab.com/a/b" {
		t.Errorf("key = %s", src.params[0].Ref.Key())
	}
}

func TestQueryCodeTool_ShortDocumentNotTruncated(t *testing.T) {
	src := &fakeSource{eng: &fakeEngine{result: engine.DocumentsResult([]engine.Document{{FilePath: "a.go", Text: "short"}}, nil)}}
	result, _ := NewQueryCodeTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url": "https://github.com/a/b",
		"query":    "q",
	}))
	if !strings.HasSuffix(getResultText(result), "**File: a.go**\nshort") {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestQueryCodeTool_NoResults(t *testing.T) {
	src := &fakeSource{eng: &fakeEngine{result: engine.DocumentsResult(nil, nil)}}
	result, _ := NewQueryCodeTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url": "https://github.com/a/b",
		"query":    "q",
	}))
	if getResultText(result) != "No relevant information found in the repository for your query." {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestQueryCodeTool_CollaboratorFailure(t *testing.T) {
	src := &fakeSource{engErr: errors.New("bad provider")}
	result, err := NewQueryCodeTool(src, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url": "https://github.com/a/b",
		"query":    "q",
	}))
	if err != nil || isErrorResult(result) {
		t.Fatal("collaborator failures must be successful-shaped text")
	}
	if getResultText(result) != "Error processing query: bad provider" {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestQueryCodeTool_EngineConstructionPanicIsText(t *testing.T) {
	pool := engine.NewPool(func(ctx context.Context, p engine.Params) (engine.QueryEngine, error) {
		panic("engine construction blew up")
	}, nil)
	result, err := NewQueryCodeTool(pool, nil).Handle(context.Background(), makeReq(map[string]interface{}{
		"repo_url": "https://github.com/a/b",
		"query":    "q",
	}))
	if err != nil || isErrorResult(result) {
		t.Fatal("a panicking constructor must become successful-shaped text")
	}
	text := getResultText(result)
	if !strings.HasPrefix(text, "Error processing query: create query engine: ") || !strings.Contains(text, "engine construction blew up") {
		t.Errorf("text = %q", text)
	}
}

func TestRepoRef_TypeDetectedFromURL(t *testing.T) {
	tests := []struct {
		args map[string]interface{}
		want string
	}{
		{map[string]interface{}{"repo_url": "https://gitlab.com/a/b"}, "gitlab:https://gitlab.com/a/b"},
		{map[string]interface{}{"repo_url": "https://bitbucket.org/a/b"}, "bitbucket:https://bitbucket.org/a/b"},
		{map[string]interface{}{"repo_url": "https://example.com/a/b"}, "github:https://example.com/a/b"},
		{map[string]interface{}{"repo_url": " https://gitlab.com/a/b ", "repo_type": "github"}, "github:https://gitlab.com/a/b"},
	}
	for _, tt := range tests {
		if got := repoRef(makeReq(tt.args)).Key(); got != tt.want {
			t.Errorf("repoRef(%v).Key() = %q, want %q", tt.args, got, tt.want)
		}
	}
}

// --- FileContentTool ---

func repoWithFiles(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bin := make([]byte, 1500)
	for i := range bin {
		bin[i] = byte(0xE9) // 'é' in Latin-1, invalid as lone UTF-8
	}
	if err := os.WriteFile(filepath.Join(root, "blob.bin"), bin, 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func fileReq(path string) mcp.CallToolRequest {
	return makeReq(map[string]interface{}{
		"repo_url":  "https://github.com/a/b",
		"file_path": path,
	})
}

func TestFileContentTool_Text(t *testing.T) {
	src := &fakeSource{index: fakeIndex{root: repoWithFiles(t)}}
	result, _ := NewFileContentTool(src, nil).Handle(context.Background(), fileReq("src/main.go"))
	if getResultText(result) != "File: src/main.go\n\npackage main\n" {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestFileContentTool_Binary(t *testing.T) {
	src := &fakeSource{index: fakeIndex{root: repoWithFiles(t)}}
	result, _ := NewFileContentTool(src, nil).Handle(context.Background(), fileReq("blob.bin"))
	text := getResultText(result)
	want := "File: blob.bin (binary content)\n\n" + strings.Repeat("é", 1000) + "..."
	if text != want {
		t.Errorf("binary preview mismatch: len=%d prefix=%q", len(text), text[:min(len(text), 40)])
	}
}

func TestFileContentTool_NotFound(t *testing.T) {
	src := &fakeSource{index: fakeIndex{root: repoWithFiles(t)}}
	tool := NewFileContentTool(src, nil)
	for _, p := range []string{"missing.go", "src", "../../etc/passwd"} {
		result, err := tool.Handle(context.Background(), fileReq(p))
		if err != nil || isErrorResult(result) {
			t.Fatalf("%s: expected successful-shaped result", p)
		}
		want := "Error: File '" + p + "' not found in repository"
		if getResultText(result) != want {
			t.Errorf("%s: text = %q, want %q", p, getResultText(result), want)
		}
	}
}

func TestFileContentTool_NotIndexed(t *testing.T) {
	src := &fakeSource{index: fakeIndex{root: ""}}
	result, _ := NewFileContentTool(src, nil).Handle(context.Background(), fileReq("a.go"))
	if getResultText(result) != "Error: Repository not found or not indexed" {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestFileContentTool_IndexFailure(t *testing.T) {
	src := &fakeSource{indexErr: errors.New("clone failed")}
	result, err := NewFileContentTool(src, nil).Handle(context.Background(), fileReq("a.go"))
	if err != nil || isErrorResult(result) {
		t.Fatal("collaborator failures must be successful-shaped text")
	}
	if getResultText(result) != "Error reading file: clone failed" {
		t.Errorf("text = %q", getResultText(result))
	}
}

func TestPreview(t *testing.T) {
	if preview("héllo", 5) != "héllo" {
		t.Error("exact length should not be cut")
	}
	if preview("héllo", 2) != "hé..." {
		t.Errorf("preview = %q", preview("héllo", 2))
	}
}
