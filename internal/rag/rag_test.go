package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/kratos06/deepwiki-open/internal/llm"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "README.md", "# Demo\nA tiny service that stores invoices.\n")
	writeFile(t, root, "store/sqlite.go", "package store\n\n// Open opens the sqlite database.\nfunc Open() {}\n")
	writeFile(t, root, "auth/login.go", "package auth\n\nfunc Login(user, password string) bool { return false }\n")
	writeFile(t, root, "assets/logo.png", "\x89PNG\x00\x00sqlite")
	writeFile(t, root, "node_modules/pkg/index.js", "sqlite sqlite sqlite")
	return root
}

func staticLocator(root string) Locator {
	return func(ctx context.Context, ref engine.RepoRef) (string, error) { return root, nil }
}

func prepared(t *testing.T, gen llm.Generator) *Engine {
	t.Helper()
	e := New(gen, staticLocator(fixture(t)), Options{TopK: 2})
	if err := e.Prepare(context.Background(), engine.RepoRef{Location: "local", Type: "local"}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return e
}

func TestPrepare_SkipsBinaryAndExcluded(t *testing.T) {
	e := prepared(t, nil)
	if e.Chunks() != 3 {
		t.Errorf("Chunks = %d, want 3", e.Chunks())
	}
	docs, err := e.Retrieve("sqlite")
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range docs {
		if strings.HasPrefix(d.FilePath, "node_modules/") || strings.HasSuffix(d.FilePath, ".png") {
			t.Errorf("unexpected document %s", d.FilePath)
		}
	}
}

func TestRetrieve_Ranking(t *testing.T) {
	e := prepared(t, nil)
	docs, err := e.Retrieve("how does login check the password?")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) == 0 || docs[0].FilePath != "auth/login.go" {
		t.Fatalf("docs = %+v, want auth/login.go first", docs)
	}
	if docs[0].Score <= 0 {
		t.Errorf("score = %f", docs[0].Score)
	}
}

func TestRetrieve_TopK(t *testing.T) {
	e := prepared(t, nil)
	docs, _ := e.Retrieve("package store auth sqlite invoices demo")
	if len(docs) > 2 {
		t.Errorf("len(docs) = %d, want at most 2", len(docs))
	}
}

func TestRetrieve_NoMatch(t *testing.T) {
	e := prepared(t, nil)
	docs, err := e.Retrieve("kubernetes")
	if err != nil || len(docs) != 0 {
		t.Errorf("got %v, %v", docs, err)
	}
}

func TestAnswer_NotPrepared(t *testing.T) {
	e := New(nil, staticLocator(t.TempDir()), Options{})
	res := e.Answer(context.Background(), engine.Query{Text: "x"})
	if res.Kind != engine.KindError || !errors.Is(res.Err, ErrNotPrepared) {
		t.Errorf("result = %+v", res)
	}
}

func TestAnswer_DocumentsOnly(t *testing.T) {
	called := false
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		called = true
		return "x", nil
	})
	e := prepared(t, gen)
	res := e.Answer(context.Background(), engine.Query{Text: "sqlite"})
	if res.Kind != engine.KindDocuments || len(res.Documents) == 0 {
		t.Errorf("result = %+v", res)
	}
	if called {
		t.Error("generator should not run when Generate is false")
	}
}

func TestAnswer_Generated(t *testing.T) {
	var prompt string
	gen := llm.GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "It opens a sqlite database.", nil
	})
	e := prepared(t, gen)
	res := e.Answer(context.Background(), engine.Query{Text: "sqlite", Language: "ja", Generate: true})
	if res.Kind != engine.KindAnswer || res.Answer != "It opens a sqlite database." {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(prompt, "Japanese") || !strings.Contains(prompt, "store/sqlite.go") {
		t.Errorf("prompt missing language or context:\n%s", prompt)
	}
}

func TestAnswer_GenerationFailureKeepsDocuments(t *testing.T) {
	boom := errors.New("rate limited")
	gen := llm.GeneratorFunc(func(ctx context.Context, p string) (string, error) { return "", boom })
	e := prepared(t, gen)
	res := e.Answer(context.Background(), engine.Query{Text: "sqlite", Generate: true})
	if res.Kind != engine.KindDocuments || !errors.Is(res.Err, boom) || len(res.Documents) == 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestPrepare_LocatorError(t *testing.T) {
	e := New(nil, func(ctx context.Context, ref engine.RepoRef) (string, error) {
		return "", errors.New("clone failed")
	}, Options{})
	if err := e.Prepare(context.Background(), engine.RepoRef{Location: "https://github.com/a/b"}); err == nil {
		t.Error("expected error")
	}
}

func TestFactory_UnknownProvider(t *testing.T) {
	f := Factory(config.Default(), staticLocator(t.TempDir()))
	if _, err := f(context.Background(), engine.Params{Provider: "bard"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	qe, err := f(context.Background(), engine.Params{Provider: llm.ProviderOllama})
	if err != nil || qe == nil {
		t.Errorf("ollama engine: %v", err)
	}
}
