// Package rag is the built-in query engine: a lexical retriever over the
// repository's text files, optionally followed by answer generation.
package rag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/kratos06/deepwiki-open/internal/llm"
	"github.com/kratos06/deepwiki-open/internal/repo"
)

// ErrNotPrepared is reported when Answer runs before a successful Prepare.
var ErrNotPrepared = errors.New("rag: retriever not prepared")

// Options tunes retrieval.
type Options struct {
	TopK         int
	ChunkLines   int
	MaxFileBytes int64
}

// Locator resolves a repository to its local checkout.
type Locator func(ctx context.Context, ref engine.RepoRef) (string, error)

type chunk struct {
	path  string
	start int
	text  string
	terms map[string]int
}

// Engine implements engine.QueryEngine.
type Engine struct {
	gen    llm.Generator
	locate Locator
	opts   Options

	mu     sync.RWMutex
	chunks []chunk
	df     map[string]int
	ready  bool
}

// New creates an unprepared Engine. gen may be nil, in which case only
// documents are returned.
func New(gen llm.Generator, locate Locator, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.ChunkLines <= 0 {
		opts.ChunkLines = 60
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 1 << 20
	}
	return &Engine{gen: gen, locate: locate, opts: opts}
}

// Factory builds engines from configuration, using the requested provider
// and model (or the configured defaults).
func Factory(cfg *config.Config, locate Locator) engine.EngineFactory {
	opts := Options{
		TopK:         cfg.Engine.TopK,
		ChunkLines:   cfg.Engine.ChunkLines,
		MaxFileBytes: cfg.Engine.MaxFileBytes,
	}
	return func(ctx context.Context, p engine.Params) (engine.QueryEngine, error) {
		gen, err := llm.FromConfig(cfg, p.Provider, p.Model)
		if err != nil {
			return nil, err
		}
		return New(gen, locate, opts), nil
	}
}

// Prepare locates the repository and indexes its text files.
func (e *Engine) Prepare(ctx context.Context, ref engine.RepoRef) error {
	root, err := e.locate(ctx, ref)
	if err != nil {
		return err
	}
	if root == "" {
		return fmt.Errorf("repository %s is not available locally", ref.Location)
	}

	var chunks []chunk
	df := map[string]int{}
	err = repo.WalkTree(root, func(rel string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() == 0 || info.Size() > e.opts.MaxFileBytes {
			return nil
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !isText(data) {
			return nil
		}
		for _, c := range split(rel, string(data), e.opts.ChunkLines) {
			for term := range c.terms {
				df[term]++
			}
			chunks = append(chunks, c)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", root, err)
	}

	e.mu.Lock()
	e.chunks = chunks
	e.df = df
	e.ready = true
	e.mu.Unlock()
	return nil
}

// Answer retrieves the most relevant chunks and, when asked, generates an
// answer from them. Generation failures degrade to a documents-only
// result carrying the error.
func (e *Engine) Answer(ctx context.Context, q engine.Query) engine.Result {
	docs, err := e.Retrieve(q.Text)
	if err != nil {
		return engine.ErrorResult(err)
	}
	if !q.Generate {
		return engine.DocumentsResult(docs, nil)
	}
	if e.gen == nil {
		return engine.DocumentsResult(docs, errors.New("no generator configured"))
	}
	answer, err := e.gen.Generate(ctx, buildPrompt(q, docs))
	if err != nil {
		return engine.DocumentsResult(docs, err)
	}
	return engine.AnswerResult(answer, docs)
}

// Retrieve returns up to TopK chunks ranked by TF-IDF against query.
func (e *Engine) Retrieve(query string) ([]engine.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready {
		return nil, ErrNotPrepared
	}

	qterms := tokenize(query)
	if len(qterms) == 0 {
		return nil, nil
	}
	n := float64(len(e.chunks))

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, c := range e.chunks {
		var s float64
		for term := range qterms {
			tf := c.terms[term]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + n/float64(e.df[term]))
			s += (1 + math.Log(float64(tf))) * idf
		}
		if s > 0 {
			hits = append(hits, scored{i, s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > e.opts.TopK {
		hits = hits[:e.opts.TopK]
	}

	docs := make([]engine.Document, 0, len(hits))
	for _, h := range hits {
		c := e.chunks[h.idx]
		docs = append(docs, engine.Document{FilePath: c.path, Text: c.text, Score: h.score})
	}
	return docs, nil
}

// Chunks reports how many chunks are indexed.
func (e *Engine) Chunks() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.chunks)
}

func split(path, text string, size int) []chunk {
	lines := strings.Split(text, "\n")
	var out []chunk
	for start := 0; start < len(lines); start += size {
		end := min(start+size, len(lines))
		body := strings.Join(lines[start:end], "\n")
		terms := map[string]int{}
		for _, tok := range tokens(body) {
			terms[tok]++
		}
		// The path is searchable too.
		for _, tok := range tokens(path) {
			terms[tok]++
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		out = append(out, chunk{path: path, start: start + 1, text: body, terms: terms})
	}
	return out
}

func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range tokens(s) {
		out[t] = struct{}{}
	}
	return out
}

func isText(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	return utf8.Valid(data)
}

var languageNames = map[string]string{
	"en": "English",
	"ja": "Japanese",
	"zh": "Mandarin Chinese",
	"es": "Spanish",
	"kr": "Korean",
	"ko": "Korean",
	"vi": "Vietnamese",
	"fr": "French",
	"de": "German",
	"pt": "Portuguese",
	"ru": "Russian",
}

func buildPrompt(q engine.Query, docs []engine.Document) string {
	lang := languageNames[strings.ToLower(q.Language)]
	if lang == "" {
		lang = "English"
	}
	var sb strings.Builder
	sb.WriteString("You are an expert on the code repository described by the context below.\n")
	fmt.Fprintf(&sb, "Answer the question in %s. Cite file paths when relevant. ", lang)
	sb.WriteString("If the context does not contain the answer, say so.\n\n")
	sb.WriteString("<context>\n")
	for _, d := range docs {
		fmt.Fprintf(&sb, "<file path=%q>\n%s\n</file>\n", d.FilePath, d.Text)
	}
	sb.WriteString("</context>\n\n")
	fmt.Fprintf(&sb, "Question: %s\n", q.Text)
	return sb.String()
}
