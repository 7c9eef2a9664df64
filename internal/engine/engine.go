// Package engine defines the collaborators the operation layer talks to:
// query engines, repository index managers and the wiki cache. It also
// owns the Pool that hands out one engine and one index per repository.
package engine

import (
	"context"
	"fmt"

	"github.com/kratos06/deepwiki-open/internal/keycache"
)

// RepoRef identifies a repository and how to reach it.
type RepoRef struct {
	// Location is a URL or, for type "local", a filesystem path.
	Location string `json:"location"`
	// Type is "github", "gitlab", "bitbucket" or "local".
	Type string `json:"type"`
	// AccessToken authenticates clones of private repositories.
	AccessToken string `json:"-"`
}

// Key returns the cache key for the repository.
func (r RepoRef) Key() string {
	return keycache.Key(r.Type, r.Location)
}

// Document is one retrieved piece of repository content.
type Document struct {
	FilePath string  `json:"file_path"`
	Text     string  `json:"text"`
	Score    float64 `json:"score,omitempty"`
}

// Kind tags a Result.
type Kind int

const (
	// KindDocuments carries retrieved documents without a generated answer.
	// Err may still be set when generation was attempted and failed.
	KindDocuments Kind = iota
	// KindAnswer carries a generated answer, plus the supporting documents.
	KindAnswer
	// KindError means the query could not be served at all.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindDocuments:
		return "documents"
	case KindAnswer:
		return "answer"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is what a QueryEngine returns. Exactly one Kind applies.
type Result struct {
	Kind      Kind
	Answer    string
	Documents []Document
	Err       error
}

// DocumentsResult builds a documents-only result. genErr, if non-nil,
// records why no answer was generated.
func DocumentsResult(docs []Document, genErr error) Result {
	return Result{Kind: KindDocuments, Documents: docs, Err: genErr}
}

// AnswerResult builds an answer result.
func AnswerResult(answer string, docs []Document) Result {
	return Result{Kind: KindAnswer, Answer: answer, Documents: docs}
}

// ErrorResult builds an error result.
func ErrorResult(err error) Result {
	return Result{Kind: KindError, Err: err}
}

// Query is a question against a prepared engine.
type Query struct {
	Text     string
	Language string
	// Generate asks for a generated answer; false retrieves documents only.
	Generate bool
}

// QueryEngine answers questions about one repository.
type QueryEngine interface {
	// Prepare indexes the repository. It is called once, before Answer.
	Prepare(ctx context.Context, ref RepoRef) error
	Answer(ctx context.Context, q Query) Result
}

// IndexManager materializes a repository on local disk.
type IndexManager interface {
	Prepare(ctx context.Context, ref RepoRef) error
	// RootPath is the local checkout, or "" when preparation failed.
	RootPath() string
}

// WikiKey addresses one cached wiki.
type WikiKey struct {
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	RepoType string `json:"repo_type"`
	Language string `json:"language"`
}

// WikiCacheReader reads generated wiki structures.
type WikiCacheReader interface {
	// Read returns the cached JSON document and whether one exists.
	Read(ctx context.Context, key WikiKey) ([]byte, bool, error)
}

// WikiEntry describes one cached wiki without its payload.
type WikiEntry struct {
	WikiKey
	Size      int    `json:"size"`
	UpdatedAt string `json:"updated_at"`
}

// WikiCache is the read-write cache used by the web host.
type WikiCache interface {
	WikiCacheReader
	// Save stores data, which must be a JSON document, replacing any
	// previous entry for key.
	Save(ctx context.Context, key WikiKey, data []byte) error
	// Delete removes the entry and reports whether one existed.
	Delete(ctx context.Context, key WikiKey) (bool, error)
	List(ctx context.Context) ([]WikiEntry, error)
}

// CollaboratorError wraps a failure reported by an engine, index manager or
// cache. The operation layer turns it into a response payload.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
