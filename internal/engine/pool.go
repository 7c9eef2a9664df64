package engine

import (
	"context"
	"errors"

	"github.com/kratos06/deepwiki-open/internal/keycache"
)

// Params selects the engine configuration for a repository. Provider and
// Model only matter for the first request on a repository: later requests
// reuse the engine built then.
type Params struct {
	Ref      RepoRef
	Provider string
	Model    string
}

// EngineFactory builds an unprepared QueryEngine.
type EngineFactory func(ctx context.Context, p Params) (QueryEngine, error)

// IndexFactory builds an unprepared IndexManager.
type IndexFactory func(ctx context.Context, ref RepoRef) (IndexManager, error)

// Pool hands out one QueryEngine and one IndexManager per repository key,
// building each at most once even under concurrent first use.
type Pool struct {
	engines  *keycache.Cache[QueryEngine]
	indexes  *keycache.Cache[IndexManager]
	newEng   EngineFactory
	newIndex IndexFactory
}

// NewPool creates a Pool over the given factories.
func NewPool(newEngine EngineFactory, newIndex IndexFactory) *Pool {
	return &Pool{
		engines:  keycache.New[QueryEngine](),
		indexes:  keycache.New[IndexManager](),
		newEng:   newEngine,
		newIndex: newIndex,
	}
}

// QueryEngine returns the prepared engine for p.Ref, building and
// preparing it on first use. A failed build or prepare is not cached.
func (p *Pool) QueryEngine(ctx context.Context, params Params) (QueryEngine, error) {
	if p.newEng == nil {
		return nil, &CollaboratorError{Op: "create query engine", Err: errors.New("no engine factory configured")}
	}
	eng, err := p.engines.GetOrCreate(ctx, params.Ref.Key(), func(ctx context.Context) (QueryEngine, error) {
		eng, err := p.newEng(ctx, params)
		if err != nil {
			return nil, &CollaboratorError{Op: "create query engine", Err: err}
		}
		if err := eng.Prepare(ctx, params.Ref); err != nil {
			return nil, &CollaboratorError{Op: "prepare retriever", Err: err}
		}
		return eng, nil
	})
	return eng, wrapPanic("create query engine", err)
}

// Index returns the prepared index manager for ref. A failed prepare is
// not cached, so the next request retries.
func (p *Pool) Index(ctx context.Context, ref RepoRef) (IndexManager, error) {
	if p.newIndex == nil {
		return nil, &CollaboratorError{Op: "create index", Err: errors.New("no index factory configured")}
	}
	im, err := p.indexes.GetOrCreate(ctx, ref.Key(), func(ctx context.Context) (IndexManager, error) {
		im, err := p.newIndex(ctx, ref)
		if err != nil {
			return nil, &CollaboratorError{Op: "create index", Err: err}
		}
		if err := im.Prepare(ctx, ref); err != nil {
			return nil, &CollaboratorError{Op: "prepare repository", Err: err}
		}
		return im, nil
	})
	return im, wrapPanic("create index", err)
}

// wrapPanic reports a recovered constructor panic as a collaborator
// failure. Other errors pass through unchanged.
func wrapPanic(op string, err error) error {
	var pe *keycache.PanicError
	if errors.As(err, &pe) {
		return &CollaboratorError{Op: op, Err: err}
	}
	return err
}

// Stats describes the pool contents.
type Stats struct {
	Engines []string `json:"engines"`
	Indexes []string `json:"indexes"`
}

// Stats lists the repository keys with a live engine or index.
func (p *Pool) Stats() Stats {
	return Stats{
		Engines: p.engines.Keys(),
		Indexes: p.indexes.Keys(),
	}
}

// Source is the part of the Pool the operation layer depends on.
type Source interface {
	QueryEngine(ctx context.Context, params Params) (QueryEngine, error)
	Index(ctx context.Context, ref RepoRef) (IndexManager, error)
}

var _ Source = (*Pool)(nil)
