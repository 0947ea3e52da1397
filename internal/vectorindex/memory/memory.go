// Package memory is an in-process vector index for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"bookrag/internal/domain"
	"bookrag/internal/vectorindex"
)

// Gateway hands out in-memory indexes by name. With no names configured any
// name connects and is created on first use.
type Gateway struct {
	mu      sync.Mutex
	indexes map[string]*Index
	fixed   bool
}

var _ vectorindex.Gateway = (*Gateway)(nil)

func NewGateway(names ...string) *Gateway {
	g := &Gateway{indexes: make(map[string]*Index), fixed: len(names) > 0}
	for _, name := range names {
		g.indexes[name] = newIndex(name)
	}
	return g
}

func (g *Gateway) Connect(ctx context.Context, name string) (vectorindex.Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, vectorindex.ConnectionError(name, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.indexes[name]
	if !ok {
		if g.fixed {
			return nil, domain.Errorf(domain.ErrIndexConnection, "connect", "index %q does not exist", name)
		}
		idx = newIndex(name)
		g.indexes[name] = idx
	}
	return idx, nil
}

type record struct {
	values   []float32
	metadata domain.PassageMetadata
}

type namespace struct {
	order   []string
	records map[string]record
}

type Index struct {
	name string

	mu         sync.RWMutex
	dimension  int
	namespaces map[string]*namespace
}

var _ vectorindex.Index = (*Index)(nil)

func newIndex(name string) *Index {
	return &Index{name: name, namespaces: make(map[string]*namespace)}
}

func (i *Index) Name() string { return i.name }

func (i *Index) Upsert(ctx context.Context, ns string, passages []domain.IndexedPassage) error {
	if err := ctx.Err(); err != nil {
		return vectorindex.QueryError("upsert", err)
	}
	if err := vectorindex.ValidatePassages(passages); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	dim := i.dimension
	for _, p := range passages {
		if dim == 0 {
			dim = len(p.Values)
		}
		if len(p.Values) != dim {
			return domain.Errorf(domain.ErrIndexQuery, "upsert",
				"vector %q has dimension %d, index %q expects %d", p.ID, len(p.Values), i.name, dim)
		}
	}
	i.dimension = dim

	space, ok := i.namespaces[ns]
	if !ok {
		space = &namespace{records: make(map[string]record)}
		i.namespaces[ns] = space
	}
	for _, p := range passages {
		if _, exists := space.records[p.ID]; !exists {
			space.order = append(space.order, p.ID)
		}
		values := make([]float32, len(p.Values))
		copy(values, p.Values)
		space.records[p.ID] = record{values: values, metadata: p.Metadata}
	}
	return nil
}

func (i *Index) Query(ctx context.Context, ns string, vector []float32, topK int, includeMetadata bool) ([]domain.SearchMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, vectorindex.QueryError("query", err)
	}
	if topK <= 0 {
		return nil, domain.Errorf(domain.ErrValidation, "query", "topK must be positive, got %d", topK)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.dimension != 0 && len(vector) != i.dimension {
		return nil, domain.Errorf(domain.ErrIndexQuery, "query",
			"query vector has dimension %d, index %q expects %d", len(vector), i.name, i.dimension)
	}
	space, ok := i.namespaces[ns]
	if !ok {
		return nil, nil
	}

	matches := make([]domain.SearchMatch, 0, len(space.order))
	for _, id := range space.order {
		rec := space.records[id]
		m := domain.SearchMatch{
			ID:          id,
			Score:       vectorindex.CosineSimilarity(vector, rec.values),
			ChunkNumber: -1,
			Namespace:   ns,
		}
		if includeMetadata {
			m.Text = rec.metadata.Text
			m.ChunkNumber = rec.metadata.ChunkNumber
		}
		matches = append(matches, m)
	}
	vectorindex.SortMatches(matches)
	return vectorindex.Truncate(matches, topK), nil
}

func (i *Index) ListNamespaces(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, vectorindex.QueryError("list namespaces", err)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, 0, len(i.namespaces))
	for ns := range i.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

func (i *Index) Count(ctx context.Context, ns string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, vectorindex.QueryError("count", err)
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if space, ok := i.namespaces[ns]; ok {
		return len(space.records), nil
	}
	return 0, nil
}
