// Package retrieval embeds a query and searches one or many namespaces of
// a subject index.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"bookrag/internal/domain"
	"bookrag/internal/vectorindex"
)

const DefaultOverFetch = 2

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	// DefaultNamespace is searched for subjects that are not sharded.
	DefaultNamespace string
	// OverFetch multiplies topK for the merged result size.
	OverFetch int
	// Sharded maps a subject to the namespace prefix of its partitions.
	Sharded map[string]string
	// MaxParallel bounds concurrent shard queries; 0 means unbounded.
	MaxParallel int
}

type Retriever struct {
	embedder Embedder
	gateway  vectorindex.Gateway
	cfg      Config
}

func New(embedder Embedder, gateway vectorindex.Gateway, cfg Config) *Retriever {
	if cfg.OverFetch <= 0 {
		cfg.OverFetch = DefaultOverFetch
	}
	return &Retriever{embedder: embedder, gateway: gateway, cfg: cfg}
}

// Retrieve returns up to topK*OverFetch matches ordered by descending
// score. An empty result means nothing relevant was found.
func (r *Retriever) Retrieve(ctx context.Context, query, subject string, topK int) ([]domain.SearchMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.Errorf(domain.ErrValidation, "retrieve", "query is empty")
	}
	if err := domain.ValidateSubject(subject); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, domain.Errorf(domain.ErrValidation, "retrieve", "topK must be positive, got %d", topK)
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	idx, err := r.gateway.Connect(ctx, subject)
	if err != nil {
		return nil, err
	}

	limit := topK * r.cfg.OverFetch
	prefix, sharded := r.cfg.Sharded[subject]
	if !sharded {
		matches, err := idx.Query(ctx, r.cfg.DefaultNamespace, vector, topK, true)
		if err != nil {
			return nil, err
		}
		vectorindex.SortMatches(matches)
		return vectorindex.Truncate(matches, limit), nil
	}

	namespaces, err := r.shards(ctx, idx, prefix)
	if err != nil {
		return nil, err
	}
	perShard := make([][]domain.SearchMatch, len(namespaces))
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.MaxParallel > 0 {
		g.SetLimit(r.cfg.MaxParallel)
	}
	for k, ns := range namespaces {
		k, ns := k, ns
		g.Go(func() error {
			matches, err := idx.Query(gctx, ns, vector, limit, true)
			if err != nil {
				return fmt.Errorf("query namespace %s: %w", ns, err)
			}
			perShard[k] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []domain.SearchMatch
	for _, matches := range perShard {
		merged = append(merged, matches...)
	}
	vectorindex.SortMatches(merged)
	return vectorindex.Truncate(merged, limit), nil
}

func (r *Retriever) shards(ctx context.Context, idx vectorindex.Index, prefix string) ([]string, error) {
	all, err := idx.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ns := range all {
		if strings.HasPrefix(ns, prefix) {
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out, nil
}
