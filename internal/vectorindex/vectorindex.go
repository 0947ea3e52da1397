// Package vectorindex defines the gateway to similarity indexes. Backends
// live in the subpackages; none of them retries.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"bookrag/internal/domain"
)

// Gateway resolves an index name and opens it.
type Gateway interface {
	Connect(ctx context.Context, indexName string) (Index, error)
}

// Index is a connected similarity index. Upserting an existing id in a
// namespace replaces the record.
type Index interface {
	Name() string
	Upsert(ctx context.Context, namespace string, passages []domain.IndexedPassage) error
	Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]domain.SearchMatch, error)
	ListNamespaces(ctx context.Context) ([]string, error)
	Count(ctx context.Context, namespace string) (int, error)
}

// Resolver maps a logical index name to an endpoint.
type Resolver func(name string) (string, error)

// StaticResolver looks name up in hosts, then falls back to template with
// "{name}" substituted.
func StaticResolver(hosts map[string]string, template string) Resolver {
	return func(name string) (string, error) {
		if host, ok := hosts[name]; ok && host != "" {
			return host, nil
		}
		if template != "" {
			return strings.ReplaceAll(template, "{name}", name), nil
		}
		return "", domain.Errorf(domain.ErrIndexConnection, "resolve index", "no endpoint configured for index %q", name)
	}
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortMatches orders matches by descending score; equal scores keep their
// relative order.
func SortMatches(matches []domain.SearchMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

// Truncate returns at most n matches.
func Truncate(matches []domain.SearchMatch, n int) []domain.SearchMatch {
	if n >= 0 && len(matches) > n {
		return matches[:n]
	}
	return matches
}

// ValidatePassages rejects records no backend can store.
func ValidatePassages(passages []domain.IndexedPassage) error {
	for i, p := range passages {
		if strings.TrimSpace(p.ID) == "" {
			return domain.Errorf(domain.ErrValidation, "upsert", "passage %d has no id", i)
		}
		if len(p.Values) == 0 {
			return domain.Errorf(domain.ErrValidation, "upsert", "passage %q has no vector", p.ID)
		}
	}
	return nil
}

// QueryError classifies a failed backend call.
func QueryError(op string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return domain.Wrap(domain.ErrCancelled, op, err, "index call cancelled")
	}
	return domain.Wrap(domain.ErrIndexQuery, op, err, fmt.Sprintf("index %s failed", op))
}

// ConnectionError classifies a failure to reach an index.
func ConnectionError(name string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return domain.Wrap(domain.ErrCancelled, "connect", err, "index connection cancelled")
	}
	return domain.Wrap(domain.ErrIndexConnection, "connect", err, fmt.Sprintf("index %q is unreachable", name))
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return nil
}
