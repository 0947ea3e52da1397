package app

import (
	"context"

	"bookrag/internal/domain"
	"bookrag/internal/vectorindex"
)

// NamespaceStats is the vector count of one namespace.
type NamespaceStats struct {
	Namespace string `json:"namespace"`
	Vectors   int    `json:"vectors"`
}

// CatalogService answers questions about what has been ingested.
type CatalogService struct {
	gateway vectorindex.Gateway
}

func NewCatalogService(gateway vectorindex.Gateway) *CatalogService {
	return &CatalogService{gateway: gateway}
}

func (s *CatalogService) Namespaces(ctx context.Context, subject string) ([]string, error) {
	idx, err := s.connect(ctx, subject)
	if err != nil {
		return nil, err
	}
	namespaces, err := idx.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	if namespaces == nil {
		namespaces = []string{}
	}
	return namespaces, nil
}

// Stats lists every namespace of a subject index with its vector count.
func (s *CatalogService) Stats(ctx context.Context, subject string) ([]NamespaceStats, error) {
	idx, err := s.connect(ctx, subject)
	if err != nil {
		return nil, err
	}
	namespaces, err := idx.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]NamespaceStats, 0, len(namespaces))
	for _, ns := range namespaces {
		n, err := idx.Count(ctx, ns)
		if err != nil {
			return nil, err
		}
		stats = append(stats, NamespaceStats{Namespace: ns, Vectors: n})
	}
	return stats, nil
}

func (s *CatalogService) connect(ctx context.Context, subject string) (vectorindex.Index, error) {
	if err := domain.ValidateSubject(subject); err != nil {
		return nil, err
	}
	return s.gateway.Connect(ctx, subject)
}
