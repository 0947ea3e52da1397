// Package sqlindex stores passages in MySQL through gorm and scores them by
// brute-force cosine similarity. It suits small corpora and local setups
// without a managed vector store.
package sqlindex

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookrag/internal/domain"
	"bookrag/internal/model"
	"bookrag/internal/vectorindex"
)

const insertBatchSize = 100

type Gateway struct {
	db *gorm.DB
}

var _ vectorindex.Gateway = (*Gateway)(nil)

func New(db *gorm.DB) *Gateway {
	return &Gateway{db: db}
}

// Migrate creates the passage table.
func (g *Gateway) Migrate() error {
	return g.db.AutoMigrate(&model.Passage{})
}

func (g *Gateway) Connect(ctx context.Context, name string) (vectorindex.Index, error) {
	if err := domain.ValidateSubject(name); err != nil {
		return nil, err
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return nil, vectorindex.ConnectionError(name, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, vectorindex.ConnectionError(name, err)
	}
	return &Index{db: g.db, name: name}, nil
}

type Index struct {
	db   *gorm.DB
	name string
}

var _ vectorindex.Index = (*Index)(nil)

func (i *Index) Name() string { return i.name }

func (i *Index) Upsert(ctx context.Context, namespace string, passages []domain.IndexedPassage) error {
	if err := vectorindex.ValidatePassages(passages); err != nil {
		return err
	}
	if len(passages) == 0 {
		return nil
	}
	rows := make([]model.Passage, len(passages))
	for k, p := range passages {
		rows[k] = toRow(i.name, namespace, p)
	}
	err := i.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(&rows, insertBatchSize).Error
	if err != nil {
		return vectorindex.QueryError("upsert", err)
	}
	return nil
}

func (i *Index) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]domain.SearchMatch, error) {
	if topK <= 0 {
		return nil, domain.Errorf(domain.ErrValidation, "query", "topK must be positive, got %d", topK)
	}
	var rows []model.Passage
	err := i.db.WithContext(ctx).
		Where("index_name = ? AND namespace = ?", i.name, namespace).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, vectorindex.QueryError("query", err)
	}
	return rank(rows, vector, topK, includeMetadata), nil
}

func (i *Index) ListNamespaces(ctx context.Context) ([]string, error) {
	var out []string
	err := i.db.WithContext(ctx).
		Model(&model.Passage{}).
		Where("index_name = ?", i.name).
		Distinct("namespace").
		Order("namespace").
		Pluck("namespace", &out).Error
	if err != nil {
		return nil, vectorindex.QueryError("list namespaces", err)
	}
	return out, nil
}

func (i *Index) Count(ctx context.Context, namespace string) (int, error) {
	var n int64
	err := i.db.WithContext(ctx).
		Model(&model.Passage{}).
		Where("index_name = ? AND namespace = ?", i.name, namespace).
		Count(&n).Error
	if err != nil {
		return 0, vectorindex.QueryError("count", err)
	}
	return int(n), nil
}

func toRow(indexName, namespace string, p domain.IndexedPassage) model.Passage {
	row := model.Passage{
		IndexName:   indexName,
		Namespace:   namespace,
		ID:          p.ID,
		ChunkNumber: p.Metadata.ChunkNumber,
		Subject:     p.Metadata.Subject,
		Source:      p.Metadata.Source,
		Text:        p.Metadata.Text,
		IngestedAt:  p.Metadata.IngestedAt,
	}
	row.SetEmbedding(p.Values)
	return row
}

func rank(rows []model.Passage, vector []float32, topK int, includeMetadata bool) []domain.SearchMatch {
	matches := make([]domain.SearchMatch, 0, len(rows))
	for k := range rows {
		m := domain.SearchMatch{
			ID:          rows[k].ID,
			Score:       vectorindex.CosineSimilarity(vector, rows[k].EmbeddingVector()),
			ChunkNumber: -1,
			Namespace:   rows[k].Namespace,
		}
		if includeMetadata {
			m.Text = rows[k].Text
			m.ChunkNumber = rows[k].ChunkNumber
		}
		matches = append(matches, m)
	}
	vectorindex.SortMatches(matches)
	return vectorindex.Truncate(matches, topK)
}
