package model

import (
	"encoding/json"
	"time"
)

// Passage is one vector of the SQL-backed index. The embedding is stored as
// a JSON array of float32 for portability.
type Passage struct {
	IndexName   string    `gorm:"primaryKey;size:64" json:"index_name"`
	Namespace   string    `gorm:"primaryKey;size:128" json:"namespace"`
	ID          string    `gorm:"primaryKey;size:191" json:"id"`
	ChunkNumber int       `gorm:"not null" json:"chunk_number"`
	Subject     string    `gorm:"size:64" json:"subject"`
	Source      string    `gorm:"size:255" json:"source"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	Embedding   string    `gorm:"type:mediumtext" json:"-"`
	IngestedAt  time.Time `gorm:"index" json:"ingested_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Passage) TableName() string { return "indexed_passages" }

// EmbeddingVector returns the parsed embedding; nil on parse error.
func (p *Passage) EmbeddingVector() []float32 {
	if p.Embedding == "" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(p.Embedding), &v); err != nil {
		return nil
	}
	return v
}

func (p *Passage) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		p.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	p.Embedding = string(b)
}
