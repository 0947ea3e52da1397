package model

import (
	"time"

	"bookrag/internal/domain"
)

// IngestJob is the queued form of an ingestion request.
type IngestJob struct {
	ID         string          `json:"id"`
	Document   domain.Document `json:"document"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
