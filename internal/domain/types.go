package domain

import (
	"strings"
	"time"
)

// Document is raw extracted text queued for ingestion. It only lives for
// the duration of one ingestion run.
type Document struct {
	Name      string `json:"name"`
	Subject   string `json:"subject"`
	Namespace string `json:"namespace,omitempty"`
	Source    string `json:"source,omitempty"`
	Text      string `json:"text"`
}

// Chunk is one bounded passage of a document. Overlap counts the leading
// runes of Text repeated from the previous chunk.
type Chunk struct {
	Text     string
	Sequence int
	Document string
	Overlap  int
}

// Body returns the chunk text without the overlap prefix.
func (c Chunk) Body() string {
	if c.Overlap <= 0 {
		return c.Text
	}
	runes := []rune(c.Text)
	if c.Overlap >= len(runes) {
		return ""
	}
	return string(runes[c.Overlap:])
}

// PassageMetadata travels with each vector. IngestedAt is the start of the
// ingestion run that wrote it, which tells re-ingested passages apart.
type PassageMetadata struct {
	Text        string    `json:"text"`
	ChunkNumber int       `json:"chunk_number"`
	Subject     string    `json:"subject,omitempty"`
	Source      string    `json:"source,omitempty"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// IndexedPassage is the record written to the vector index, one per chunk.
type IndexedPassage struct {
	ID       string
	Values   []float32
	Metadata PassageMetadata
}

// SearchMatch is a scored hit. ChunkNumber is -1 when the index returned no
// chunk number for the record.
type SearchMatch struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
	ChunkNumber int     `json:"chunk_number"`
	Namespace   string  `json:"namespace,omitempty"`
}

// RetrievalContext is the text handed to the answer composer.
type RetrievalContext struct {
	Matches    []SearchMatch
	Sufficient bool
}

func (r *RetrievalContext) Text() string {
	if r == nil || len(r.Matches) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		if t := strings.TrimSpace(m.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Decision is the relevance gate outcome and selects the answer template.
type Decision string

const (
	DecisionGrounded Decision = "grounded"
	DecisionFallback Decision = "fallback"
	DecisionNoInfo   Decision = "noInfo"
	DecisionError    Decision = "error"
)

// Answer is a composed reply. Source is empty when the model output carried
// no source tag.
type Answer struct {
	Source   string   `json:"source"`
	Body     string   `json:"body"`
	Raw      string   `json:"raw"`
	Decision Decision `json:"decision"`
}
