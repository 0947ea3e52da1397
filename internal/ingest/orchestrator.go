// Package ingest drives a document through chunking, embedding and upsert,
// reporting progress as it goes.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bookrag/internal/chunker"
	"bookrag/internal/domain"
	"bookrag/internal/metrics"
	"bookrag/internal/vectorindex"
)

const (
	DefaultConcurrency = 1
	MaxConcurrency     = 8
)

type State int

const (
	Idle State = iota
	Chunking
	Embedding
	Upserting
	Verifying
	Complete
	Failed
)

var stateNames = [...]string{"idle", "chunking", "embedding", "upserting", "verifying", "complete", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown ingestion state %q", b)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Report summarizes one run. LastSuccessful is the sequence number of the
// last upserted chunk, -1 when nothing was written.
type Report struct {
	Document       string        `json:"document"`
	Subject        string        `json:"subject"`
	Namespace      string        `json:"namespace"`
	State          State         `json:"state"`
	Processed      int           `json:"chunksProcessed"`
	Total          int           `json:"totalChunks"`
	LastSuccessful int           `json:"lastSuccessful"`
	VectorsBefore  int           `json:"vectorsBefore"`
	VectorsAfter   int           `json:"vectorsAfter"`
	Warnings       []string      `json:"warnings,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

type Orchestrator struct {
	chunker     *chunker.Chunker
	embedder    Embedder
	gateway     vectorindex.Gateway
	concurrency int
	metrics     *metrics.Metrics

	verifySettle   time.Duration
	verifyAttempts int
}

type Option func(*Orchestrator)

// WithConcurrency sets how many chunk embeddings run at once. Values are
// clamped to [1, MaxConcurrency].
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		switch {
		case n < 1:
			n = DefaultConcurrency
		case n > MaxConcurrency:
			n = MaxConcurrency
		}
		o.concurrency = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithVerifyPolling lets verification re-read the namespace count up to
// attempts times, waiting settle before each re-read, while the growth does
// not match the chunk total. Indexes with eventually consistent stats need
// it.
func WithVerifyPolling(settle time.Duration, attempts int) Option {
	return func(o *Orchestrator) {
		if attempts < 1 {
			attempts = 1
		}
		o.verifySettle = settle
		o.verifyAttempts = attempts
	}
}

func New(ch *chunker.Chunker, embedder Embedder, gateway vectorindex.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chunker:     ch,
		embedder:    embedder,
		gateway:     gateway,
		concurrency: DefaultConcurrency,

		verifyAttempts: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PassageID is the stable record id of chunk seq of the named document.
// Re-ingesting a document overwrites its previous records.
func PassageID(document string, seq int) string {
	sum := sha256.Sum256([]byte(document))
	return fmt.Sprintf("%s_chunk_%d", hex.EncodeToString(sum[:6]), seq)
}

// Run ingests doc into the index named by its subject. Events are sent on
// events when it is non-nil; Run never closes it. The returned report is
// always non-nil.
func (o *Orchestrator) Run(ctx context.Context, doc domain.Document, events chan<- domain.ProgressEvent) (*Report, error) {
	r := &run{
		ctx:    ctx,
		events: events,
		start:  time.Now(),
		report: &Report{
			Document:       doc.Name,
			Subject:        doc.Subject,
			Namespace:      doc.Namespace,
			State:          Idle,
			LastSuccessful: -1,
		},
	}
	if err := o.run(r, doc); err != nil {
		o.metrics.IngestedChunks("upserted", r.report.Processed)
		o.metrics.IngestedChunks("failed", r.report.Total-r.report.Processed)
		return r.fail(err), err
	}
	o.metrics.IngestedChunks("upserted", r.report.Processed)
	return r.report, nil
}

func (o *Orchestrator) run(r *run, doc domain.Document) error {
	if err := domain.ValidateSubject(doc.Subject); err != nil {
		return err
	}
	if strings.TrimSpace(doc.Name) == "" {
		return domain.Errorf(domain.ErrValidation, "ingest", "document name is empty")
	}

	r.enter(Chunking, fmt.Sprintf("Splitting %s into chunks", doc.Name))
	seq, err := o.chunker.Split(doc)
	if err != nil {
		return err
	}
	total := seq.Len()
	if total == 0 {
		return domain.Errorf(domain.ErrChunking, "ingest", "document %q produced no chunks", doc.Name)
	}
	r.report.Total = total
	r.emit(domain.MessageEvent(fmt.Sprintf("Created %d chunks", total)))

	idx, err := o.gateway.Connect(r.ctx, doc.Subject)
	if err != nil {
		return err
	}
	before, err := idx.Count(r.ctx, doc.Namespace)
	beforeKnown := err == nil
	if err != nil {
		r.warn(fmt.Sprintf("vector count before ingestion unavailable: %v", err))
	}
	r.report.VectorsBefore = before

	r.enter(Embedding, fmt.Sprintf("Embedding %d chunks into %s", total, idx.Name()))
	window := make([]domain.Chunk, 0, o.concurrency)
	for {
		window = window[:0]
		for len(window) < o.concurrency {
			ch, ok := seq.Next()
			if !ok {
				break
			}
			window = append(window, ch)
		}
		if len(window) == 0 {
			break
		}
		if err := r.ctx.Err(); err != nil {
			return domain.Wrap(domain.ErrCancelled, "ingest", err, "ingestion cancelled")
		}
		if err := o.process(r, idx, doc, window); err != nil {
			return err
		}
	}

	r.enter(Verifying, "Verifying upload")
	after, err := o.countAfter(r, idx, doc.Namespace, before, beforeKnown, total)
	switch {
	case err != nil:
		r.warn(fmt.Sprintf("vector count after ingestion unavailable: %v", err))
	case beforeKnown && after-before != total:
		r.report.VectorsAfter = after
		r.warn(fmt.Sprintf("index grew by %d vectors, expected %d", after-before, total))
	default:
		r.report.VectorsAfter = after
	}

	r.report.State = Complete
	r.report.Elapsed = time.Since(r.start)
	summary, _ := json.Marshal(r.report)
	r.emit(domain.CompleteEvent(
		fmt.Sprintf("Ingested %d chunks from %s", r.report.Processed, doc.Name), string(summary)))
	return nil
}

func (o *Orchestrator) countAfter(r *run, idx vectorindex.Index, namespace string, before int, beforeKnown bool, total int) (int, error) {
	for attempt := 1; ; attempt++ {
		after, err := idx.Count(r.ctx, namespace)
		settled := err == nil && (!beforeKnown || after-before == total)
		if settled || attempt >= o.verifyAttempts {
			return after, err
		}
		select {
		case <-r.ctx.Done():
			return after, err
		case <-time.After(o.verifySettle):
		}
	}
}

// process embeds a window in parallel and upserts the successful prefix in
// sequence order. The first failed chunk aborts the run.
func (o *Orchestrator) process(r *run, idx vectorindex.Index, doc domain.Document, window []domain.Chunk) error {
	r.report.State = Embedding
	vectors := make([][]float32, len(window))
	errs := make([]error, len(window))

	var g errgroup.Group
	g.SetLimit(len(window))
	for i, ch := range window {
		i, ch := i, ch
		g.Go(func() error {
			vectors[i], errs[i] = o.embedder.Embed(r.ctx, ch.Text)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for ok < len(window) && errs[ok] == nil {
		ok++
	}

	if ok > 0 {
		r.report.State = Upserting
		passages := make([]domain.IndexedPassage, ok)
		for i, ch := range window[:ok] {
			passages[i] = domain.IndexedPassage{
				ID:     PassageID(doc.Name, ch.Sequence),
				Values: vectors[i],
				Metadata: domain.PassageMetadata{
					Text:        ch.Text,
					ChunkNumber: ch.Sequence,
					Subject:     doc.Subject,
					Source:      doc.Source,
					IngestedAt:  r.start.UTC(),
				},
			}
		}
		if err := idx.Upsert(r.ctx, doc.Namespace, passages); err != nil {
			return fmt.Errorf("upsert chunks %d-%d failed: %w", window[0].Sequence, window[ok-1].Sequence, err)
		}
		for _, ch := range window[:ok] {
			r.report.Processed++
			r.report.LastSuccessful = ch.Sequence
			r.emit(domain.ProgressOf(r.report.Processed, r.report.Total))
		}
	}

	if ok < len(window) {
		err := errs[ok]
		if domain.KindOf(err) == nil {
			err = domain.Wrap(domain.ErrEmbedding, "ingest", err, "embedding provider failed")
		}
		return fmt.Errorf("embed chunk %d failed: %w", window[ok].Sequence, err)
	}
	return nil
}

type run struct {
	ctx    context.Context
	events chan<- domain.ProgressEvent
	start  time.Time
	report *Report
}

func (r *run) enter(s State, msg string) {
	r.report.State = s
	r.emit(domain.MessageEvent(msg))
}

func (r *run) warn(msg string) {
	log.Printf("ingest %s warning: %s", r.report.Document, msg)
	r.report.Warnings = append(r.report.Warnings, msg)
}

func (r *run) fail(err error) *Report {
	r.report.State = Failed
	r.report.Elapsed = time.Since(r.start)
	log.Printf("ingest %s failed: %v", r.report.Document, err)
	r.emit(domain.ErrorEvent(err, r.report.Processed, r.report.Total))
	return r.report
}

// emit delivers ev unless the run was cancelled and nobody is receiving.
func (r *run) emit(ev domain.ProgressEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- ev:
		return
	case <-r.ctx.Done():
	}
	if ev.Terminal() {
		select {
		case r.events <- ev:
		default:
		}
	}
}
