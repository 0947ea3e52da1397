package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/chunker"
	"bookrag/internal/domain"
	"bookrag/internal/vectorindex"
	"bookrag/internal/vectorindex/memory"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	failOn string
	calls  int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrCancelled, "embed", err, "embedding cancelled")
	}
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, domain.Errorf(domain.ErrEmbedding, "embed", "embedding failed after 3 attempts")
	}
	return []float32{1, float32(len(text)) / 100, 0.5}, nil
}

// twelveParagraphs chunks into exactly 12 chunks at size 40.
func twelveParagraphs() string {
	parts := make([]string, 12)
	for i := range parts {
		parts[i] = fmt.Sprintf("Paragraph number %02d about cells.", i+1)
	}
	return strings.Join(parts, "\n\n")
}

func newOrchestrator(t *testing.T, emb Embedder, gw vectorindex.Gateway, opts ...Option) *Orchestrator {
	t.Helper()
	ch, err := chunker.New(40, 0)
	require.NoError(t, err)
	return New(ch, emb, gw, opts...)
}

func collect(events chan domain.ProgressEvent) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func runWithEvents(o *Orchestrator, doc domain.Document) (*Report, []domain.ProgressEvent, error) {
	events := make(chan domain.ProgressEvent)
	var (
		report *Report
		err    error
	)
	go func() {
		defer close(events)
		report, err = o.Run(context.Background(), doc, events)
	}()
	got := collect(events)
	return report, got, err
}

func biologyDoc() domain.Document {
	return domain.Document{Name: "bio.pdf", Subject: "biology", Namespace: "ch1", Text: twelveParagraphs()}
}

func storedIDs(t *testing.T, gw *memory.Gateway, ns string) []int {
	t.Helper()
	idx, err := gw.Connect(context.Background(), "biology")
	require.NoError(t, err)
	matches, err := idx.Query(context.Background(), ns, []float32{1, 0.3, 0.5}, 100, true)
	require.NoError(t, err)
	seqs := make([]int, 0, len(matches))
	for _, m := range matches {
		seqs = append(seqs, m.ChunkNumber)
	}
	return seqs
}

func TestRunIngestsAllChunks(t *testing.T) {
	chunks, err := chunker.Chunk(twelveParagraphs(), 40, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 12)

	gw := memory.NewGateway()
	o := newOrchestrator(t, &fakeEmbedder{}, gw)

	report, events, err := runWithEvents(o, biologyDoc())
	require.NoError(t, err)
	assert.Equal(t, Complete, report.State)
	assert.Equal(t, 12, report.Processed)
	assert.Equal(t, 12, report.Total)
	assert.Equal(t, 11, report.LastSuccessful)
	assert.Equal(t, 0, report.VectorsBefore)
	assert.Equal(t, 12, report.VectorsAfter)
	assert.Empty(t, report.Warnings)

	var progress []domain.ProgressEvent
	for _, ev := range events {
		if ev.Type == domain.EventProgress {
			progress = append(progress, ev)
		}
	}
	require.Len(t, progress, 12)
	for i, ev := range progress {
		assert.Equal(t, i+1, ev.ChunksProcessed)
		assert.Equal(t, 12, ev.TotalChunks)
	}
	assert.Equal(t, 100.0, progress[11].Percentage)

	last := events[len(events)-1]
	require.Equal(t, domain.EventComplete, last.Type)
	var summary Report
	require.NoError(t, json.Unmarshal([]byte(last.Output), &summary))
	assert.Equal(t, 12, summary.Processed)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, storedIDs(t, gw, "ch1"))
}

func TestRunStopsAtFailedChunk(t *testing.T) {
	for _, concurrency := range []int{1, 4, 8} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			gw := memory.NewGateway()
			o := newOrchestrator(t, &fakeEmbedder{failOn: "number 07"}, gw, WithConcurrency(concurrency))

			report, events, err := runWithEvents(o, biologyDoc())
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrEmbedding)
			assert.Equal(t, Failed, report.State)
			assert.Equal(t, 6, report.Processed)
			assert.Equal(t, 5, report.LastSuccessful)

			last := events[len(events)-1]
			assert.Equal(t, domain.EventError, last.Type)
			assert.Equal(t, 6, last.ChunksProcessed)
			assert.Equal(t, 12, last.TotalChunks)
			assert.NotEmpty(t, last.Message)

			assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5}, storedIDs(t, gw, "ch1"))
		})
	}
}

func TestRunValidatesBeforeWork(t *testing.T) {
	emb := &fakeEmbedder{}
	o := newOrchestrator(t, emb, memory.NewGateway())

	doc := biologyDoc()
	doc.Subject = "Biology 101"
	report, err := o.Run(context.Background(), doc, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, Failed, report.State)
	assert.Equal(t, -1, report.LastSuccessful)

	doc = biologyDoc()
	doc.Text = "   \n\n  "
	_, err = o.Run(context.Background(), doc, nil)
	assert.ErrorIs(t, err, domain.ErrChunking)
	assert.Zero(t, emb.calls)
}

func TestRunConnectionFailure(t *testing.T) {
	emb := &fakeEmbedder{}
	o := newOrchestrator(t, emb, memory.NewGateway("physics"))

	_, err := o.Run(context.Background(), biologyDoc(), nil)
	assert.ErrorIs(t, err, domain.ErrIndexConnection)
	assert.Zero(t, emb.calls)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newOrchestrator(t, &fakeEmbedder{}, memory.NewGateway())

	report, err := o.Run(ctx, biologyDoc(), nil)
	assert.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, Failed, report.State)
	assert.Zero(t, report.Processed)
}

func TestReingestionOverwritesAndWarns(t *testing.T) {
	gw := memory.NewGateway()
	o := newOrchestrator(t, &fakeEmbedder{}, gw)

	_, err := o.Run(context.Background(), biologyDoc(), nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), biologyDoc(), nil)
	require.NoError(t, err)
	assert.Equal(t, Complete, report.State)
	assert.Equal(t, 12, report.VectorsBefore)
	assert.Equal(t, 12, report.VectorsAfter)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "expected 12")
}

type brokenCountIndex struct {
	vectorindex.Index
}

func (brokenCountIndex) Count(context.Context, string) (int, error) {
	return 0, errors.New("stats unavailable")
}

type brokenCountGateway struct {
	inner vectorindex.Gateway
}

func (g brokenCountGateway) Connect(ctx context.Context, name string) (vectorindex.Index, error) {
	idx, err := g.inner.Connect(ctx, name)
	if err != nil {
		return nil, err
	}
	return brokenCountIndex{Index: idx}, nil
}

func TestVerificationFailureIsWarning(t *testing.T) {
	o := newOrchestrator(t, &fakeEmbedder{}, brokenCountGateway{inner: memory.NewGateway()})

	report, err := o.Run(context.Background(), biologyDoc(), nil)
	require.NoError(t, err)
	assert.Equal(t, Complete, report.State)
	assert.Len(t, report.Warnings, 2)
}

func TestPassageIDIsStable(t *testing.T) {
	a := PassageID("bio.pdf", 3)
	assert.Equal(t, a, PassageID("bio.pdf", 3))
	assert.NotEqual(t, a, PassageID("chem.pdf", 3))
	assert.True(t, strings.HasSuffix(a, "_chunk_3"))
	assert.Len(t, strings.TrimSuffix(a, "_chunk_3"), 12)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "embedding", Embedding.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "state(42)", State(42).String())
}

// laggingCountIndex reports the vector count before ingestion until stale
// reads run out, as an index with asynchronous stats does.
type laggingCountIndex struct {
	vectorindex.Index

	mu     sync.Mutex
	stale  int
	counts int
}

func (i *laggingCountIndex) Count(ctx context.Context, ns string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.counts++
	if i.counts == 1 {
		return 0, nil
	}
	if i.stale > 0 {
		i.stale--
		return 0, nil
	}
	return i.Index.Count(ctx, ns)
}

type laggingGateway struct {
	inner vectorindex.Gateway
	idx   *laggingCountIndex
}

func (g *laggingGateway) Connect(ctx context.Context, name string) (vectorindex.Index, error) {
	if g.idx == nil {
		idx, err := g.inner.Connect(ctx, name)
		if err != nil {
			return nil, err
		}
		g.idx = &laggingCountIndex{Index: idx, stale: 2}
	}
	return g.idx, nil
}

func TestVerificationWaitsForLaggingCount(t *testing.T) {
	gw := &laggingGateway{inner: memory.NewGateway()}
	o := newOrchestrator(t, &fakeEmbedder{}, gw, WithVerifyPolling(time.Millisecond, 3))

	report, err := o.Run(context.Background(), biologyDoc(), nil)
	require.NoError(t, err)
	assert.Equal(t, 12, report.VectorsAfter)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, 4, gw.idx.counts)
}

func TestVerificationGivesUpAfterAttempts(t *testing.T) {
	gw := &laggingGateway{inner: memory.NewGateway()}
	o := newOrchestrator(t, &fakeEmbedder{}, gw, WithVerifyPolling(time.Millisecond, 2))

	report, err := o.Run(context.Background(), biologyDoc(), nil)
	require.NoError(t, err)
	assert.Equal(t, Complete, report.State)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "index grew by 0 vectors, expected 12")
	assert.Equal(t, 3, gw.idx.counts)
}

func TestPassagesCarryIngestionTime(t *testing.T) {
	rec := &recordingGateway{inner: memory.NewGateway()}
	o := newOrchestrator(t, &fakeEmbedder{}, rec)

	start := time.Now().UTC()
	_, err := o.Run(context.Background(), biologyDoc(), nil)
	require.NoError(t, err)

	require.Len(t, rec.passages, 12)
	first := rec.passages[0].Metadata.IngestedAt
	assert.False(t, first.Before(start.Add(-time.Second)))
	for _, p := range rec.passages {
		assert.Equal(t, first, p.Metadata.IngestedAt)
	}
}

type recordingIndex struct {
	vectorindex.Index
	gw *recordingGateway
}

func (i recordingIndex) Upsert(ctx context.Context, ns string, passages []domain.IndexedPassage) error {
	i.gw.passages = append(i.gw.passages, passages...)
	return i.Index.Upsert(ctx, ns, passages)
}

type recordingGateway struct {
	inner    vectorindex.Gateway
	passages []domain.IndexedPassage
}

func (g *recordingGateway) Connect(ctx context.Context, name string) (vectorindex.Index, error) {
	idx, err := g.inner.Connect(ctx, name)
	if err != nil {
		return nil, err
	}
	return recordingIndex{Index: idx, gw: g}, nil
}
