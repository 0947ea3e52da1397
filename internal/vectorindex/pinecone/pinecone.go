// Package pinecone is a vectorindex backend over the Pinecone Go client.
package pinecone

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	sdk "github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"bookrag/internal/domain"
	"bookrag/internal/vectorindex"
)

const defaultUpsertBatch = 50

type Config struct {
	APIKey string
	// Resolver maps an index name to its data plane host. Names it cannot
	// resolve are looked up through the control plane.
	Resolver        vectorindex.Resolver
	Timeout         time.Duration
	UpsertBatchSize int
}

// dataPlane is the part of *sdk.IndexConnection the backend uses. A
// connection is bound to one namespace.
type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*sdk.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *sdk.QueryByVectorValuesRequest) (*sdk.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*sdk.DescribeIndexStatsResponse, error)
	Close() error
}

type (
	describeFunc func(ctx context.Context, name string) (string, error)
	dialFunc     func(host, namespace string) (dataPlane, error)
)

type Gateway struct {
	cfg      Config
	describe describeFunc
	dial     dialFunc

	mu      sync.Mutex
	indexes map[string]*Index
}

var _ vectorindex.Gateway = (*Gateway)(nil)

func New(cfg Config) (*Gateway, error) {
	client, err := sdk.NewClient(sdk.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create pinecone client failed: %w", err)
	}
	describe := func(ctx context.Context, name string) (string, error) {
		idx, err := client.DescribeIndex(ctx, name)
		if err != nil {
			return "", err
		}
		return idx.Host, nil
	}
	dial := func(host, namespace string) (dataPlane, error) {
		return client.Index(sdk.NewIndexConnParams{Host: host, Namespace: namespace})
	}
	return newGateway(cfg, describe, dial), nil
}

func newGateway(cfg Config, describe describeFunc, dial dialFunc) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = defaultUpsertBatch
	}
	return &Gateway{cfg: cfg, describe: describe, dial: dial, indexes: make(map[string]*Index)}
}

// Connect resolves the index host and checks it answers a stats call.
// Handles are reused once a connection has been verified.
func (g *Gateway) Connect(ctx context.Context, name string) (vectorindex.Index, error) {
	g.mu.Lock()
	idx, ok := g.indexes[name]
	g.mu.Unlock()
	if ok {
		return idx, nil
	}

	host, err := g.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	idx = &Index{
		name:      name,
		host:      host,
		batchSize: g.cfg.UpsertBatchSize,
		timeout:   g.cfg.Timeout,
		dial:      g.dial,
		conns:     make(map[string]dataPlane),
	}
	if _, err := idx.stats(ctx); err != nil {
		idx.close()
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.indexes[name]; ok {
		idx.close()
		return existing, nil
	}
	g.indexes[name] = idx
	return idx, nil
}

func (g *Gateway) resolve(ctx context.Context, name string) (string, error) {
	if g.cfg.Resolver != nil {
		if host, err := g.cfg.Resolver(name); err == nil {
			return trimScheme(host), nil
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	host, err := g.describe(callCtx, name)
	if err != nil {
		return "", vectorindex.ConnectionError(name, contextOrCause(ctx, err))
	}
	if host == "" {
		return "", domain.Errorf(domain.ErrIndexConnection, "connect", "index %q has no host", name)
	}
	return trimScheme(host), nil
}

// Close releases the data plane connections of every index.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, idx := range g.indexes {
		idx.close()
		delete(g.indexes, name)
	}
}

type Index struct {
	name      string
	host      string
	batchSize int
	timeout   time.Duration
	dial      dialFunc

	mu    sync.Mutex
	conns map[string]dataPlane
}

var _ vectorindex.Index = (*Index)(nil)

func (i *Index) Name() string { return i.name }

func (i *Index) conn(namespace string) (dataPlane, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if c, ok := i.conns[namespace]; ok {
		return c, nil
	}
	c, err := i.dial(i.host, namespace)
	if err != nil {
		return nil, vectorindex.ConnectionError(i.name, err)
	}
	i.conns[namespace] = c
	return c, nil
}

func (i *Index) close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for ns, c := range i.conns {
		_ = c.Close()
		delete(i.conns, ns)
	}
}

// Upsert writes passages in batches. A failed batch aborts the call; earlier
// batches stay written and are overwritten by id on retry.
func (i *Index) Upsert(ctx context.Context, namespace string, passages []domain.IndexedPassage) error {
	if err := vectorindex.ValidatePassages(passages); err != nil {
		return err
	}
	conn, err := i.conn(namespace)
	if err != nil {
		return err
	}
	for start := 0; start < len(passages); start += i.batchSize {
		end := min(start+i.batchSize, len(passages))
		vectors := make([]*sdk.Vector, 0, end-start)
		for _, p := range passages[start:end] {
			meta, err := structpb.NewStruct(metadataMap(p.Metadata))
			if err != nil {
				return domain.Wrap(domain.ErrValidation, "upsert", err, fmt.Sprintf("metadata of %q is not storable", p.ID))
			}
			vectors = append(vectors, &sdk.Vector{Id: p.ID, Values: p.Values, Metadata: meta})
		}

		callCtx, cancel := context.WithTimeout(ctx, i.timeout)
		upserted, err := conn.UpsertVectors(callCtx, vectors)
		cancel()
		if err != nil {
			return i.classify(ctx, "upsert", err)
		}
		if int(upserted) != len(vectors) {
			return domain.Errorf(domain.ErrIndexQuery, "upsert",
				"index %q accepted %d of %d vectors", i.name, upserted, len(vectors))
		}
	}
	return nil
}

func (i *Index) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]domain.SearchMatch, error) {
	if topK <= 0 {
		return nil, domain.Errorf(domain.ErrValidation, "query", "topK must be positive, got %d", topK)
	}
	conn, err := i.conn(namespace)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	resp, err := conn.QueryByVectorValues(callCtx, &sdk.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeValues:   false,
		IncludeMetadata: includeMetadata,
	})
	if err != nil {
		return nil, i.classify(ctx, "query", err)
	}

	matches := make([]domain.SearchMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		fields := m.Vector.Metadata.GetFields()
		matches = append(matches, domain.SearchMatch{
			ID:          m.Vector.Id,
			Text:        fields["text"].GetStringValue(),
			Score:       float64(m.Score),
			ChunkNumber: chunkNumber(fields["chunk_number"]),
			Namespace:   namespace,
		})
	}
	return matches, nil
}

func (i *Index) ListNamespaces(ctx context.Context) ([]string, error) {
	st, err := i.stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(st.Namespaces))
	for ns := range st.Namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

func (i *Index) Count(ctx context.Context, namespace string) (int, error) {
	st, err := i.stats(ctx)
	if err != nil {
		return 0, err
	}
	summary, ok := st.Namespaces[namespace]
	if !ok || summary == nil {
		return 0, nil
	}
	return int(summary.VectorCount), nil
}

// stats are index wide, so they go through the default namespace.
func (i *Index) stats(ctx context.Context) (*sdk.DescribeIndexStatsResponse, error) {
	conn, err := i.conn("")
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()
	st, err := conn.DescribeIndexStats(callCtx)
	if err != nil {
		return nil, i.classify(ctx, "describe stats", err)
	}
	return st, nil
}

// classify maps a data plane error. Unreachable, unauthorized and missing
// indexes are connection failures; anything else the index rejected is a
// query failure. Cancellation of ctx wins over the call's own status.
func (i *Index) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return vectorindex.QueryError(op, contextOrCause(ctx, err))
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.Unauthenticated, codes.PermissionDenied, codes.NotFound, codes.DeadlineExceeded:
		return vectorindex.ConnectionError(i.name, stripContext(err))
	default:
		return vectorindex.QueryError(op, stripContext(err))
	}
}

// contextOrCause attaches the context error when ctx is done so callers see
// a cancellation.
func contextOrCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

// stripContext hides a per-call deadline so an index timeout is not
// mistaken for the caller cancelling.
func stripContext(err error) error {
	return fmt.Errorf("%v", err)
}

func metadataMap(m domain.PassageMetadata) map[string]interface{} {
	out := map[string]interface{}{
		"text":         m.Text,
		"chunk_number": m.ChunkNumber,
	}
	if m.Subject != "" {
		out["subject"] = m.Subject
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	if !m.IngestedAt.IsZero() {
		out["ingested_at"] = m.IngestedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// chunkNumber reads the chunk_number metadata field, which older indexes
// store as a string.
func chunkNumber(v *structpb.Value) int {
	switch n := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int(n.NumberValue)
	case *structpb.Value_StringValue:
		if parsed, err := strconv.Atoi(n.StringValue); err == nil {
			return parsed
		}
	}
	return -1
}

func trimScheme(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}
