package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/poiesic/lexgraph/ai"
	"github.com/poiesic/lexgraph/baseline"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/embedding"
	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/metrics"
	"github.com/poiesic/lexgraph/registry"
	"github.com/poiesic/lexgraph/storage"
)

var tracer = otel.Tracer("lexgraph/ingestion")

const (
	DefaultBatchSize      = 32
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	// DefaultHNSWThreshold is the vector count from which an HNSW index
	// replaces exhaustive search.
	DefaultHNSWThreshold = 2000
)

// Pipeline orchestrates ingestion passes. Passes are serialized so versions
// are persisted and published in order.
type Pipeline struct {
	repository     storage.SnapshotRepository
	registry       *registry.Registry
	provider       ai.AIProvider
	pool           *ants.Pool
	catalog        *core.Catalog
	chunker        embedding.Chunker
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	hnswThreshold  int
	hnswOptions    []embedding.HNSWOption
	baselineOpts   []baseline.Option
	analyzer       *baseline.Analyzer
	progress       io.Writer
	progressEvery  int
	metrics        *metrics.Metrics
	logger         *slog.Logger
	mu             sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithCatalog sets the act catalog used to build graphs.
// Default is core.DefaultCatalog().
func WithCatalog(catalog *core.Catalog) Option {
	return func(p *Pipeline) error {
		if catalog == nil {
			return core.ErrInvalidCatalog
		}
		p.catalog = catalog
		return nil
	}
}

// WithChunker sets the window used to split provision text before embedding.
func WithChunker(c embedding.Chunker) Option {
	return func(p *Pipeline) error {
		if err := c.Validate(); err != nil {
			return err
		}
		p.chunker = c
		return nil
	}
}

// WithBatchSize sets how many chunks are sent to the embedder per call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		p.batchSize = n
		return nil
	}
}

// WithRetry sets the attempts per embedding batch and the first backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = maxAttempts
		p.retryBaseDelay = baseDelay
		return nil
	}
}

// WithIndex sets the vector count from which HNSW is used instead of an
// exhaustive index, and the HNSW parameters.
func WithIndex(hnswThreshold int, opts ...embedding.HNSWOption) Option {
	return func(p *Pipeline) error {
		p.hnswThreshold = hnswThreshold
		p.hnswOptions = opts
		return nil
	}
}

// WithBaselineOptions configures the baseline analyzer.
func WithBaselineOptions(opts ...baseline.Option) Option {
	return func(p *Pipeline) error {
		p.baselineOpts = append(p.baselineOpts, opts...)
		return nil
	}
}

// WithProgress reports embedding progress to w every interval provisions.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		p.progress = w
		p.progressEvery = interval
		return nil
	}
}

// WithMetrics records ingestion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "ingestion")
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	repository storage.SnapshotRepository,
	reg *registry.Registry,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if repository == nil {
		return nil, ErrSnapshotRepositoryRequired
	}
	if reg == nil {
		return nil, ErrRegistryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipeline{
		repository:     repository,
		registry:       reg,
		provider:       provider,
		catalog:        core.DefaultCatalog(),
		chunker:        embedding.DefaultChunker(),
		batchSize:      DefaultBatchSize,
		maxAttempts:    DefaultMaxAttempts,
		retryBaseDelay: DefaultRetryBaseDelay,
		hnswThreshold:  DefaultHNSWThreshold,
		logger:         slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}

	if p.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}
	analyzer, err := baseline.NewAnalyzer(append([]baseline.Option{baseline.WithLogger(p.logger)}, p.baselineOpts...)...)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.analyzer = analyzer

	return p, nil
}

// Report summarizes one ingestion pass.
type Report struct {
	Version            uint64
	Nodes              int
	Stats              graph.Stats
	Embedded           int
	Reused             int
	Skipped            int
	Dimension          int
	BaselineIterations int
	BaselineConverged  bool
	Degraded           bool
	Duration           time.Duration
}

// Ingest builds, persists and publishes a new graph version from provisions.
// On any error nothing is published and the previous version stays current.
func (p *Pipeline) Ingest(ctx context.Context, provisions []*core.Provision) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	ctx, span := tracer.Start(ctx, "ingestion.Ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("provisions", len(provisions)))

	report, err := p.ingest(ctx, provisions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.RecordIngestion("error", time.Since(start))
		p.logger.Error("ingestion failed", "err", err)
		return nil, err
	}
	report.Duration = time.Since(start)
	p.metrics.RecordIngestion("ok", report.Duration)
	p.metrics.RecordEmbedded("embedded", report.Embedded)
	p.metrics.RecordEmbedded("reused", report.Reused)
	span.SetAttributes(attribute.Int64("version", int64(report.Version)))

	p.logger.Info("ingestion complete",
		"version", report.Version,
		"nodes", report.Nodes,
		"embedded", report.Embedded,
		"reused", report.Reused,
		"degraded", report.Degraded,
		"duration", report.Duration)
	return report, nil
}

func (p *Pipeline) ingest(ctx context.Context, provisions []*core.Provision) (*Report, error) {
	g, err := graph.Build(provisions, graph.WithCatalog(p.catalog), graph.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	records := g.Provisions()

	previous, err := p.previousVectors(ctx)
	if err != nil {
		return nil, err
	}

	var progress *ProgressTracker
	if p.progress != nil {
		progress = NewProgressTracker(p.progress, len(records), p.progressEvery)
		progress.Start()
	}
	ep := &embeddingProcessor{
		embedder:       p.provider.Embedder(),
		model:          p.provider.Model(),
		chunker:        p.chunker,
		batchSize:      p.batchSize,
		maxAttempts:    p.maxAttempts,
		retryBaseDelay: p.retryBaseDelay,
		pool:           p.pool,
		logger:         p.logger.With("processor", "embeddings"),
	}
	embedded, err := ep.process(ctx, records, previous, progress)
	if err != nil {
		return nil, fmt.Errorf("embed provisions: %w", err)
	}
	progress.Finish()

	index, dim, err := p.buildIndex(embedded.vectors)
	if err != nil {
		return nil, err
	}

	base, err := p.analyzer.Run(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}

	version, err := p.repository.NextVersion(ctx)
	if err != nil {
		return nil, err
	}
	if current := p.registry.Version(); version <= current {
		return nil, fmt.Errorf("%w: repository version %d is not above published %d", registry.ErrStaleVersion, version, current)
	}

	stats := g.Stats()
	snap := &core.SnapshotRecord{
		Manifest: core.Manifest{
			Version:             version,
			CreatedAt:           time.Now().UTC(),
			NodeCount:           g.Len(),
			CitationEdges:       stats.CitationEdges,
			TermEdges:           stats.TermEdges,
			EmbeddingModel:      ep.model,
			Dimension:           dim,
			BaselineIterations:  base.Iterations,
			BaselineConverged:   base.Converged,
			Degraded:            base.Degraded,
			UnresolvedCitations: stats.UnresolvedCitations,
		},
		Provisions: records,
		Baseline:   base.Scores,
	}
	for _, v := range embedded.vectors {
		if v != nil {
			snap.Vectors = append(snap.Vectors, v)
		}
	}
	if err := p.repository.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot %d: %w", version, err)
	}

	if _, err := p.registry.Publish(&registry.State{
		Version:  version,
		Graph:    g,
		Vectors:  index,
		Baseline: base.Scores,
		Degraded: base.Degraded,
		Model:    ep.model,
	}); err != nil {
		return nil, err
	}
	p.metrics.RecordGraph(version, g.Len(), stats.CitationEdges, stats.TermEdges, stats.HierarchyEdges, base.Degraded)

	return &Report{
		Version:            version,
		Nodes:              g.Len(),
		Stats:              stats,
		Embedded:           embedded.embedded,
		Reused:             embedded.reused,
		Skipped:            embedded.skipped,
		Dimension:          dim,
		BaselineIterations: base.Iterations,
		BaselineConverged:  base.Converged,
		Degraded:           base.Degraded,
	}, nil
}

// previousVectors returns the vectors of the latest persisted version by
// internal id, or an empty map when nothing has been persisted yet.
func (p *Pipeline) previousVectors(ctx context.Context) (map[string]*core.NodeVector, error) {
	snap, err := p.repository.LatestSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]*core.NodeVector{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load previous snapshot: %w", err)
	}
	out := make(map[string]*core.NodeVector, len(snap.Vectors))
	for _, v := range snap.Vectors {
		out[v.InternalID] = v
	}
	return out, nil
}

// buildIndex builds the nearest-neighbour index over node-aligned vectors.
// A corpus without any vector yields a nil index.
func (p *Pipeline) buildIndex(vectors []*core.NodeVector) (embedding.Index, int, error) {
	means := make([][]float32, len(vectors))
	count := 0
	for i, v := range vectors {
		if v != nil && len(v.Mean) > 0 {
			means[i] = v.Mean
			count++
		}
	}
	if count == 0 {
		p.logger.Warn("no provision vectors, semantic search disabled")
		return nil, 0, nil
	}

	var (
		index embedding.Index
		err   error
	)
	if p.hnswThreshold > 0 && count >= p.hnswThreshold {
		index, err = embedding.NewHNSW(means, p.hnswOptions...)
	} else {
		index, err = embedding.NewFlat(means)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("build vector index: %w", err)
	}
	return index, index.Dim(), nil
}

// Restore publishes a persisted version without re-embedding. A zero
// version restores the latest one.
func (p *Pipeline) Restore(ctx context.Context, version uint64) (*Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	ctx, span := tracer.Start(ctx, "ingestion.Restore")
	defer span.End()

	var (
		snap *core.SnapshotRecord
		err  error
	)
	if version == 0 {
		snap, err = p.repository.LatestSnapshot(ctx)
	} else {
		snap, err = p.repository.LoadSnapshot(ctx, version)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	g, err := graph.Build(snap.Provisions, graph.WithCatalog(p.catalog), graph.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("rebuild graph %d: %w", snap.Manifest.Version, err)
	}

	aligned := make([]*core.NodeVector, g.Len())
	for _, v := range snap.Vectors {
		if i, ok := g.Lookup(v.InternalID); ok {
			aligned[i] = v
		}
	}
	index, dim, err := p.buildIndex(aligned)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, g.Len())
	if len(snap.Baseline) == len(snap.Provisions) {
		for j, rec := range snap.Provisions {
			if i, ok := g.Lookup(rec.InternalID); ok {
				scores[i] = snap.Baseline[j]
			}
		}
	} else {
		base, err := p.analyzer.Run(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("baseline: %w", err)
		}
		scores = base.Scores
	}

	m := snap.Manifest
	if _, err := p.registry.Publish(&registry.State{
		Version:  m.Version,
		Graph:    g,
		Vectors:  index,
		Baseline: scores,
		Degraded: m.Degraded,
		Model:    m.EmbeddingModel,
	}); err != nil {
		return nil, err
	}
	stats := g.Stats()
	p.metrics.RecordGraph(m.Version, g.Len(), stats.CitationEdges, stats.TermEdges, stats.HierarchyEdges, m.Degraded)
	p.logger.Info("snapshot restored", "version", m.Version, "nodes", g.Len())

	return &Report{
		Version:            m.Version,
		Nodes:              g.Len(),
		Stats:              stats,
		Reused:             len(snap.Vectors),
		Dimension:          dim,
		BaselineIterations: m.BaselineIterations,
		BaselineConverged:  m.BaselineConverged,
		Degraded:           m.Degraded,
		Duration:           time.Since(start),
	}, nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
