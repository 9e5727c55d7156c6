// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package lexgraph wires storage, ingestion and search of legislative
// provisions into one engine.
package lexgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/poiesic/lexgraph/ai"
	"github.com/poiesic/lexgraph/ai/mock"
	"github.com/poiesic/lexgraph/ai/openai"
	"github.com/poiesic/lexgraph/config"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/ingestion"
	"github.com/poiesic/lexgraph/metrics"
	"github.com/poiesic/lexgraph/query"
	"github.com/poiesic/lexgraph/registry"
	"github.com/poiesic/lexgraph/relatedness"
	"github.com/poiesic/lexgraph/search"
	"github.com/poiesic/lexgraph/server"
	"github.com/poiesic/lexgraph/storage"
	"github.com/poiesic/lexgraph/storage/badger"
)

const progressInterval = 50

// Engine owns every long-lived component of a lexgraph instance.
type Engine struct {
	cfg         *config.Config
	backend     *badger.Backend
	repository  storage.SnapshotRepository
	registry    *registry.Registry
	provider    ai.AIProvider
	pipeline    *ingestion.Pipeline
	relatedness *relatedness.Engine
	searcher    *search.Searcher
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	provider   ai.AIProvider
	prometheus *prometheus.Registry
	progress   io.Writer
	restore    bool
	logger     *slog.Logger
}

// WithProvider overrides the embedding provider selected by the config.
// The engine takes ownership and closes it.
func WithProvider(p ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = p
	}
}

// WithPrometheus registers metrics with reg and serves it on /metrics.
func WithPrometheus(reg *prometheus.Registry) EngineOption {
	return func(o *engineOptions) {
		o.prometheus = reg
	}
}

// WithProgress reports embedding progress to w.
func WithProgress(w io.Writer) EngineOption {
	return func(o *engineOptions) {
		o.progress = w
	}
}

// WithRestore controls whether Open publishes the latest stored version.
// Default is true.
func WithRestore(restore bool) EngineOption {
	return func(o *engineOptions) {
		o.restore = restore
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open builds an engine from cfg. When a snapshot is stored it is published
// before Open returns, so search is ready without re-ingesting.
func Open(ctx context.Context, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &engineOptions{restore: true}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{cfg: cfg, logger: logger.With("component", "lexgraph")}
	if options.prometheus != nil {
		e.metrics = metrics.New(options.prometheus)
		e.gatherer = options.prometheus
	}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	var err error
	e.backend, err = badger.OpenBackend(cfg.Database.Path, cfg.Database.InMemory,
		badger.WithBackendLogger(logger),
		badger.WithSyncWrites(cfg.Database.SyncWrites))
	if err != nil {
		return nil, err
	}
	if e.repository, err = badger.NewSnapshotRepository(e.backend); err != nil {
		return nil, err
	}
	if e.registry, err = registry.New(registry.WithLogger(logger)); err != nil {
		return nil, err
	}

	e.provider = options.provider
	if e.provider == nil {
		if e.provider, err = newProvider(cfg); err != nil {
			return nil, err
		}
	}

	pipelineOpts, err := cfg.IngestionOptions()
	if err != nil {
		return nil, err
	}
	pipelineOpts = append(pipelineOpts, ingestion.WithMetrics(e.metrics), ingestion.WithLogger(logger))
	if options.progress != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithProgress(options.progress, progressInterval))
	}
	if e.pipeline, err = ingestion.NewPipeline(e.repository, e.registry, e.provider, pipelineOpts...); err != nil {
		return nil, err
	}

	relOpts := append(cfg.RelatednessOptions(), relatedness.WithMetrics(e.metrics), relatedness.WithLogger(logger))
	if e.relatedness, err = relatedness.NewEngine(relOpts...); err != nil {
		return nil, err
	}
	interpreter, err := query.NewInterpreter(e.provider.Embedder(), append(cfg.QueryOptions(), query.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}
	searchOpts := append(cfg.SearchOptions(), search.WithMetrics(e.metrics), search.WithLogger(logger))
	if e.searcher, err = search.NewSearcher(e.registry, interpreter, e.relatedness, searchOpts...); err != nil {
		return nil, err
	}

	if options.restore {
		if _, err := e.Restore(ctx, 0); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("restore latest snapshot: %w", err)
		}
	}
	ok = true
	return e, nil
}

func newProvider(cfg *config.Config) (ai.AIProvider, error) {
	switch cfg.Embedding.Provider {
	case config.ProviderMock:
		return mock.NewMockProvider(), nil
	default:
		return openai.NewProvider(cfg.AIConfig())
	}
}

// Close releases every component. It is safe to call on a partly opened engine.
func (e *Engine) Close() error {
	if e.searcher != nil {
		e.searcher.Close()
	}
	if e.relatedness != nil {
		e.relatedness.Close()
	}
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	if e.repository != nil {
		if err := e.repository.Close(); err != nil {
			e.logger.Error("error closing snapshot repository", "err", err)
		}
	}
	if e.backend != nil && !e.backend.IsClosed() {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}

// Ingest builds and publishes a new graph version, then prunes old versions
// when the config keeps a bounded number.
func (e *Engine) Ingest(ctx context.Context, provisions []*core.Provision) (*ingestion.Report, error) {
	report, err := e.pipeline.Ingest(ctx, provisions)
	if err != nil {
		return nil, err
	}
	if keep := e.cfg.Database.KeepVersions; keep > 0 {
		if _, err := e.Prune(ctx, keep); err != nil {
			e.logger.Warn("pruning old versions failed", "err", err)
		}
	}
	return report, nil
}

// IngestFile ingests a JSON Lines file of provisions.
func (e *Engine) IngestFile(ctx context.Context, path string) (*ingestion.Report, error) {
	provisions, err := ingestion.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return e.Ingest(ctx, provisions)
}

// Restore publishes a stored version. Zero selects the latest.
func (e *Engine) Restore(ctx context.Context, version uint64) (*ingestion.Report, error) {
	return e.pipeline.Restore(ctx, version)
}

// Versions lists stored snapshots, newest first.
func (e *Engine) Versions(ctx context.Context) ([]core.Manifest, error) {
	return e.repository.ListManifests(ctx)
}

// Prune deletes all but the newest keep stored versions. The published
// version is never deleted.
func (e *Engine) Prune(ctx context.Context, keep int) ([]uint64, error) {
	if keep < 1 && e.registry.Version() > 0 {
		keep = 1
	}
	return e.repository.PruneSnapshots(ctx, keep)
}

// Search ranks provisions for req.
func (e *Engine) Search(ctx context.Context, req search.Request) (*search.Response, error) {
	return e.searcher.Search(ctx, req)
}

// Detail returns one provision by internal id or ref id.
func (e *Engine) Detail(ctx context.Context, id string) (*search.Detail, error) {
	return e.searcher.Detail(ctx, id)
}

// Acts lists the catalog acts.
func (e *Engine) Acts(ctx context.Context) ([]search.ActSummary, error) {
	return e.searcher.Acts(ctx)
}

// NewServer creates an HTTP server for the engine from the server config.
func (e *Engine) NewServer(opts ...server.Option) (*server.Server, error) {
	sc := e.cfg.Server
	base := []server.Option{
		server.WithAddr(sc.Addr),
		server.WithCORSOrigins(sc.CORSOrigins...),
		server.WithRequestTimeout(sc.RequestTimeout),
		server.WithLogger(e.logger),
	}
	if e.metrics != nil {
		base = append(base, server.WithMetrics(e.metrics, e.gatherer))
	}
	return server.New(e.searcher, e.registry, append(base, opts...)...)
}

// Registry returns the registry holding the published graph state.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}
