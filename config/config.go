// Package config reads the optional YAML configuration file and maps it
// onto component options.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/lexgraph/ai"
	"github.com/poiesic/lexgraph/baseline"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/embedding"
	"github.com/poiesic/lexgraph/ingestion"
	"github.com/poiesic/lexgraph/query"
	"github.com/poiesic/lexgraph/relatedness"
	"github.com/poiesic/lexgraph/search"
	"github.com/poiesic/lexgraph/tracing"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ErrInvalidConfig indicates a configuration value out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full configuration of a lexgraph process.
type Config struct {
	LogLevel    string         `yaml:"log_level"`
	Database    Database       `yaml:"database"`
	Embedding   Embedding      `yaml:"embedding"`
	Ingestion   Ingestion      `yaml:"ingestion"`
	Baseline    Baseline       `yaml:"baseline"`
	Relatedness Relatedness    `yaml:"relatedness"`
	Query       Query          `yaml:"query"`
	Search      Search         `yaml:"search"`
	Server      Server         `yaml:"server"`
	Tracing     tracing.Config `yaml:"tracing"`
	Acts        []core.Act     `yaml:"acts"` // empty selects the built-in catalog
}

type Database struct {
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
	// KeepVersions prunes older snapshots after each ingestion; 0 keeps all.
	KeepVersions int `yaml:"keep_versions"`
}

type Embedding struct {
	Provider  string `yaml:"provider"`
	ai.Config `yaml:",inline"`
}

type Ingestion struct {
	PoolSize       int           `yaml:"pool_size"`
	BatchSize      int           `yaml:"batch_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkOverlap   int           `yaml:"chunk_overlap"`
	HNSWThreshold  int           `yaml:"hnsw_threshold"`
	HNSWM          int           `yaml:"hnsw_m"`
	EfConstruction int           `yaml:"ef_construction"`
	EfSearch       int           `yaml:"ef_search"`
}

type Baseline struct {
	Damping         float64 `yaml:"damping"`
	Tolerance       float64 `yaml:"tolerance"`
	MaxIterations   int     `yaml:"max_iterations"`
	CitationWeight  float64 `yaml:"citation_weight"`
	HierarchyWeight float64 `yaml:"hierarchy_weight"`
}

type Relatedness struct {
	MaxDepth      int                     `yaml:"max_depth"`
	MaxNodes      int                     `yaml:"max_nodes"`
	TermFanOut    int                     `yaml:"term_fan_out"`
	SemanticK     int                     `yaml:"semantic_k"`
	Restart       float64                 `yaml:"restart"`
	Tolerance     float64                 `yaml:"tolerance"`
	MaxIterations int                     `yaml:"max_iterations"`
	TopK          int                     `yaml:"top_k"`
	CacheCapacity int                     `yaml:"cache_capacity"`
	Views         relatedness.ViewWeights `yaml:"views"`
}

type Query struct {
	PseudoSeeds   int     `yaml:"pseudo_seeds"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

type SeedWeights struct {
	Provision  float64 `yaml:"provision"`
	Definition float64 `yaml:"definition"`
	Pseudo     float64 `yaml:"pseudo"`
}

type Search struct {
	Weights       search.Weights `yaml:"weights"`
	SeedWeights   SeedWeights    `yaml:"seed_weights"`
	MinStrictHits int            `yaml:"min_strict_hits"`
	SemanticK     int            `yaml:"semantic_k"`
	PPRBudget     time.Duration  `yaml:"ppr_budget"`
	CacheTTL      time.Duration  `yaml:"cache_ttl"`
	CacheCapacity int            `yaml:"cache_capacity"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Database:  Database{Path: "./lexgraph_db"},
		Embedding: Embedding{Provider: ProviderOpenAI, Config: *ai.DefaultConfig()},
		Ingestion: Ingestion{
			BatchSize:      ingestion.DefaultBatchSize,
			MaxAttempts:    ingestion.DefaultMaxAttempts,
			RetryBaseDelay: ingestion.DefaultRetryBaseDelay,
			ChunkSize:      embedding.DefaultChunkSize,
			ChunkOverlap:   embedding.DefaultChunkOverlap,
			HNSWThreshold:  ingestion.DefaultHNSWThreshold,
			HNSWM:          embedding.DefaultM,
			EfConstruction: embedding.DefaultEfConstruction,
			EfSearch:       embedding.DefaultEfSearch,
		},
		Baseline: Baseline{
			Damping:         baseline.DefaultDamping,
			Tolerance:       baseline.DefaultTolerance,
			MaxIterations:   baseline.DefaultMaxIterations,
			CitationWeight:  baseline.DefaultCitationWeight,
			HierarchyWeight: baseline.DefaultHierarchyWeight,
		},
		Relatedness: Relatedness{
			MaxDepth:      relatedness.DefaultMaxDepth,
			MaxNodes:      relatedness.DefaultMaxNodes,
			TermFanOut:    relatedness.DefaultTermFanOut,
			SemanticK:     relatedness.DefaultSemanticK,
			Restart:       relatedness.DefaultAlpha,
			Tolerance:     relatedness.DefaultTolerance,
			MaxIterations: relatedness.DefaultMaxIterations,
			TopK:          relatedness.DefaultTopK,
			CacheCapacity: relatedness.DefaultCacheCapacity,
			Views:         relatedness.DefaultViewWeights(),
		},
		Query: Query{
			PseudoSeeds:   query.DefaultPseudoSeeds,
			MinSimilarity: query.DefaultMinSimilarity,
		},
		Search: Search{
			Weights: search.DefaultWeights(),
			SeedWeights: SeedWeights{
				Provision:  search.DefaultProvisionSeedWeight,
				Definition: search.DefaultDefinitionSeedWeight,
				Pseudo:     search.DefaultPseudoSeedWeight,
			},
			MinStrictHits: search.DefaultMinStrictHits,
			SemanticK:     search.DefaultSemanticK,
			PPRBudget:     search.DefaultPPRBudget,
			CacheTTL:      search.DefaultCacheTTL,
			CacheCapacity: search.DefaultCacheCapacity,
		},
		Server: Server{
			Addr:            ":8080",
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
// Keys missing from data keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that no component option validates on its own.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderMock:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if !c.Database.InMemory && strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}
	if c.Database.KeepVersions < 0 {
		return fmt.Errorf("%w: keep_versions must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
}

// Catalog returns the configured act catalog.
func (c *Config) Catalog() (*core.Catalog, error) {
	if len(c.Acts) == 0 {
		return core.DefaultCatalog(), nil
	}
	return core.NewCatalog(c.Acts)
}

// AIConfig returns a copy of the embedding service configuration.
func (c *Config) AIConfig() *ai.Config {
	cfg := c.Embedding.Config
	return &cfg
}

// BaselineOptions maps the baseline section onto analyzer options.
func (c *Config) BaselineOptions() []baseline.Option {
	b := c.Baseline
	return []baseline.Option{
		baseline.WithDamping(b.Damping),
		baseline.WithTolerance(b.Tolerance),
		baseline.WithMaxIterations(b.MaxIterations),
		baseline.WithEdgeWeights(b.CitationWeight, b.HierarchyWeight),
	}
}

// IngestionOptions maps the ingestion and baseline sections onto pipeline options.
func (c *Config) IngestionOptions() ([]ingestion.Option, error) {
	in := c.Ingestion
	catalog, err := c.Catalog()
	if err != nil {
		return nil, err
	}
	opts := []ingestion.Option{
		ingestion.WithCatalog(catalog),
		ingestion.WithBatchSize(in.BatchSize),
		ingestion.WithRetry(in.MaxAttempts, in.RetryBaseDelay),
		ingestion.WithChunker(embedding.Chunker{Size: in.ChunkSize, Overlap: in.ChunkOverlap}),
		ingestion.WithIndex(in.HNSWThreshold,
			embedding.WithM(in.HNSWM),
			embedding.WithEfConstruction(in.EfConstruction),
			embedding.WithEfSearch(in.EfSearch)),
		ingestion.WithBaselineOptions(c.BaselineOptions()...),
	}
	if in.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(in.PoolSize))
	}
	return opts, nil
}

// RelatednessOptions maps the relatedness section onto engine options.
func (c *Config) RelatednessOptions() []relatedness.Option {
	r := c.Relatedness
	return []relatedness.Option{
		relatedness.WithMaxDepth(r.MaxDepth),
		relatedness.WithMaxNodes(r.MaxNodes),
		relatedness.WithTermFanOut(r.TermFanOut),
		relatedness.WithSemanticK(r.SemanticK),
		relatedness.WithRestart(r.Restart),
		relatedness.WithTolerance(r.Tolerance),
		relatedness.WithMaxIterations(r.MaxIterations),
		relatedness.WithTopK(r.TopK),
		relatedness.WithCacheCapacity(r.CacheCapacity),
		relatedness.WithViewWeights(r.Views),
	}
}

// QueryOptions maps the query section onto interpreter options.
func (c *Config) QueryOptions() []query.Option {
	return []query.Option{query.WithPseudoSeeds(c.Query.PseudoSeeds, c.Query.MinSimilarity)}
}

// SearchOptions maps the search section onto searcher options.
func (c *Config) SearchOptions() []search.Option {
	s := c.Search
	return []search.Option{
		search.WithWeights(s.Weights),
		search.WithSeedWeights(s.SeedWeights.Provision, s.SeedWeights.Definition, s.SeedWeights.Pseudo),
		search.WithMinStrictHits(s.MinStrictHits),
		search.WithSemanticK(s.SemanticK),
		search.WithPPRBudget(s.PPRBudget),
		search.WithCache(s.CacheTTL, s.CacheCapacity),
	}
}
