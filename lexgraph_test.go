package lexgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lexgraph/ai/mock"
	"github.com/poiesic/lexgraph/config"
	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/search"
	"github.com/poiesic/lexgraph/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "db")
	cfg.Embedding.Provider = config.ProviderMock
	return cfg
}

func openEngine(t *testing.T, cfg *config.Config, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	return e
}

func writeJSONL(t *testing.T, provisions []*core.Provision) string {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range provisions {
		require.NoError(t, enc.Encode(p))
	}
	path := filepath.Join(t.TempDir(), "provisions.jsonl")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "bogus"
	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestEngineNotReadyBeforeIngest(t *testing.T) {
	e := openEngine(t, testConfig(t))
	defer e.Close()

	_, err := e.Search(context.Background(), search.Request{Query: "income"})
	assert.ErrorIs(t, err, core.ErrGraphNotReady)

	versions, err := e.Versions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestEngineIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t), WithProvider(mock.NewMockProvider()))
	defer e.Close()

	report, err := e.IngestFile(ctx, writeJSONL(t, graph.SampleProvisions()))
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Version)
	assert.Equal(t, 16, report.Nodes)
	assert.EqualValues(t, 1, e.Registry().Version())

	resp, err := e.Search(ctx, search.Request{Query: "s 6-5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ITAA1997_Section_6-5"}, resp.QueryInterpretation.Provisions)
	assert.NotEmpty(t, resp.Results)

	d, err := e.Detail(ctx, "ITAA1997:Section:6-5")
	require.NoError(t, err)
	assert.Equal(t, "ITAA1997_Section_6-5", d.ID)

	acts, err := e.Acts(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, acts)
}

func TestEngineRestoresOnOpen(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	e := openEngine(t, cfg)
	_, err := e.Ingest(ctx, graph.SampleProvisions())
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reopened := openEngine(t, cfg)
	assert.EqualValues(t, 1, reopened.Registry().Version())
	d, err := reopened.Detail(ctx, "ITAA1997_Section_6-5")
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.GraphVersion)
	require.NoError(t, reopened.Close())

	skipped := openEngine(t, cfg, WithRestore(false))
	defer skipped.Close()
	assert.Zero(t, skipped.Registry().Version())
	_, err = skipped.Search(ctx, search.Request{Query: "income"})
	assert.ErrorIs(t, err, core.ErrGraphNotReady)
}

func TestEngineKeepVersions(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.KeepVersions = 2
	e := openEngine(t, cfg)
	defer e.Close()

	for range 3 {
		_, err := e.Ingest(ctx, graph.SampleProvisions())
		require.NoError(t, err)
	}
	versions, err := e.Versions(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.EqualValues(t, 3, versions[0].Version)
	assert.EqualValues(t, 2, versions[1].Version)
}

func TestEnginePruneKeepsPublished(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig(t))
	defer e.Close()

	for range 2 {
		_, err := e.Ingest(ctx, graph.SampleProvisions())
		require.NoError(t, err)
	}
	deleted, err := e.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, deleted)

	_, err = e.Restore(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngineServer(t *testing.T) {
	ctx := context.Background()
	promReg := prometheus.NewRegistry()
	e := openEngine(t, testConfig(t), WithPrometheus(promReg))
	defer e.Close()
	_, err := e.Ingest(ctx, graph.SampleProvisions())
	require.NoError(t, err)

	srv, err := e.NewServer()
	require.NoError(t, err)
	assert.Equal(t, ":8080", srv.Addr())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/search?q=ordinary+income", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lexgraph_graph_version 1")
}

func TestEngineProgress(t *testing.T) {
	var buf bytes.Buffer
	e := openEngine(t, testConfig(t), WithProgress(&buf))
	defer e.Close()
	_, err := e.Ingest(context.Background(), graph.SampleProvisions())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "16/16 provisions")
}
