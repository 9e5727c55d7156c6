package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/lexgraph/graph"
	"github.com/poiesic/lexgraph/search"
)

type testEnv struct {
	config string
	input  string
	out    bytes.Buffer
	errOut bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		config: filepath.Join(dir, "lexgraph.yaml"),
		input:  filepath.Join(dir, "provisions.jsonl"),
	}
	cfg := "log_level: warn\n" +
		"database:\n  path: " + filepath.Join(dir, "db") + "\n" +
		"embedding:\n  provider: mock\n"
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0o644))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range graph.SampleProvisions() {
		require.NoError(t, enc.Encode(p))
	}
	require.NoError(t, os.WriteFile(env.input, buf.Bytes(), 0o644))
	return env
}

func (env *testEnv) run(args ...string) error {
	env.out.Reset()
	env.errOut.Reset()
	app := newApp()
	app.Writer = &env.out
	app.ErrWriter = &env.errOut
	return app.Run(append([]string{"lexgraph", "--config", env.config}, args...))
}

func findFlag[T cli.Flag](t *testing.T, cmd *cli.Command, name string) T {
	t.Helper()
	for _, flag := range cmd.Flags {
		if f, ok := flag.(T); ok && flag.Names()[0] == name {
			return f
		}
	}
	var zero T
	t.Fatalf("flag %s not found on %s", name, cmd.Name)
	return zero
}

func TestCommandFlags(t *testing.T) {
	app := newApp()
	byName := make(map[string]*cli.Command)
	for _, cmd := range app.Commands {
		byName[cmd.Name] = cmd
	}
	for _, name := range []string{"ingest", "serve", "search", "show", "versions", "prune"} {
		require.Contains(t, byName, name)
		db := findFlag[*cli.StringFlag](t, byName[name], "db")
		assert.Empty(t, db.Value, "%s --db defaults to the config file", name)
	}

	t.Run("input is required", func(t *testing.T) {
		assert.True(t, findFlag[*cli.StringFlag](t, byName["ingest"], "input").Required)
	})

	t.Run("k defaults to 10", func(t *testing.T) {
		assert.Equal(t, 10, findFlag[*cli.IntFlag](t, byName["search"], "k").Value)
	})

	t.Run("keep is required", func(t *testing.T) {
		assert.True(t, findFlag[*cli.IntFlag](t, byName["prune"], "keep").Required)
	})
}

func TestInvalidLogLevel(t *testing.T) {
	env := newTestEnv(t)
	err := env.run("--log-level", "loud", "versions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestMissingConfig(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	err := app.Run([]string{"lexgraph", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "versions"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestIngestSearchShow(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.run("ingest", "--input", env.input))
	assert.Contains(t, env.out.String(), "Published version 1")
	assert.Contains(t, env.errOut.String(), "16/16 provisions")

	require.NoError(t, env.run("search", "--json", "--k", "3", "s", "6-5"))
	var resp search.Response
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &resp))
	assert.Equal(t, []string{"ITAA1997_Section_6-5"}, resp.QueryInterpretation.Provisions)
	assert.LessOrEqual(t, len(resp.Results), 3)
	assert.EqualValues(t, 1, resp.Debug.GraphVersion)

	require.NoError(t, env.run("search", "ordinary", "income"))
	assert.Contains(t, env.out.String(), "SCORE")
	assert.Contains(t, env.out.String(), "graph version 1")

	require.NoError(t, env.run("show", "ITAA1997:Section:6-5"))
	assert.Contains(t, env.out.String(), "ITAA1997:Section:6-5")
	assert.Contains(t, env.out.String(), "parent:   ITAA1997_Division_6")

	require.NoError(t, env.run("show", "--json", "ITAA1997_Section_6-5"))
	var d search.Detail
	require.NoError(t, json.Unmarshal(env.out.Bytes(), &d))
	assert.Equal(t, "ITAA1997_Section_6-5", d.ID)

	err := env.run("show", "ITAA1997_Section_404")
	assert.ErrorIs(t, err, search.ErrNotFound)

	assert.Error(t, env.run("search"))
	assert.Error(t, env.run("show"))
}

func TestVersionsAndPrune(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.run("versions"))
	assert.Contains(t, env.out.String(), "no stored versions")

	for range 3 {
		require.NoError(t, env.run("ingest", "--no-progress", "--input", env.input))
	}

	require.NoError(t, env.run("versions"))
	assert.Contains(t, env.out.String(), "VERSION")
	assert.Contains(t, env.out.String(), "mock-embedding")

	require.NoError(t, env.run("prune", "--keep", "1"))
	assert.Contains(t, env.out.String(), "deleted 2 versions")

	assert.Error(t, env.run("prune", "--keep", "0"))
}
