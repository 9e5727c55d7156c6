package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/lexgraph"
	"github.com/poiesic/lexgraph/config"
	"github.com/poiesic/lexgraph/search"
)

func openEngine(c *cli.Context, cfg *config.Config, opts ...lexgraph.EngineOption) (*lexgraph.Engine, error) {
	e, err := lexgraph.Open(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return e, nil
}

func ingestCommand(c *cli.Context) error {
	var opts []lexgraph.EngineOption
	if !c.Bool("no-progress") {
		opts = append(opts, lexgraph.WithProgress(c.App.ErrWriter))
	}
	e, err := openEngine(c, commandConfig(c), opts...)
	if err != nil {
		return err
	}
	defer e.Close()

	input := c.String("input")
	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", e.Config().Database.Path)
	fmt.Fprintf(c.App.ErrWriter, "Input: %s\n", input)
	fmt.Fprintln(c.App.ErrWriter)

	report, err := e.IngestFile(c.Context, input)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Published version %d\n", report.Version)
	fmt.Fprintf(w, "  nodes:      %d (%d excluded)\n", report.Nodes, report.Stats.Excluded)
	fmt.Fprintf(w, "  edges:      %d citation, %d term, %d hierarchy\n",
		report.Stats.CitationEdges, report.Stats.TermEdges, report.Stats.HierarchyEdges)
	fmt.Fprintf(w, "  unresolved: %d citations\n", report.Stats.UnresolvedCitations)
	fmt.Fprintf(w, "  vectors:    %d embedded, %d reused, %d skipped (dim %d)\n",
		report.Embedded, report.Reused, report.Skipped, report.Dimension)
	fmt.Fprintf(w, "  baseline:   %d iterations, converged=%t\n", report.BaselineIterations, report.BaselineConverged)
	fmt.Fprintf(w, "  duration:   %s\n", report.Duration.Round(time.Millisecond))
	return nil
}

func serveCommand(c *cli.Context) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cfg := commandConfig(c)
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	e, err := openEngine(c, cfg, lexgraph.WithPrometheus(promReg))
	if err != nil {
		return err
	}
	defer e.Close()

	srv, err := e.NewServer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}

func searchCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("a query is required")
	}
	e, err := openEngine(c, commandConfig(c))
	if err != nil {
		return err
	}
	defer e.Close()

	resp, err := e.Search(c.Context, search.Request{
		Query:  text,
		K:      c.Int("k"),
		Offset: c.Int("offset"),
		Scope:  c.String("scope"),
	})
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c, resp)
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tREF\tTITLE")
	for i, r := range resp.Results {
		fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\n", resp.Pagination.Offset+i+1, r.ScoreURS, r.RefID, r.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\n%d of %d results (graph version %d)\n",
		len(resp.Results), resp.Pagination.Total, resp.Debug.GraphVersion)
	for _, w := range resp.Debug.Warnings {
		fmt.Fprintf(c.App.Writer, "warning: %s\n", w)
	}
	return nil
}

func showCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one provision id is required")
	}
	e, err := openEngine(c, commandConfig(c))
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := e.Detail(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c, d)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "%s  %s\n", d.RefID, d.Title)
	fmt.Fprintf(w, "id:       %s\n", d.ID)
	fmt.Fprintf(w, "path:     %s\n", d.Path)
	if d.Parent != "" {
		fmt.Fprintf(w, "parent:   %s\n", d.Parent)
	}
	fmt.Fprintf(w, "baseline: %.6f\n", d.Baseline)
	fmt.Fprintf(w, "degree:   %d cites, %d cited by, %d terms, %d children\n",
		d.CitationsOut, d.CitationsIn, d.TermsUsed, d.NumChildren)
	if d.Excluded {
		fmt.Fprintln(w, "excluded from ranking")
	}
	for _, ref := range d.Citations {
		fmt.Fprintf(w, "  -> %s  %s\n", ref.RefID, ref.Title)
	}
	if d.Content != "" {
		fmt.Fprintf(w, "\n%s\n", d.Content)
	}
	return nil
}

func versionsCommand(c *cli.Context) error {
	e, err := openEngine(c, commandConfig(c), lexgraph.WithRestore(false))
	if err != nil {
		return err
	}
	defer e.Close()

	manifests, err := e.Versions(c.Context)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Fprintln(c.App.Writer, "no stored versions")
		return nil
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tCREATED\tNODES\tMODEL\tDEGRADED")
	for _, m := range manifests {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%t\n",
			m.Version, m.CreatedAt.Format(time.RFC3339), m.NodeCount, m.EmbeddingModel, m.Degraded)
	}
	return tw.Flush()
}

func pruneCommand(c *cli.Context) error {
	keep := c.Int("keep")
	if keep < 1 {
		return errors.New("keep must be at least 1")
	}
	e, err := openEngine(c, commandConfig(c), lexgraph.WithRestore(false))
	if err != nil {
		return err
	}
	defer e.Close()

	deleted, err := e.Prune(c.Context, keep)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %d versions\n", len(deleted))
	for _, v := range deleted {
		fmt.Fprintf(c.App.Writer, "  %d\n", v)
	}
	return nil
}

func writeJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
