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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lexgraph/config"
	"github.com/poiesic/lexgraph/tracing"
)

const (
	configKey   = "config"
	shutdownKey = "tracing-shutdown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db",
		Aliases: []string{"d"},
		Usage:   "Path to BadgerDB database directory (overrides the config file)",
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lexgraph",
		Usage: "Relatedness and search engine for legislative provisions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Build, persist and publish a graph version from a JSON Lines file",
				Action: ingestCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "JSON Lines file of provisions",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Do not report embedding progress",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP search API",
				Action: serveCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:    "addr",
						Aliases: []string{"a"},
						Usage:   "Listen address (overrides the config file)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run one search against the latest stored version",
				ArgsUsage: "query...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of results to skip",
					},
					&cli.StringFlag{
						Name:  "scope",
						Usage: "Act id or \"all\"",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full JSON response",
					},
				},
			},
			{
				Name:      "show",
				Usage:     "Show one provision by internal id or ref id",
				ArgsUsage: "id",
				Action:    showCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full JSON record",
					},
				},
			},
			{
				Name:   "versions",
				Usage:  "List stored graph versions",
				Action: versionsCommand,
				Flags:  []cli.Flag{dbFlag()},
			},
			{
				Name:   "prune",
				Usage:  "Delete all but the newest stored versions",
				Action: pruneCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.IntFlag{
						Name:     "keep",
						Aliases:  []string{"k"},
						Usage:    "Number of versions to keep",
						Required: true,
					},
				},
			},
		},
	}
}

// setup loads the config, configures logging and starts tracing.
func setup(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	shutdown, err := tracing.Setup(c.Context, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	c.App.Metadata[shutdownKey] = shutdown
	return nil
}

func teardown(c *cli.Context) error {
	shutdown, ok := c.App.Metadata[shutdownKey].(tracing.Shutdown)
	if !ok || shutdown == nil {
		return nil
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return shutdown(ctx)
}

// commandConfig returns the loaded config with command flag overrides applied.
func commandConfig(c *cli.Context) *config.Config {
	cfg, ok := c.App.Metadata[configKey].(*config.Config)
	if !ok {
		cfg = config.Default()
	}
	if db := c.String("db"); db != "" {
		cfg.Database.Path = db
		cfg.Database.InMemory = false
	}
	return cfg
}
