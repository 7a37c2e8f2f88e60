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
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/placefinder"
	"github.com/poiesic/placefinder/config"
)

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to the database directory",
		Required: true,
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Settings file (TOML); embedded defaults when empty",
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "placefinder",
		Usage: "Forward geocoding over an imported gazetteer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import places from a JSON lines file",
				ArgsUsage: " ",
				Action:    importCommand,
				Flags: []cli.Flag{
					dbFlag(),
					configFlag(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON lines file with one place per line ('-' for stdin)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of places stored per transaction",
						Value: 500,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of workers deriving word tokens",
						Value: 4,
					},
					&cli.BoolFlag{
						Name:  "no-phrases",
						Usage: "Skip importing special phrases and country names",
					},
					&cli.BoolFlag{
						Name:  "no-refresh",
						Usage: "Skip recomputing word counts after the import",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search places",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					dbFlag(),
					configFlag(),
					&cli.StringSliceFlag{
						Name:  "countries",
						Usage: "Restrict results to these country codes",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Time budget for the query",
						Value: 2 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print the token graph and every executed search",
					},
				},
			},
			{
				Name:      "analyze",
				Usage:     "Print the token graph and the searches built for a query",
				ArgsUsage: "QUERY...",
				Action:    analyzeCommand,
				Flags:     []cli.Flag{dbFlag(), configFlag()},
			},
			{
				Name:   "batch",
				Usage:  "Run the queries of a file, one per line",
				Action: batchCommand,
				Flags: []cli.Flag{
					dbFlag(),
					configFlag(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "File with one query per line ('-' for stdin)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of queries run concurrently",
						Value: 4,
					},
					&cli.Float64Flag{
						Name:  "rate",
						Usage: "Maximum queries per second (0 for unlimited)",
					},
				},
			},
			{
				Name:   "refresh-stats",
				Usage:  "Recompute the word frequency counts",
				Action: refreshCommand,
				Flags: []cli.Flag{
					dbFlag(),
					configFlag(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of places per batch",
						Value: 1000,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of goroutines counting tokens",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N places",
						Value: 10000,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed updates",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 100 * time.Millisecond,
					},
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default()
}

// openDatabase opens the database named by the db flag.
func openDatabase(c *cli.Context) (*placefinder.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := placefinder.Open(c.String("db"), placefinder.WithConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func queryText(c *cli.Context) (string, error) {
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("query is required")
	}
	return text, nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
