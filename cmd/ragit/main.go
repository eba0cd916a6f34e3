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
	"strings"
	"time"

	"github.com/poiesic/ragit"
	"github.com/poiesic/ragit/ai"
	"github.com/poiesic/ragit/core"
	"github.com/poiesic/ragit/tasks"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "ragit",
		Usage: "Per-project document ingestion, chunking, and vector indexing",
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
				Name:   "register",
				Usage:  "Register a project file for ingestion",
				Action: registerCommand,
				Flags: append(databaseFlags(),
					&cli.Uint64Flag{
						Name:     "project",
						Aliases:  []string{"p"},
						Usage:    "Project ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "File name inside the project directory",
						Required: true,
					},
				),
			},
			{
				Name:   "ingest",
				Usage:  "Load, split, and store chunks for a project's files",
				Action: ingestCommand,
				Flags:  append(databaseFlags(), jobFlags(true)...),
			},
			{
				Name:   "index",
				Usage:  "Embed a project's chunks into its vector collection",
				Action: indexCommand,
				Flags:  append(databaseFlags(), jobFlags(false)...),
			},
			{
				Name:   "workflow",
				Usage:  "Run ingest and, on success, index as one chained workflow",
				Action: workflowCommand,
				Flags:  append(databaseFlags(), jobFlags(true)...),
			},
			{
				Name:   "status",
				Usage:  "Show the state and outcome of a job",
				Action: statusCommand,
				Flags: append(databaseFlags(),
					&cli.Uint64Flag{
						Name:     "job",
						Aliases:  []string{"j"},
						Usage:    "Job ID",
						Required: true,
					},
				),
			},
			{
				Name:   "search",
				Usage:  "Search a project's indexed chunks",
				Action: searchCommand,
				Flags: append(databaseFlags(),
					&cli.Uint64Flag{
						Name:     "project",
						Aliases:  []string{"p"},
						Usage:    "Project ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Query text",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 5,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// databaseFlags are shared by every command that opens the database.
func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "data-dir",
			Usage:    "Directory holding project files and the vector database",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "vector-backend",
			Usage: "Vector store backend (embedded, sqlite)",
			Value: "sqlite",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.IntFlag{
			Name:  "embedding-size",
			Usage: "Embedding vector dimension",
			Value: 768,
		},
	}
}

// jobFlags are shared by the job-submitting commands. Ingestion parameters
// are only included where the command runs an ingest stage.
func jobFlags(withIngest bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.Uint64Flag{
			Name:     "project",
			Aliases:  []string{"p"},
			Usage:    "Project ID",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "Delete existing chunks and vectors before running",
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Maximum attempts per job",
			Value: 3,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Delay between job attempts",
			Value: 60 * time.Second,
		},
	}
	if withIngest {
		flags = append(flags,
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Process only this file (all registered files if omitted)",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Maximum chunk size in characters",
				Value: 500,
			},
			&cli.IntFlag{
				Name:  "overlap",
				Usage: "Overlap between consecutive chunks in characters",
				Value: 50,
			},
		)
	}
	return flags
}

func openDatabase(c *cli.Context) (*ragit.Database, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithEmbeddingSize(c.Int("embedding-size")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	db, err := ragit.NewDatabase(c.String("db"), c.String("data-dir"),
		ragit.WithVectorBackend(ragit.VectorBackend(c.String("vector-backend"))),
		ragit.WithAIConfig(aiConfig),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func newEngine(c *cli.Context, db *ragit.Database) (*tasks.Engine, error) {
	policy := tasks.RetryPolicy{
		MaxAttempts: c.Int("max-attempts"),
		Delay:       c.Duration("retry-delay"),
	}
	return db.NewJobEngine(
		tasks.WithRetryPolicy(core.JobTypeIngest, policy),
		tasks.WithRetryPolicy(core.JobTypeIndex, policy),
	)
}

func registerCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	asset, err := pipeline.RegisterFile(context.Background(),
		core.ID(c.Uint64("project")), c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to register file: %w", err)
	}

	fmt.Printf("Registered %s (asset %d, %d bytes)\n", asset.Name, asset.Id, asset.Size)
	return nil
}

func ingestCommand(c *cli.Context) error {
	return runJob(c, func(ctx context.Context, engine *tasks.Engine) (core.ID, error) {
		return engine.SubmitIngest(ctx, core.ID(c.Uint64("project")),
			c.String("file"), c.Int("chunk-size"), c.Int("overlap"), c.Bool("reset"))
	})
}

func indexCommand(c *cli.Context) error {
	return runJob(c, func(ctx context.Context, engine *tasks.Engine) (core.ID, error) {
		return engine.SubmitIndex(ctx, core.ID(c.Uint64("project")), c.Bool("reset"))
	})
}

func workflowCommand(c *cli.Context) error {
	return runJob(c, func(ctx context.Context, engine *tasks.Engine) (core.ID, error) {
		return engine.SubmitWorkflow(ctx, core.ID(c.Uint64("project")),
			c.String("file"), c.Int("chunk-size"), c.Int("overlap"), c.Bool("reset"))
	})
}

// runJob opens the database, recovers any jobs left over from a previous
// run, submits one job, and waits for everything to finish.
func runJob(c *cli.Context, submit func(context.Context, *tasks.Engine) (core.ID, error)) error {
	ctx := context.Background()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := newEngine(c, db)
	if err != nil {
		return fmt.Errorf("failed to create job engine: %w", err)
	}
	defer engine.Release()

	if err := engine.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	id, err := submit(ctx, engine)
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Submitted job %d\n", id)

	engine.Wait()
	return printJob(ctx, db, id)
}

func statusCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	return printJob(context.Background(), db, core.ID(c.Uint64("job")))
}

func printJob(ctx context.Context, db *ragit.Database, id core.ID) error {
	job, err := db.JobRepository().GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", id, err)
	}

	fmt.Printf("Job %d (%s): %s\n", job.Id, job.Type, job.State)
	if job.Signal != "" {
		fmt.Printf("  Signal: %s\n", job.Signal)
	}
	switch job.Type {
	case core.JobTypeIngest:
		fmt.Printf("  Files processed: %d, chunks inserted: %d\n",
			job.ProcessedFiles, job.InsertedChunks)
	case core.JobTypeIndex:
		fmt.Printf("  Chunks indexed: %d\n", job.IndexedCount)
	}
	if job.State == core.JobStateFailure {
		return fmt.Errorf("job %d failed after %d attempts", job.Id, job.Attempts)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.NewSearcher().Search(context.Background(),
		core.ID(c.Uint64("project")), c.String("query"), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}
	for i, result := range results {
		fmt.Printf("%d. [%.4f] %s\n", i+1, result.Score, result.Text)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
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

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
