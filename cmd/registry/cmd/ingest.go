package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/civicproof/boundary-registry/internal/ingest"
	"github.com/civicproof/boundary-registry/internal/merkle"
	"github.com/civicproof/boundary-registry/internal/metrics"
	"github.com/civicproof/boundary-registry/internal/telemetry"
)

var (
	ingestWorkers        int
	ingestMaxRetries     int
	ingestDiscardCorrupt bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <sources.json>",
	Short: "Run a batch ingestion over declared sources",
	Long: `Run a batch ingestion: fetch each declared source, validate its
boundaries, and commit the surviving set as a content-addressed snapshot.

The sources file is a JSON array of source declarations:
[
  {
    "name": "wa-king-county",
    "location": "king-county.geojson",
    "type": "county",
    "jurisdiction": "US-WA",
    "confidence": 95
  }
]

Relative locations resolve against the sources file's directory. Progress is
checkpointed after every source, so an interrupted run resumes without
refetching completed work, and sources whose checksums match the last
committed run are skipped.

Examples:
  # Run ingestion
  registry ingest sources.json

  # Start over after a corrupt checkpoint (discards resume state)
  registry ingest sources.json --discard-corrupt-checkpoint`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args[0])
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "concurrent source jobs (default from INGEST_WORKERS)")
	ingestCmd.Flags().IntVar(&ingestMaxRetries, "max-retries", -1, "fetch retries per source (default from INGEST_MAX_RETRIES)")
	ingestCmd.Flags().BoolVar(&ingestDiscardCorrupt, "discard-corrupt-checkpoint", false, "start over when the stored checkpoint is corrupt")
}

// loadSources reads a source declaration file. Shared with resolve, which
// needs the same declarations to locate geometry.
func loadSources(path string) ([]ingest.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var sources []ingest.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	return sources, nil
}

func runIngest(sourcesPath string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	metrics.Init(Version, GitCommit, BuildDate)

	sources, err := loadSources(sourcesPath)
	if err != nil {
		return err
	}

	snapshots, err := openSnapshots(cfg, logger)
	if err != nil {
		return err
	}
	checkpoints, err := openCheckpoints(cfg)
	if err != nil {
		return err
	}

	opts := ingest.Options{
		Workers:                  cfg.Ingest.Workers,
		MaxRetries:               cfg.Ingest.MaxRetries,
		RetryBackoff:             cfg.Ingest.RetryBackoff,
		FetchTimeout:             cfg.Ingest.FetchTimeout,
		DiscardCorruptCheckpoint: ingestDiscardCorrupt,
	}
	if ingestWorkers > 0 {
		opts.Workers = ingestWorkers
	}
	if ingestMaxRetries >= 0 {
		opts.MaxRetries = ingestMaxRetries
	}

	client := ingest.NewFileClient(filepath.Dir(sourcesPath))
	orch := ingest.NewOrchestrator(merkle.NewPoseidonHasher(), client, checkpoints, snapshots, opts, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		logger.Warn().Err(err).Msg("ingest: tracing disabled")
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("ingest: tracing shutdown")
			}
		}()
	}

	result, err := orch.Run(ctx, sources)
	if err != nil {
		return err
	}

	fmt.Printf("Run:       %s\n", result.RunID)
	fmt.Printf("State:     %s\n", result.State)
	fmt.Printf("Succeeded: %d source(s)\n", len(result.Succeeded))
	fmt.Printf("Skipped:   %d source(s)\n", len(result.Skipped))
	fmt.Printf("Rejected:  %d boundary(ies)\n", result.Rejected)
	for name, msg := range result.Failed {
		fmt.Printf("Failed:    %s: %s\n", name, msg)
	}
	if result.Snapshot != nil {
		fmt.Printf("Snapshot:  %s (%d leaves)\n", result.Snapshot.ID, len(result.Snapshot.Manifest))
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d source(s) failed", len(result.Failed))
	}
	return nil
}
