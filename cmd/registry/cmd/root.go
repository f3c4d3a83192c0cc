package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/civicproof/boundary-registry/internal/config"
	"github.com/civicproof/boundary-registry/internal/ingest/checkpoint"
	"github.com/civicproof/boundary-registry/internal/snapshot"
	"github.com/civicproof/boundary-registry/internal/storage/postgres"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "registry",
		Short: "Verifiable boundary registry",
		Long: `registry maintains a versioned, cryptographically verifiable registry of
political and administrative boundaries.

Boundary sets are committed into per-type Merkle layer trees whose roots fold
into a single composite root; each committed set is an immutable,
content-addressed snapshot. The registry resolves points to their most
precise containing boundary and produces inclusion proofs any third party can
verify offline against a published root.`,
	}
)

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")
}

// setup loads configuration with flag overrides applied and builds the
// process logger.
func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, config.NewLogger(cfg.Logging), nil
}

// openSnapshots picks the snapshot backend: PostgreSQL when a database URL
// is configured, the file store otherwise.
func openSnapshots(cfg config.Config, logger zerolog.Logger) (*snapshot.Manager, error) {
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(context.Background(), cfg.Database)
		if err != nil {
			return nil, err
		}
		catalog, err := postgres.NewSnapshotCatalog(pool)
		if err != nil {
			return nil, err
		}
		return snapshot.NewManager(catalog, logger), nil
	}

	store, err := snapshot.NewFileStore(cfg.SnapshotDir)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return snapshot.NewManager(store, logger), nil
}

// openCheckpoints picks the checkpoint backend the same way.
func openCheckpoints(cfg config.Config) (checkpoint.Store, error) {
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(context.Background(), cfg.Database)
		if err != nil {
			return nil, err
		}
		return postgres.NewCheckpointStore(pool)
	}

	store, err := checkpoint.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return store, nil
}
