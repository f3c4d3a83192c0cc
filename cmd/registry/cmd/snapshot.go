package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/civicproof/boundary-registry/internal/snapshot"
)

var (
	snapshotCleanupRetention time.Duration
	snapshotCleanupDryRun    bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect and manage committed snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		snapshots, err := openSnapshots(cfg, logger)
		if err != nil {
			return err
		}
		entries, err := snapshots.List(context.Background())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, e := range entries {
			parent := e.ParentID
			if parent == "" {
				parent = "-"
			}
			fmt.Printf("%s  %s  %6d leaves  parent %s\n", e.ID, e.CreatedAt.Format(time.RFC3339), e.LeafCount, parent)
		}
		return nil
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Show a snapshot's roots and manifest summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		snapshots, err := openSnapshots(cfg, logger)
		if err != nil {
			return err
		}
		snap, err := snapshots.Load(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Snapshot:  %s\n", snap.ID)
		fmt.Printf("Created:   %s\n", snap.CreatedAt.Format(time.RFC3339))
		if snap.ParentID != "" {
			fmt.Printf("Parent:    %s\n", snap.ParentID)
		}
		fmt.Printf("Leaves:    %d\n", len(snap.Manifest))
		fmt.Printf("Root:      %s\n", snap.Root.Hex())
		for _, lr := range snap.LayerRoots {
			fmt.Printf("  %-22s %s\n", lr.Type, lr.Root.Hex())
		}
		return nil
	},
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff <older-id> <newer-id>",
	Short: "Show boundaries added, removed, or modified between two snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		snapshots, err := openSnapshots(cfg, logger)
		if err != nil {
			return err
		}

		ctx := context.Background()
		older, err := snapshots.Load(ctx, args[0])
		if err != nil {
			return err
		}
		newer, err := snapshots.Load(ctx, args[1])
		if err != nil {
			return err
		}

		diff := snapshot.ComputeDiff(older, newer)
		if diff.Empty() {
			fmt.Println("No changes.")
			return nil
		}
		out, err := json.MarshalIndent(diff, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var snapshotCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove snapshots older than the retention window",
	Long: `Remove snapshots older than the retention window. A snapshot that is
the parent of a retained snapshot is kept regardless of age, so lineage
stays intact for audit and rollback.

Examples:
  # See what a 30-day retention would remove
  registry snapshot cleanup --retention 720h --dry-run

  # Actually remove them
  registry snapshot cleanup --retention 720h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		snapshots, err := openSnapshots(cfg, logger)
		if err != nil {
			return err
		}
		deleted, err := snapshots.Cleanup(context.Background(), snapshotCleanupRetention, snapshotCleanupDryRun)
		if err != nil {
			return err
		}
		verb := "Deleted"
		if snapshotCleanupDryRun {
			verb = "Would delete"
		}
		fmt.Printf("%s %d snapshot(s)\n", verb, len(deleted))
		for _, e := range deleted {
			fmt.Printf("  %s  %s\n", e.ID, e.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotDiffCmd)
	snapshotCmd.AddCommand(snapshotCleanupCmd)

	snapshotCleanupCmd.Flags().DurationVar(&snapshotCleanupRetention, "retention", 30*24*time.Hour, "retention window")
	snapshotCleanupCmd.Flags().BoolVar(&snapshotCleanupDryRun, "dry-run", false, "report without deleting")
}
