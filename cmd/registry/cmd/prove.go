package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/civicproof/boundary-registry/internal/merkle"
	"github.com/civicproof/boundary-registry/internal/snapshot"
)

var (
	proveSnapshotID string
	proveOutput     string
)

var proveCmd = &cobra.Command{
	Use:   "prove <boundary-id>",
	Short: "Produce an inclusion proof bundle for a committed boundary",
	Long: `Produce a proof bundle showing that a boundary was committed in a
snapshot. The bundle carries the leaf-to-layer-root sibling path, all layer
roots, and the composite root; anyone holding the published root can verify
it offline with "registry verify".

Examples:
  # Prove against the latest snapshot
  registry prove seattle-district-3

  # Prove against a specific snapshot, writing to a file
  registry prove seattle-district-3 --snapshot <id> --out proof.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProve(args[0])
	},
}

func init() {
	rootCmd.AddCommand(proveCmd)

	proveCmd.Flags().StringVar(&proveSnapshotID, "snapshot", "", "snapshot id (default: latest)")
	proveCmd.Flags().StringVar(&proveOutput, "out", "", "write the bundle to this file instead of stdout")
}

func runProve(boundaryID string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	snapshots, err := openSnapshots(cfg, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var snap *snapshot.Snapshot
	if proveSnapshotID != "" {
		snap, err = snapshots.Load(ctx, proveSnapshotID)
	} else {
		snap, err = snapshots.Latest(ctx)
	}
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshots committed yet")
	}

	entry, ok := snap.EntryFor(boundaryID)
	if !ok {
		return fmt.Errorf("boundary %q not committed in snapshot %s", boundaryID, snap.ID)
	}

	tree, err := snapshot.RebuildTree(merkle.NewPoseidonHasher(), snap)
	if err != nil {
		return err
	}

	bundle, err := merkle.NewBundle(tree, entry.Type, boundaryID, snap.ID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	if proveOutput != "" {
		if err := os.WriteFile(proveOutput, append(out, '\n'), 0o644); err != nil {
			return fmt.Errorf("write bundle: %w", err)
		}
		fmt.Printf("Proof bundle for %s written to %s\n", boundaryID, proveOutput)
		return nil
	}
	fmt.Println(string(out))
	return nil
}
