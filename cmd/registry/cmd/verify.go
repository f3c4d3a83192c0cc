package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/civicproof/boundary-registry/internal/merkle"
)

var verifyRoot string

var verifyCmd = &cobra.Command{
	Use:   "verify <bundle.json>",
	Short: "Verify an inclusion proof bundle offline",
	Long: `Verify a proof bundle produced by "registry prove". Verification is
fully offline: the sibling path must reach the bundle's layer root, and the
layer roots must fold to the composite root. Pass --root to additionally pin
the composite root to a value you obtained out of band.

Examples:
  registry verify proof.json
  registry verify proof.json --root 4f1c...9a`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(args[0])
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyRoot, "root", "", "expected composite root (hex), obtained out of band")
}

func runVerify(bundlePath string) error {
	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	var bundle merkle.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	if verifyRoot != "" {
		expected, err := merkle.DigestFromHex(verifyRoot)
		if err != nil {
			return fmt.Errorf("parse --root: %w", err)
		}
		if bundle.Root != expected {
			return fmt.Errorf("bundle root %s does not match expected root %s", bundle.Root.Hex(), verifyRoot)
		}
	}

	if err := bundle.Verify(merkle.NewPoseidonHasher()); err != nil {
		return err
	}

	fmt.Printf("OK: %s committed in snapshot %s\n", bundle.BoundaryID, bundle.SnapshotID)
	fmt.Printf("Root: %s\n", bundle.Root.Hex())
	return nil
}
