package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/civicproof/boundary-registry/internal/merkle"
	"github.com/civicproof/boundary-registry/internal/merkle/global"
)

var globalCmd = &cobra.Command{
	Use:   "global",
	Short: "Aggregate per-country roots into the global root",
	Long: `Aggregate composite roots published by per-country registries into
continental roots and a single global root.

The roots file is a JSON object mapping ISO 3166-1 alpha-2 country codes to
composite root digests (hex):
{
  "US": "4f1c...",
  "CA": "8a02..."
}`,
}

var globalRootCmd = &cobra.Command{
	Use:   "root <country-roots.json>",
	Short: "Compute continental and global roots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := buildGlobalTree(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Continent table: %s\n", tree.TableVersion())
		for _, cr := range tree.ContinentRoots() {
			fmt.Printf("  %s  %s\n", cr.Code, cr.Root.Hex())
		}
		fmt.Printf("Global root: %s\n", tree.Root().Hex())
		return nil
	},
}

var globalProveCmd = &cobra.Command{
	Use:   "prove <country-code> <country-roots.json>",
	Short: "Produce a country-to-global proof",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("expected <country-code> <country-roots.json>")
		}
		tree, err := buildGlobalTree(args[1])
		if err != nil {
			return err
		}
		proof, err := tree.ProveCountry(args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(proof, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(globalCmd)
	globalCmd.AddCommand(globalRootCmd)
	globalCmd.AddCommand(globalProveCmd)
}

func buildGlobalTree(rootsPath string) (*global.Tree, error) {
	data, err := os.ReadFile(rootsPath)
	if err != nil {
		return nil, fmt.Errorf("read roots file: %w", err)
	}
	var hexRoots map[string]string
	if err := json.Unmarshal(data, &hexRoots); err != nil {
		return nil, fmt.Errorf("parse roots file: %w", err)
	}

	countryRoots := make(map[string]merkle.Digest, len(hexRoots))
	codes := make([]string, 0, len(hexRoots))
	for code := range hexRoots {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		d, err := merkle.DigestFromHex(hexRoots[code])
		if err != nil {
			return nil, fmt.Errorf("parse root for %s: %w", code, err)
		}
		countryRoots[code] = d
	}
	return global.Build(merkle.NewPoseidonHasher(), countryRoots)
}
