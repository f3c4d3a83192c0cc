package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
	"github.com/civicproof/boundary-registry/internal/domain/boundary/resolve"
	"github.com/civicproof/boundary-registry/internal/geojson"
	"github.com/civicproof/boundary-registry/internal/ingest"
	"github.com/civicproof/boundary-registry/internal/metrics"
)

var (
	resolveSourcesPath string
	resolveAt          string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <lat> <lon>",
	Short: "Resolve a point to its most precise containing boundary",
	Long: `Resolve a WGS84 point against the declared boundary sources and report
the most precise boundary containing it, walking the precision hierarchy from
city council district down to country.

Examples:
  # Resolve against current validity
  registry resolve 47.6062 -122.3321 --sources sources.json

  # Resolve as of a past date
  registry resolve 47.6062 -122.3321 --sources sources.json --at 2023-06-01T00:00:00Z`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&resolveSourcesPath, "sources", "", "sources declaration file (required)")
	resolveCmd.Flags().StringVar(&resolveAt, "at", "", "resolve as of this RFC3339 timestamp (default: now)")
	_ = resolveCmd.MarkFlagRequired("sources")
}

func runResolve(latArg, lonArg string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil {
		return fmt.Errorf("parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil {
		return fmt.Errorf("parse longitude: %w", err)
	}
	point := boundary.Point{Lat: lat, Lon: lon}
	if !point.InRange() {
		return fmt.Errorf("point (%f, %f) outside WGS84 range", lat, lon)
	}

	asOf := time.Now().UTC()
	if resolveAt != "" {
		asOf, err = time.Parse(time.RFC3339, resolveAt)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
	}

	candidates, err := loadCandidates(resolveSourcesPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var cache *resolve.Cache
	if cfg.Redis.Addr != "" {
		snapshots, err := openSnapshots(cfg, logger)
		if err != nil {
			return err
		}
		latest, err := snapshots.Latest(ctx)
		if err == nil && latest != nil {
			client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
			cache = resolve.NewCache(client, latest.ID, cfg.Redis.CacheTTL)
		}
	}

	if cache != nil {
		if res, ok, err := cache.Get(ctx, point, asOf); err == nil && ok {
			metrics.ResolveRequestsTotal.WithLabelValues("hit").Inc()
			return printResolution(res)
		}
	}

	res, err := resolve.New().Resolve(point, asOf, candidates)
	if errors.Is(err, resolve.ErrNotFound) {
		metrics.ResolveRequestsTotal.WithLabelValues("not_found").Inc()
		fmt.Printf("No boundary contains (%f, %f) as of %s\n", lat, lon, asOf.Format(time.RFC3339))
		return nil
	}
	if err != nil {
		metrics.ResolveRequestsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.ResolveRequestsTotal.WithLabelValues("hit").Inc()

	if cache != nil {
		if err := cache.Put(ctx, point, asOf, res); err != nil {
			logger.Warn().Err(err).Msg("resolve: cache write failed")
		}
	}
	return printResolution(res)
}

// loadCandidates decodes every declared source into the candidate set the
// resolver walks. Snapshots retain digests only, so geometry always comes
// from the acquisition layer's own files.
func loadCandidates(sourcesPath string) ([]*boundary.Geometry, error) {
	sources, err := loadSources(sourcesPath)
	if err != nil {
		return nil, err
	}

	client := ingest.NewFileClient(filepath.Dir(sourcesPath))
	ctx := context.Background()

	var candidates []*boundary.Geometry
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return nil, err
		}
		data, err := client.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		prov, err := boundary.NewProvenance(src.Name, time.Now(), src.Confidence, nil)
		if err != nil {
			return nil, err
		}
		geoms, _, err := geojson.DecodeFeatureCollection(data, geojson.Defaults{
			Type:         src.Type,
			Jurisdiction: src.Jurisdiction,
			Provenance:   prov,
			ValidFrom:    src.ValidFrom,
		})
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", src.Name, err)
		}
		candidates = append(candidates, geoms...)
	}
	return candidates, nil
}

func printResolution(res resolve.Resolution) error {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
