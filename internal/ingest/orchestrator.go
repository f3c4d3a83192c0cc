// Package ingest runs batch ingestion: fetch declared sources, validate and
// canonicalize their boundaries, commit the surviving set as a snapshot, and
// checkpoint progress after every terminal job so an interrupted run resumes
// without refetching completed work.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
	"github.com/civicproof/boundary-registry/internal/geojson"
	"github.com/civicproof/boundary-registry/internal/ingest/checkpoint"
	"github.com/civicproof/boundary-registry/internal/merkle"
	"github.com/civicproof/boundary-registry/internal/metrics"
	"github.com/civicproof/boundary-registry/internal/snapshot"
	"github.com/civicproof/boundary-registry/internal/telemetry"
)

// RunState is the lifecycle of an ingestion run.
type RunState string

const (
	RunIdle          RunState = "idle"
	RunFetching      RunState = "fetching"
	RunValidating    RunState = "validating"
	RunCommitting    RunState = "committing"
	RunCheckpointing RunState = "checkpointing"
	RunCompleted     RunState = "completed"
	RunFailed        RunState = "failed"
	RunPaused        RunState = "paused" // interrupted, resumable from checkpoint
)

// ErrNoBoundaries means every source job failed or produced nothing, so
// there is no leaf set to commit.
var ErrNoBoundaries = errors.New("ingest: no boundaries to commit")

// DuplicateIDError reports a boundary id claimed by two different sources.
// The run refuses to commit: the registry cannot decide which source owns
// the id, and silently dropping one would corrupt provenance.
type DuplicateIDError struct {
	BoundaryID string
	Sources    [2]string
}

func (e DuplicateIDError) Error() string {
	return fmt.Sprintf("boundary %q claimed by sources %q and %q", e.BoundaryID, e.Sources[0], e.Sources[1])
}

// Options tune an ingestion run.
type Options struct {
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	FetchTimeout time.Duration

	// DiscardCorruptCheckpoint permits starting over when the stored
	// checkpoint cannot be trusted. Without it a corrupt checkpoint fails
	// the run; discarding completed work needs an explicit operator
	// decision.
	DiscardCorruptCheckpoint bool
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 60 * time.Second
	}
	return o
}

// Result summarizes a finished run. Failed maps source names to the error
// that exhausted their retries; a run with failures still commits the
// boundaries its other sources produced.
type Result struct {
	RunID     string
	State     RunState
	Succeeded []string
	Skipped   []string
	Failed    map[string]string
	Rejected  int
	Snapshot  *snapshot.Snapshot
}

// Orchestrator drives ingestion runs over a source client, a checkpoint
// store, and a snapshot manager.
type Orchestrator struct {
	hasher      merkle.Hasher
	client      SourceClient
	checkpoints checkpoint.Store
	snapshots   *snapshot.Manager
	opts        Options
	logger      zerolog.Logger

	mu    sync.Mutex // serializes checkpoint saves and state mutation
	state RunState
}

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(h merkle.Hasher, client SourceClient, checkpoints checkpoint.Store, snapshots *snapshot.Manager, opts Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		hasher:      h,
		client:      client,
		checkpoints: checkpoints,
		snapshots:   snapshots,
		opts:        opts.withDefaults(),
		state:       RunIdle,
		logger:      logger.With().Str("component", "ingest").Logger(),
	}
}

// State returns the current run state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s RunState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes one ingestion pass over sources. It resumes an incomplete
// checkpoint when one exists, skips sources whose checksums match the last
// committed run, fetches and validates the rest under a bounded worker
// pool, and commits the combined leaf set as a content-addressed snapshot.
func (o *Orchestrator) Run(ctx context.Context, sources []Source) (*Result, error) {
	ctx, span := telemetry.GetTracer("ingest").Start(ctx, "ingest.run")
	defer span.End()

	start := time.Now()
	defer func() { metrics.IngestRunDuration.Observe(time.Since(start).Seconds()) }()

	if len(sources) == 0 {
		return nil, fmt.Errorf("ingest: no sources declared")
	}
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return nil, err
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("ingest: duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
	}

	state, previous, err := o.openCheckpoint(ctx)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With().Str("run_id", state.RunID).Logger()
	if previous != nil {
		logger.Info().
			Str("parent_snapshot_id", state.ParentSnapshotID).
			Msg("ingest: change detection against previous run")
	}
	if len(state.Sources) > 0 {
		logger.Info().Int("terminal", state.Cursor).Msg("ingest: resuming from checkpoint")
	}

	o.setState(RunFetching)
	rejected, runErr := o.runJobs(ctx, logger, state, previous, sources)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			// Interrupted, not failed: the checkpoint holds every terminal
			// job and the next run picks up from it.
			o.setState(RunPaused)
			return nil, fmt.Errorf("ingest run %s paused: %w", state.RunID, runErr)
		}
		o.setState(RunFailed)
		return nil, runErr
	}

	o.setState(RunValidating)
	result := &Result{
		RunID:    state.RunID,
		Failed:   make(map[string]string),
		Rejected: rejected,
	}
	for name, st := range state.Sources {
		switch st.State {
		case checkpoint.SourceSucceeded:
			result.Succeeded = append(result.Succeeded, name)
		case checkpoint.SourceSkipped:
			result.Skipped = append(result.Skipped, name)
		case checkpoint.SourceFailed, checkpoint.SourceFailedPermanent:
			result.Failed[name] = st.LastError
		}
	}
	sort.Strings(result.Succeeded)
	sort.Strings(result.Skipped)

	o.setState(RunCommitting)
	snap, err := o.commit(ctx, logger, state)
	if err != nil {
		o.setState(RunFailed)
		result.State = RunFailed
		return result, err
	}
	result.Snapshot = snap

	o.setState(RunCheckpointing)
	state.SnapshotID = snap.ID
	state.Completed = true
	if err := o.saveCheckpoint(ctx, state); err != nil {
		o.setState(RunFailed)
		result.State = RunFailed
		return result, fmt.Errorf("roll over checkpoint: %w", err)
	}

	o.setState(RunCompleted)
	result.State = RunCompleted
	logger.Info().
		Str("snapshot_id", snap.ID).
		Int("succeeded", len(result.Succeeded)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("ingest: run completed")
	return result, nil
}

// openCheckpoint loads stored state and decides between three paths: resume
// an incomplete run, start a fresh run seeded with the previous completed
// run's checksums, or start cold. The previous completed state, when there
// is one, drives change detection and snapshot lineage.
func (o *Orchestrator) openCheckpoint(ctx context.Context) (state, previous *checkpoint.State, err error) {
	stored, err := o.checkpoints.Load(ctx)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		return checkpoint.New(newRunID(), ""), nil, nil
	case errors.Is(err, checkpoint.ErrCorrupt):
		if !o.opts.DiscardCorruptCheckpoint {
			return nil, nil, fmt.Errorf("refusing to start: %w (rerun with discard confirmation to start over)", err)
		}
		o.logger.Warn().Msg("ingest: discarding corrupt checkpoint")
		if clearErr := o.checkpoints.Clear(ctx); clearErr != nil {
			return nil, nil, fmt.Errorf("clear corrupt checkpoint: %w", clearErr)
		}
		return checkpoint.New(newRunID(), ""), nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if stored.Completed {
		return checkpoint.New(newRunID(), stored.SnapshotID), stored, nil
	}
	return stored, nil, nil
}

// runJobs executes every non-terminal source job under a bounded pool and
// checkpoints after each one reaches a terminal state. Returns the count of
// boundaries rejected by validation.
func (o *Orchestrator) runJobs(ctx context.Context, logger zerolog.Logger, state, previous *checkpoint.State, sources []Source) (int, error) {
	var (
		rejectedMu sync.Mutex
		rejected   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for _, src := range sources {
		if st, ok := state.Sources[src.Name]; ok && st.State.Terminal() {
			continue
		}
		src := src
		g.Go(func() error {
			status, nrejected := o.runJob(gctx, logger, src, previous)
			if err := gctx.Err(); err != nil {
				return err
			}

			rejectedMu.Lock()
			rejected += nrejected
			rejectedMu.Unlock()

			metrics.IngestJobsTotal.WithLabelValues(string(status.State)).Inc()

			o.mu.Lock()
			defer o.mu.Unlock()
			state.SetSource(src.Name, status)
			if err := o.checkpoints.Save(ctx, state); err != nil {
				return fmt.Errorf("checkpoint after %s: %w", src.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rejected, err
	}
	return rejected, nil
}

// runJob processes one source to a terminal status. Failures are isolated:
// the returned status carries the error, and only the job's own boundaries
// are lost.
func (o *Orchestrator) runJob(ctx context.Context, logger zerolog.Logger, src Source, previous *checkpoint.State) (checkpoint.SourceStatus, int) {
	jobLog := logger.With().Str("source", src.Name).Logger()

	checksum, err := o.client.Checksum(ctx, src)
	if err != nil {
		jobLog.Error().Err(err).Msg("ingest: checksum failed")
		return checkpoint.SourceStatus{
			State:     checkpoint.SourceFailed,
			LastError: err.Error(),
		}, 0
	}

	// Unchanged since the last committed run: carry the committed leaves
	// forward instead of refetching and re-validating the geometry.
	if previous != nil {
		if prev, ok := previous.Sources[src.Name]; ok &&
			prev.Checksum == checksum &&
			prev.Checksum != "" &&
			(prev.State == checkpoint.SourceSucceeded || prev.State == checkpoint.SourceSkipped) &&
			len(prev.Leaves) > 0 {
			jobLog.Info().Int("leaves", len(prev.Leaves)).Msg("ingest: source unchanged, skipping")
			return checkpoint.SourceStatus{
				State:    checkpoint.SourceSkipped,
				Checksum: checksum,
				Leaves:   prev.Leaves,
			}, 0
		}
	}

	data, retries, err := o.fetchWithRetry(ctx, jobLog, src)
	if err != nil {
		// Exhausted retries on a fetch, not a bad payload: a resumed run
		// tries again with a fresh budget.
		jobLog.Error().Err(err).Int("retries", retries).Msg("ingest: fetch failed")
		return checkpoint.SourceStatus{
			State:      checkpoint.SourceFailed,
			RetryCount: retries,
			LastError:  err.Error(),
		}, 0
	}

	prov, err := boundary.NewProvenance(src.Name, time.Now(), src.Confidence, nil)
	if err != nil {
		return checkpoint.SourceStatus{
			State:      checkpoint.SourceFailedPermanent,
			RetryCount: retries,
			Checksum:   checksum,
			LastError:  err.Error(),
		}, 0
	}

	// A source with no declared validity starts being valid at ingestion;
	// features may still carry their own valid_from.
	validFrom := src.ValidFrom
	if validFrom.IsZero() {
		validFrom = time.Now().UTC()
	}
	geoms, failed, err := geojson.DecodeFeatureCollection(data, geojson.Defaults{
		Type:         src.Type,
		Jurisdiction: src.Jurisdiction,
		Provenance:   prov,
		ValidFrom:    validFrom,
	})
	if err != nil {
		jobLog.Error().Err(err).Msg("ingest: payload unparseable")
		return checkpoint.SourceStatus{
			State:      checkpoint.SourceFailedPermanent,
			RetryCount: retries,
			Checksum:   checksum,
			LastError:  err.Error(),
		}, 0
	}
	for _, fe := range failed {
		jobLog.Warn().Int("feature", fe.Index).Str("boundary_id", fe.BoundaryID).Err(fe.Err).Msg("ingest: boundary rejected")
	}
	metrics.IngestBoundariesTotal.WithLabelValues("rejected").Add(float64(len(failed)))
	metrics.IngestBoundariesTotal.WithLabelValues("accepted").Add(float64(len(geoms)))

	if len(geoms) == 0 {
		err := fmt.Errorf("source %s: no valid boundaries (%d rejected)", src.Name, len(failed))
		jobLog.Error().Err(err).Msg("ingest: source produced nothing")
		return checkpoint.SourceStatus{
			State:      checkpoint.SourceFailedPermanent,
			RetryCount: retries,
			Checksum:   checksum,
			LastError:  err.Error(),
		}, len(failed)
	}

	leaves := make([]checkpoint.Leaf, 0, len(geoms))
	for _, g := range geoms {
		leaf := merkle.NewLeaf(o.hasher, g)
		leaves = append(leaves, checkpoint.Leaf{
			BoundaryID: leaf.BoundaryID,
			Type:       g.Metadata.Type,
			Digest:     leaf.Digest,
		})
	}

	jobLog.Info().Int("boundaries", len(leaves)).Int("rejected", len(failed)).Msg("ingest: source succeeded")
	return checkpoint.SourceStatus{
		State:      checkpoint.SourceSucceeded,
		RetryCount: retries,
		Checksum:   checksum,
		Leaves:     leaves,
	}, len(failed)
}

// maxRetryBackoff caps exponential growth so a long retry tail cannot
// overflow the doubling or sleep unboundedly.
const maxRetryBackoff = 2 * time.Minute

// retryDelay returns the jittered backoff before retry number attempt.
func (o *Orchestrator) retryDelay(attempt int) time.Duration {
	backoff := o.opts.RetryBackoff
	for i := 1; i < attempt && backoff < maxRetryBackoff; i++ {
		backoff *= 2
	}
	if backoff > maxRetryBackoff {
		backoff = maxRetryBackoff
	}
	return backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
}

// fetchWithRetry fetches with a per-attempt timeout and exponential backoff
// with jitter. Context cancellation stops retrying immediately.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, logger zerolog.Logger, src Source) ([]byte, int, error) {
	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IngestRetriesTotal.Inc()
			backoff := o.retryDelay(attempt)
			logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("ingest: retrying fetch")
			select {
			case <-ctx.Done():
				return nil, attempt, ctx.Err()
			case <-time.After(backoff):
			}
		}

		fetchCtx, cancel := context.WithTimeout(ctx, o.opts.FetchTimeout)
		data, err := o.client.Fetch(fetchCtx, src)
		cancel()
		if err == nil {
			return data, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
	}
	return nil, o.opts.MaxRetries, fmt.Errorf("fetch %s: %w", src.Name, lastErr)
}

// commit folds every terminal job's leaves into per-layer trees and wraps
// them as a snapshot. Partial failure commits what succeeded; only an empty
// leaf set or a cross-source id collision aborts.
func (o *Orchestrator) commit(ctx context.Context, logger zerolog.Logger, state *checkpoint.State) (*snapshot.Snapshot, error) {
	type owned struct {
		leaf   checkpoint.Leaf
		source string
	}
	byID := make(map[string]owned)
	byType := make(map[boundary.Type][]merkle.Leaf)
	var entries []snapshot.Entry

	for name, st := range state.Sources {
		if st.State != checkpoint.SourceSucceeded && st.State != checkpoint.SourceSkipped {
			continue
		}
		for _, l := range st.Leaves {
			if prior, ok := byID[l.BoundaryID]; ok {
				first, second := prior.source, name
				if second < first {
					first, second = second, first
				}
				return nil, DuplicateIDError{BoundaryID: l.BoundaryID, Sources: [2]string{first, second}}
			}
			byID[l.BoundaryID] = owned{leaf: l, source: name}
			byType[l.Type] = append(byType[l.Type], merkle.Leaf{BoundaryID: l.BoundaryID, Digest: l.Digest})
			entries = append(entries, snapshot.Entry{
				BoundaryID: l.BoundaryID,
				Type:       l.Type,
				Source:     name,
				LeafDigest: l.Digest,
			})
		}
	}
	if len(entries) == 0 {
		return nil, ErrNoBoundaries
	}

	layers := make([]*merkle.LayerTree, 0, len(byType))
	for typ, leaves := range byType {
		buildStart := time.Now()
		layer, err := merkle.BuildLayerTreeFromLeaves(o.hasher, typ, leaves)
		if err != nil {
			return nil, fmt.Errorf("build %s layer: %w", typ, err)
		}
		metrics.TreeBuildDuration.WithLabelValues(string(typ)).Observe(time.Since(buildStart).Seconds())
		layers = append(layers, layer)
	}

	tree, err := merkle.BuildMultiLayerTree(o.hasher, layers)
	if err != nil {
		return nil, fmt.Errorf("build multilayer tree: %w", err)
	}

	state.LeafSetHash = o.leafSetHash(entries)
	snap, err := o.snapshots.Create(ctx, tree, entries, state.ParentSnapshotID)
	if err != nil {
		return nil, err
	}
	metrics.SnapshotLeaves.Set(float64(len(entries)))
	logger.Info().Str("leaf_set_hash", state.LeafSetHash).Int("layers", len(layers)).Msg("ingest: committed")
	return snap, nil
}

// leafSetHash digests the id-sorted leaf digests so the checkpoint records
// exactly which set was committed.
func (o *Orchestrator) leafSetHash(entries []snapshot.Entry) string {
	sorted := make([]snapshot.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BoundaryID < sorted[j].BoundaryID })
	buf := make([]byte, 0, len(sorted)*merkle.DigestSize)
	for _, e := range sorted {
		buf = append(buf, e.LeafDigest[:]...)
	}
	return o.hasher.HashBytes(buf).Hex()
}

// saveCheckpoint persists state under the orchestrator lock.
func (o *Orchestrator) saveCheckpoint(ctx context.Context, state *checkpoint.State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checkpoints.Save(ctx, state)
}

func newRunID() string {
	return ulid.Make().String()
}
