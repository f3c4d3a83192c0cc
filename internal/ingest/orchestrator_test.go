package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
	"github.com/civicproof/boundary-registry/internal/domain/boundary/resolve"
	"github.com/civicproof/boundary-registry/internal/geojson"
	"github.com/civicproof/boundary-registry/internal/ingest/checkpoint"
	"github.com/civicproof/boundary-registry/internal/merkle"
	"github.com/civicproof/boundary-registry/internal/snapshot"
)

var testValidFrom = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// feature renders one GeoJSON polygon feature: a counterclockwise square
// from the southwest corner.
func feature(id string, minLon, minLat, size float64) string {
	return fmt.Sprintf(`{
		"type": "Feature",
		"properties": {"id": %q, "name": %q},
		"geometry": {
			"type": "Polygon",
			"coordinates": [[[%[3]f,%[4]f],[%[5]f,%[4]f],[%[5]f,%[6]f],[%[3]f,%[6]f],[%[3]f,%[4]f]]]
		}
	}`, id, id, minLon, minLat, minLon+size, minLat+size)
}

func collection(features ...string) []byte {
	out := `{"type": "FeatureCollection", "features": [`
	for i, f := range features {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return []byte(out + "]}")
}

// fakeClient serves canned payloads and can fail the first N fetches per
// source. onFetch, when set, observes each fetch before it is served.
type fakeClient struct {
	mu         sync.Mutex
	payloads   map[string][]byte
	failures   map[string]int
	fetchCalls map[string]int
	onFetch    func(name string)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		payloads:   make(map[string][]byte),
		failures:   make(map[string]int),
		fetchCalls: make(map[string]int),
	}
}

func (c *fakeClient) set(name string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads[name] = payload
}

func (c *fakeClient) fetches(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchCalls[name]
}

func (c *fakeClient) Checksum(_ context.Context, src Source) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.payloads[src.Name]
	if !ok {
		return "", fmt.Errorf("no payload for %s", src.Name)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func (c *fakeClient) Fetch(_ context.Context, src Source) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchCalls[src.Name]++
	if c.onFetch != nil {
		c.onFetch(src.Name)
	}
	if c.failures[src.Name] > 0 {
		c.failures[src.Name]--
		return nil, fmt.Errorf("transient failure for %s", src.Name)
	}
	payload, ok := c.payloads[src.Name]
	if !ok {
		return nil, fmt.Errorf("no payload for %s", src.Name)
	}
	return payload, nil
}

type testHarness struct {
	client      *fakeClient
	checkpoints *checkpoint.FileStore
	snapshots   *snapshot.Manager
	orch        *Orchestrator
}

func newHarness(t *testing.T, opts Options) *testHarness {
	t.Helper()
	client := newFakeClient()
	checkpoints, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	store, err := snapshot.NewFileStore(t.TempDir())
	require.NoError(t, err)
	snapshots := snapshot.NewManager(store, zerolog.Nop())
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	return &testHarness{
		client:      client,
		checkpoints: checkpoints,
		snapshots:   snapshots,
		orch:        NewOrchestrator(merkle.NewPoseidonHasher(), client, checkpoints, snapshots, opts, zerolog.Nop()),
	}
}

func testSource(name string, typ boundary.Type) Source {
	return Source{
		Name:         name,
		Location:     name + ".geojson",
		Type:         typ,
		Jurisdiction: "US-WA",
		Confidence:   90,
		ValidFrom:    testValidFrom,
	}
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	// Overlapping city < county < state, all containing (5.5, 5.5).
	h.client.set("city", collection(feature("seattle", 5, 5, 1)))
	h.client.set("county", collection(feature("king", 3, 3, 4)))
	h.client.set("state", collection(feature("wa", 0, 0, 10)))
	sources := []Source{
		testSource("city", boundary.TypeCityLimits),
		testSource("county", boundary.TypeCounty),
		testSource("state", boundary.TypeState),
	}

	result, err := h.orch.Run(ctx, sources)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, result.State)
	assert.Len(t, result.Succeeded, 3)
	assert.Empty(t, result.Failed)
	require.NotNil(t, result.Snapshot)
	assert.Len(t, result.Snapshot.Manifest, 3)
	assert.Len(t, result.Snapshot.LayerRoots, 3)

	// The committed point resolves to the most precise layer.
	var candidates []*boundary.Geometry
	for _, src := range sources {
		prov, err := boundary.NewProvenance(src.Name, time.Now(), src.Confidence, nil)
		require.NoError(t, err)
		geoms, failed, err := geojson.DecodeFeatureCollection(h.client.payloads[src.Name], geojson.Defaults{
			Type: src.Type, Jurisdiction: src.Jurisdiction, Provenance: prov, ValidFrom: src.ValidFrom,
		})
		require.NoError(t, err)
		require.Empty(t, failed)
		candidates = append(candidates, geoms...)
	}
	res, err := resolve.New().Resolve(boundary.Point{Lat: 5.5, Lon: 5.5}, testValidFrom.AddDate(1, 0, 0), candidates)
	require.NoError(t, err)
	assert.Equal(t, "seattle", res.Boundary.ID)
	assert.Equal(t, boundary.TypeCityLimits, res.Type)

	// A proof regenerated from the stored snapshot verifies offline.
	hasher := merkle.NewPoseidonHasher()
	stored, err := h.snapshots.Load(ctx, result.Snapshot.ID)
	require.NoError(t, err)
	tree, err := snapshot.RebuildTree(hasher, stored)
	require.NoError(t, err)
	bundle, err := merkle.NewBundle(tree, boundary.TypeCityLimits, "seattle", stored.ID)
	require.NoError(t, err)
	assert.NoError(t, bundle.Verify(hasher))
}

func TestRun_SameInputsSameSnapshot(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.client.set("county", collection(feature("king", 0, 0, 5), feature("pierce", 5, 0, 5)))
	sources := []Source{testSource("county", boundary.TypeCounty)}

	first, err := h.orch.Run(ctx, sources)
	require.NoError(t, err)
	require.NotNil(t, first.Snapshot)

	second, err := h.orch.Run(ctx, sources)
	require.NoError(t, err)
	require.NotNil(t, second.Snapshot)

	// Unchanged source: skipped without refetching, identical content
	// address, lineage recorded.
	assert.Equal(t, []string{"county"}, second.Skipped)
	assert.Empty(t, second.Succeeded)
	assert.Equal(t, first.Snapshot.ID, second.Snapshot.ID)
	assert.Equal(t, first.Snapshot.ID, second.Snapshot.ParentID)
	assert.Equal(t, 1, h.client.fetches("county"), "skip must not refetch")
}

func TestRun_ChangeDetection(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.client.set("county", collection(feature("king", 0, 0, 5)))
	h.client.set("state", collection(feature("wa", 0, 0, 10)))
	sources := []Source{
		testSource("county", boundary.TypeCounty),
		testSource("state", boundary.TypeState),
	}

	first, err := h.orch.Run(ctx, sources)
	require.NoError(t, err)

	// Only the county source changes.
	h.client.set("county", collection(feature("king", 0, 0, 6)))

	second, err := h.orch.Run(ctx, sources)
	require.NoError(t, err)
	assert.Equal(t, []string{"county"}, second.Succeeded)
	assert.Equal(t, []string{"state"}, second.Skipped)
	assert.Equal(t, 1, h.client.fetches("state"))

	diff := snapshot.ComputeDiff(first.Snapshot, second.Snapshot)
	assert.Equal(t, []string{"king"}, diff.Modified)
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 1})
	ctx := context.Background()

	h.client.set("county", collection(feature("king", 0, 0, 5)))
	h.client.set("state", collection(feature("wa", 0, 0, 10)))
	h.client.failures["state"] = 10 // beyond retry budget

	result, err := h.orch.Run(ctx, []Source{
		testSource("county", boundary.TypeCounty),
		testSource("state", boundary.TypeState),
	})
	require.NoError(t, err, "a failed source must not abort the run")
	require.NotNil(t, result)
	assert.Equal(t, RunCompleted, result.State)

	// The county's boundaries commit anyway; the failure is reported.
	assert.Equal(t, []string{"county"}, result.Succeeded)
	assert.Contains(t, result.Failed, "state")
	require.NotNil(t, result.Snapshot)
	assert.Len(t, result.Snapshot.Manifest, 1)
	assert.Equal(t, "king", result.Snapshot.Manifest[0].BoundaryID)
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 3})
	ctx := context.Background()

	h.client.set("county", collection(feature("king", 0, 0, 5)))
	h.client.failures["county"] = 2

	result, err := h.orch.Run(ctx, []Source{testSource("county", boundary.TypeCounty)})
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, result.State)
	assert.Equal(t, 3, h.client.fetches("county"))

	state, err := h.checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.True(t, state.Completed)
	assert.Equal(t, 2, state.Sources["county"].RetryCount)
}

func TestRun_ResumeAfterInterruption(t *testing.T) {
	h := newHarness(t, Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.client.set("county", collection(feature("king", 0, 0, 5)))
	h.client.set("state", collection(feature("wa", 0, 0, 10)))
	sources := []Source{
		testSource("county", boundary.TypeCounty),
		testSource("state", boundary.TypeState),
	}

	// A single worker processes sources in order; cancelling on the state
	// fetch interrupts the run after the county job has checkpointed.
	h.client.onFetch = func(name string) {
		if name == "state" {
			cancel()
		}
	}

	_, err := h.orch.Run(ctx, sources)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunPaused, h.orch.State())

	stored, err := h.checkpoints.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, stored.Completed)
	assert.Equal(t, checkpoint.SourceSucceeded, stored.Sources["county"].State)
	assert.NotContains(t, stored.Sources, "state", "the interrupted job must not checkpoint")

	// The resumed run keeps the run id, skips the checkpointed job, and
	// finishes the rest.
	h.client.onFetch = nil
	resumed := NewOrchestrator(merkle.NewPoseidonHasher(), h.client, h.checkpoints, h.snapshots,
		Options{Workers: 1, RetryBackoff: time.Millisecond}, zerolog.Nop())
	result, err := resumed.Run(context.Background(), sources)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, result.State)
	assert.Equal(t, stored.RunID, result.RunID)
	assert.Equal(t, 1, h.client.fetches("county"), "resume must not refetch checkpointed work")
	require.NotNil(t, result.Snapshot)

	// Interrupt-then-resume commits the same content address as an
	// uninterrupted run over the same inputs.
	control := newHarness(t, Options{Workers: 1})
	control.client.set("county", collection(feature("king", 0, 0, 5)))
	control.client.set("state", collection(feature("wa", 0, 0, 10)))
	controlResult, err := control.orch.Run(context.Background(), sources)
	require.NoError(t, err)
	assert.Equal(t, controlResult.Snapshot.ID, result.Snapshot.ID)
}

func TestRun_FailedSourceRetriedOnResume(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 0})
	ctx := context.Background()

	h.client.set("county", collection(feature("king", 0, 0, 5)))
	h.client.failures["county"] = 1

	_, err := h.orch.Run(ctx, []Source{testSource("county", boundary.TypeCounty)})
	require.ErrorIs(t, err, ErrNoBoundaries)

	// The exhausted fetch is recorded as retryable, not permanent.
	stored, err := h.checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.SourceFailed, stored.Sources["county"].State)
	assert.False(t, stored.Completed)

	// The next run retries it with a fresh budget and commits.
	result, err := h.orch.Run(ctx, []Source{testSource("county", boundary.TypeCounty)})
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, result.State)
	assert.Equal(t, []string{"county"}, result.Succeeded)
	assert.Equal(t, 2, h.client.fetches("county"))
}

func TestRetryDelay_Clamped(t *testing.T) {
	h := newHarness(t, Options{RetryBackoff: 2 * time.Second})

	for _, attempt := range []int{1, 5, 40, 500} {
		d := h.orch.retryDelay(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.LessOrEqual(t, d, maxRetryBackoff+maxRetryBackoff/2, "attempt %d", attempt)
	}
}

func TestRun_StateStaysRunScoped(t *testing.T) {
	h := newHarness(t, Options{Workers: 2})
	ctx := context.Background()

	h.client.set("county", collection(feature("king", 0, 0, 5)))
	h.client.set("state", collection(feature("wa", 0, 0, 10)))

	// Concurrent jobs must not bounce the run-level state around.
	var (
		mu   sync.Mutex
		seen []RunState
	)
	h.client.onFetch = func(string) {
		mu.Lock()
		seen = append(seen, h.orch.State())
		mu.Unlock()
	}

	result, err := h.orch.Run(ctx, []Source{
		testSource("county", boundary.TypeCounty),
		testSource("state", boundary.TypeState),
	})
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, result.State)

	require.NotEmpty(t, seen)
	for _, s := range seen {
		assert.Equal(t, RunFetching, s)
	}
	assert.Equal(t, RunCompleted, h.orch.State())
}

func TestRun_DuplicateIDAcrossSources(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.client.set("a", collection(feature("shared-id", 0, 0, 5)))
	h.client.set("b", collection(feature("shared-id", 5, 5, 5)))

	result, err := h.orch.Run(ctx, []Source{
		testSource("a", boundary.TypeCounty),
		testSource("b", boundary.TypeState),
	})
	require.Error(t, err)
	var dup DuplicateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "shared-id", dup.BoundaryID)
	assert.Equal(t, [2]string{"a", "b"}, dup.Sources)
	if result != nil {
		assert.Nil(t, result.Snapshot)
	}
}

func TestRun_CorruptCheckpointNeedsConfirmation(t *testing.T) {
	checkpointDir := t.TempDir()
	checkpoints, err := checkpoint.NewFileStore(checkpointDir)
	require.NoError(t, err)
	store, err := snapshot.NewFileStore(t.TempDir())
	require.NoError(t, err)
	snapshots := snapshot.NewManager(store, zerolog.Nop())

	client := newFakeClient()
	client.set("county", collection(feature("king", 0, 0, 5)))
	sources := []Source{testSource("county", boundary.TypeCounty)}
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(checkpointDir, "checkpoint.json"), []byte("{broken"), 0o644))

	// Without explicit confirmation the run refuses to start.
	orch := NewOrchestrator(merkle.NewPoseidonHasher(), client, checkpoints, snapshots, Options{RetryBackoff: time.Millisecond}, zerolog.Nop())
	_, err = orch.Run(ctx, sources)
	assert.ErrorIs(t, err, checkpoint.ErrCorrupt)

	// With confirmation the corrupt state is discarded and the run proceeds.
	orch = NewOrchestrator(merkle.NewPoseidonHasher(), client, checkpoints, snapshots,
		Options{RetryBackoff: time.Millisecond, DiscardCorruptCheckpoint: true}, zerolog.Nop())
	result, err := orch.Run(ctx, sources)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, result.State)
}

func TestRun_InvalidFeaturesAreIsolated(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	// The second feature has a degenerate ring; the first still commits.
	bad := `{
		"type": "Feature",
		"properties": {"id": "broken", "name": "broken"},
		"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,1]]]}
	}`
	h.client.set("county", collection(feature("king", 0, 0, 5), bad))

	result, err := h.orch.Run(ctx, []Source{testSource("county", boundary.TypeCounty)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)
	require.NotNil(t, result.Snapshot)
	assert.Len(t, result.Snapshot.Manifest, 1)
}

func TestRun_InputValidation(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	_, err := h.orch.Run(ctx, nil)
	assert.ErrorContains(t, err, "no sources")

	src := testSource("county", boundary.TypeCounty)
	_, err = h.orch.Run(ctx, []Source{src, src})
	assert.ErrorContains(t, err, "duplicate source name")

	bad := src
	bad.Type = "province"
	_, err = h.orch.Run(ctx, []Source{bad})
	assert.ErrorContains(t, err, "unknown boundary type")
}

func TestRun_NothingToCommit(t *testing.T) {
	h := newHarness(t, Options{MaxRetries: 0})
	ctx := context.Background()

	h.client.set("county", collection(feature("king", 0, 0, 5)))
	h.client.failures["county"] = 10

	_, err := h.orch.Run(ctx, []Source{testSource("county", boundary.TypeCounty)})
	assert.ErrorIs(t, err, ErrNoBoundaries)
}

func TestRun_LeafSetHashRecorded(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	h.client.set("county", collection(feature("king", 0, 0, 5)))
	_, err := h.orch.Run(ctx, []Source{testSource("county", boundary.TypeCounty)})
	require.NoError(t, err)

	state, err := h.checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, state.LeafSetHash)
	assert.NotEmpty(t, state.SnapshotID)

	// Checkpoint state is preserved in JSON through a round trip.
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	var back checkpoint.State
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, state.LeafSetHash, back.LeafSetHash)
}
