package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicproof/boundary-registry/internal/merkle"
	"github.com/civicproof/boundary-registry/internal/snapshot"
)

// SnapshotCatalog implements the snapshot store over PostgreSQL. Snapshots
// are content addressed, so a conflicting insert of the same id is a no-op
// rather than an error.
type SnapshotCatalog struct {
	pool *pgxpool.Pool
}

func NewSnapshotCatalog(pool *pgxpool.Pool) (*SnapshotCatalog, error) {
	if pool == nil {
		return nil, fmt.Errorf("snapshot catalog: pool is nil")
	}
	return &SnapshotCatalog{pool: pool}, nil
}

func (c *SnapshotCatalog) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	layerRoots, err := json.Marshal(snap.LayerRoots)
	if err != nil {
		return fmt.Errorf("encode layer roots: %w", err)
	}
	manifest, err := json.Marshal(snap.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	const query = `
INSERT INTO snapshots (id, root, layer_roots, manifest, leaf_count, parent_id, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
ON CONFLICT (id) DO NOTHING`
	_, err = c.pool.Exec(ctx, query,
		snap.ID, snap.Root.Hex(), layerRoots, manifest, len(snap.Manifest), snap.ParentID, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (c *SnapshotCatalog) Load(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	const query = `
SELECT id, root, layer_roots, manifest, COALESCE(parent_id, ''), created_at
FROM snapshots WHERE id = $1`

	var (
		snap       snapshot.Snapshot
		rootHex    string
		layerRoots []byte
		manifest   []byte
	)
	err := c.pool.QueryRow(ctx, query, id).Scan(
		&snap.ID, &rootHex, &layerRoots, &manifest, &snap.ParentID, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %s: %w", id, snapshot.ErrNotFound)
		}
		return nil, fmt.Errorf("load snapshot %s: %w", id, err)
	}

	snap.Root, err = merkle.DigestFromHex(rootHex)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s root: %w", id, err)
	}
	if err := json.Unmarshal(layerRoots, &snap.LayerRoots); err != nil {
		return nil, fmt.Errorf("decode snapshot %s layer roots: %w", id, err)
	}
	if err := json.Unmarshal(manifest, &snap.Manifest); err != nil {
		return nil, fmt.Errorf("decode snapshot %s manifest: %w", id, err)
	}
	return &snap, nil
}

func (c *SnapshotCatalog) List(ctx context.Context) ([]snapshot.ListEntry, error) {
	const query = `
SELECT id, COALESCE(parent_id, ''), created_at, leaf_count
FROM snapshots ORDER BY created_at DESC, id`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var entries []snapshot.ListEntry
	for rows.Next() {
		var e snapshot.ListEntry
		if err := rows.Scan(&e.ID, &e.ParentID, &e.CreatedAt, &e.LeafCount); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return entries, nil
}

func (c *SnapshotCatalog) Delete(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %s: %w", id, snapshot.ErrNotFound)
	}
	return nil
}
