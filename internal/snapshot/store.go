package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists snapshots. Save must be atomic and idempotent for an
// already-stored id; snapshots are immutable, so Save never overwrites.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context) ([]ListEntry, error)
	Delete(ctx context.Context, id string) error
}

// FileStore keeps each snapshot as <id>.manifest.json plus an
// <id>.meta.json sidecar in a flat directory. Writes go through a temp
// file and rename so a crashed write leaves no partial snapshot behind.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// fileMeta is the sidecar: everything except the manifest, plus the leaf
// count so listing never has to parse manifests.
type fileMeta struct {
	Snapshot
	LeafCount int `json:"leaf_count"`
}

func (s *FileStore) manifestPath(id string) string {
	return filepath.Join(s.dir, id+".manifest.json")
}

func (s *FileStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+".meta.json")
}

func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("save snapshot: empty id")
	}
	// Content addressed: an existing id already holds identical content.
	if _, err := os.Stat(s.metaPath(snap.ID)); err == nil {
		return nil
	}

	manifest, err := json.MarshalIndent(snap.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	meta := fileMeta{Snapshot: *snap, LeafCount: len(snap.Manifest)}
	meta.Manifest = nil
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := writeFileAtomic(s.manifestPath(snap.ID), manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := writeFileAtomic(s.metaPath(snap.ID), metaBytes); err != nil {
		_ = os.Remove(s.manifestPath(snap.ID))
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, id string) (*Snapshot, error) {
	metaBytes, err := os.ReadFile(s.metaPath(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot metadata: %w", err)
	}
	var meta fileMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("decode snapshot metadata: %w", err)
	}

	manifestBytes, err := os.ReadFile(s.manifestPath(id))
	if err != nil {
		return nil, fmt.Errorf("read snapshot manifest: %w", err)
	}
	snap := meta.Snapshot
	if err := json.Unmarshal(manifestBytes, &snap.Manifest); err != nil {
		return nil, fmt.Errorf("decode snapshot manifest: %w", err)
	}
	return &snap, nil
}

func (s *FileStore) List(_ context.Context) ([]ListEntry, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.meta.json"))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	entries := make([]ListEntry, 0, len(matches))
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue // listing stays best-effort for files mid-write
		}
		var meta fileMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		entries = append(entries, ListEntry{
			ID:        meta.ID,
			ParentID:  meta.ParentID,
			CreatedAt: meta.CreatedAt,
			LeafCount: meta.LeafCount,
		})
	}

	// Newest first.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := os.Remove(s.manifestPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete manifest: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}

// writeFileAtomic writes via a temp file in the same directory and renames
// it into place, so readers see either the old content or the new, never a
// torn write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), ".json")+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
