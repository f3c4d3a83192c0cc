package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/civicproof/boundary-registry/internal/domain/boundary"
)

// Source describes one acquisition feed: where to fetch a FeatureCollection
// and what boundary type and jurisdiction its features belong to.
type Source struct {
	Name         string        `json:"name" validate:"required"`
	Location     string        `json:"location" validate:"required"`
	Type         boundary.Type `json:"type" validate:"required"`
	Jurisdiction string        `json:"jurisdiction" validate:"required"`
	Confidence   int           `json:"confidence" validate:"gte=0,lte=100"`
	ValidFrom    time.Time     `json:"valid_from"`
}

var sourceValidate = validator.New()

// Validate checks the declared fields; the boundary type must be one of the
// registered layers.
func (s Source) Validate() error {
	if err := sourceValidate.Struct(s); err != nil {
		return fmt.Errorf("source %q: %w", s.Name, err)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("source %q: unknown boundary type %q", s.Name, s.Type)
	}
	return nil
}

// SourceClient fetches source payloads. Checksum must be cheap relative to
// Fetch: the orchestrator calls it first to decide whether a source changed
// since the last committed run.
type SourceClient interface {
	Checksum(ctx context.Context, src Source) (string, error)
	Fetch(ctx context.Context, src Source) ([]byte, error)
}

// FileClient reads source payloads from the local filesystem. Location is
// resolved relative to the base directory unless absolute. Checksums are
// SHA-256 over the file contents.
type FileClient struct {
	baseDir string
}

// NewFileClient returns a client rooted at baseDir.
func NewFileClient(baseDir string) *FileClient {
	return &FileClient{baseDir: baseDir}
}

func (c *FileClient) path(src Source) string {
	if filepath.IsAbs(src.Location) {
		return src.Location
	}
	return filepath.Join(c.baseDir, src.Location)
}

// Checksum returns the hex SHA-256 of the source file.
func (c *FileClient) Checksum(ctx context.Context, src Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(c.path(src))
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", src.Name, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Fetch returns the source file contents.
func (c *FileClient) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.path(src))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	return data, nil
}
