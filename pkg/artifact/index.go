// Package artifact maintains a JSON index of files received by the gateway,
// with checksums, so uploaded geometry can be traced after the fact.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// IndexVersion is the format version written to new indexes.
const IndexVersion = 1

// Index is the root of the artifact index file.
type Index struct {
	Version     int       `json:"artifact_index_version"`
	GeneratedAt time.Time `json:"generated_at"`
	Project     string    `json:"project"`
	Assets      []Asset   `json:"assets"`
}

// Asset is one logged file.
type Asset struct {
	ID          string    `json:"asset_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Path        string    `json:"path,omitempty"`
	Version     string    `json:"version,omitempty"`
	Checksum    string    `json:"checksum_sha256"`
	SizeBytes   int64     `json:"size_bytes"`
	Environment string    `json:"environment,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Notes       string    `json:"notes,omitempty"`
}

// Logger appends assets to an index file. Safe for concurrent use within one
// process.
type Logger struct {
	mu      sync.Mutex
	path    string
	project string
	now     func() time.Time
	logger  zerolog.Logger
}

// NewLogger creates a Logger writing to path.
func NewLogger(path, project string) *Logger {
	return &Logger{
		path:    path,
		project: project,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  log.With().Str("component", "artifact").Logger(),
	}
}

// Path returns the index file location.
func (l *Logger) Path() string {
	return l.path
}

// Log records asset with the checksum and size of content and returns the
// stored entry. A missing ID is generated.
func (l *Logger) Log(asset Asset, content []byte) (Asset, error) {
	asset.Checksum = Checksum(content)
	asset.SizeBytes = int64(len(content))
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	asset.Timestamp = now

	index := l.load()
	index.Assets = append(index.Assets, asset)
	index.GeneratedAt = now

	if err := l.write(index); err != nil {
		return Asset{}, err
	}

	l.logger.Debug().
		Str("asset_id", asset.ID).
		Str("name", asset.Name).
		Str("checksum", asset.Checksum).
		Int64("size_bytes", asset.SizeBytes).
		Msg("Artifact logged")

	return asset, nil
}

// List returns the logged assets, oldest first.
func (l *Logger) List() ([]Asset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact index: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse artifact index: %w", err)
	}
	return index.Assets, nil
}

// load reads the index, starting fresh when it is missing or unreadable.
// Caller holds mu.
func (l *Logger) load() *Index {
	fresh := &Index{Version: IndexVersion, Project: l.project}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn().Err(err).Str("path", l.path).Msg("Artifact index unreadable, starting fresh")
		}
		return fresh
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		l.logger.Warn().Err(err).Str("path", l.path).Msg("Artifact index corrupt, starting fresh")
		return fresh
	}
	if index.Version == 0 {
		index.Version = IndexVersion
	}
	if index.Project == "" {
		index.Project = l.project
	}
	return &index
}

// write replaces the index file atomically. Caller holds mu.
func (l *Logger) write(index *Index) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact index: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact_index-*.json")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("replace artifact index: %w", err)
	}
	return nil
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
