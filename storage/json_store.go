package storage

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"regent-tracker/models"
)

//go:embed schemas/cache.schema.json
var schemaFS embed.FS

const cacheSchemaPath = "schemas/cache.schema.json"

// ErrNoHistory is returned by Load when no cache file exists yet.
var ErrNoHistory = errors.New("no listing history")

// CorruptStateError reports a cache file that exists but cannot be used.
type CorruptStateError struct {
	Path    string
	Message string
	Cause   error
}

func (e *CorruptStateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("corrupt state %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("corrupt state %s: %s", e.Path, e.Message)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Cause
}

// JSONStore keeps the cache and the presentation export as JSON files.
// Every write goes to a temp file in the same directory and is renamed into
// place, so readers see either the old or the new content.
type JSONStore struct {
	cachePath    string
	snapshotPath string
	schema       *jsonschema.Schema
}

// NewJSONStore compiles the embedded cache schema and returns a store.
func NewJSONStore(cachePath, snapshotPath string) (*JSONStore, error) {
	schema, err := compileCacheSchema()
	if err != nil {
		return nil, err
	}
	return &JSONStore{cachePath: cachePath, snapshotPath: snapshotPath, schema: schema}, nil
}

func compileCacheSchema() (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(cacheSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("read cache schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(cacheSchemaPath, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add cache schema: %w", err)
	}
	schema, err := compiler.Compile(cacheSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile cache schema: %w", err)
	}
	return schema, nil
}

// CachePath is where the cache artifact lives.
func (s *JSONStore) CachePath() string { return s.cachePath }

// SnapshotPath is where the presentation export lives.
func (s *JSONStore) SnapshotPath() string { return s.snapshotPath }

// Load always returns a usable cache. When the file is missing the error is
// ErrNoHistory; when it is unreadable or invalid it is a *CorruptStateError.
// Both mean the caller starts from an empty history.
func (s *JSONStore) Load() (*models.Cache, error) {
	data, err := os.ReadFile(s.cachePath)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewCache(), ErrNoHistory
	}
	if err != nil {
		return models.NewCache(), &CorruptStateError{Path: s.cachePath, Message: "read failed", Cause: err}
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.NewCache(), &CorruptStateError{Path: s.cachePath, Message: "invalid JSON", Cause: err}
	}
	if err := s.schema.Validate(raw); err != nil {
		return models.NewCache(), &CorruptStateError{Path: s.cachePath, Message: "schema violation", Cause: err}
	}

	var cache models.Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return models.NewCache(), &CorruptStateError{Path: s.cachePath, Message: "decode failed", Cause: err}
	}
	if cache.Version > models.CacheVersion {
		return models.NewCache(), &CorruptStateError{
			Path:    s.cachePath,
			Message: fmt.Sprintf("unsupported version %d", cache.Version),
		}
	}

	cache.Version = models.CacheVersion
	cache.Listings = rekey(cache.Listings)
	return &cache, nil
}

// rekey normalizes every listing and indexes it by its recomputed
// fingerprint. Entries that collapse onto one key keep the earliest
// firstSeenAt and the latest observation.
func rekey(in map[string]models.Listing) map[string]models.Listing {
	out := make(map[string]models.Listing, len(in))
	for _, l := range in {
		l.Normalize()
		if l.LastSeenAt.Before(l.FirstSeenAt) {
			l.LastSeenAt = l.FirstSeenAt
		}
		if prev, ok := out[l.Fingerprint]; ok {
			first := prev.FirstSeenAt
			if l.FirstSeenAt.Before(first) {
				first = l.FirstSeenAt
			}
			if prev.LastSeenAt.After(l.LastSeenAt) {
				l = prev
			}
			l.FirstSeenAt = first
		}
		out[l.Fingerprint] = l
	}
	return out
}

// Save writes the cache atomically.
func (s *JSONStore) Save(cache *models.Cache) error {
	if cache.Listings == nil {
		cache.Listings = make(map[string]models.Listing)
	}
	cache.Version = models.CacheVersion
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return writeFileAtomic(s.cachePath, data)
}

// WriteSnapshot writes the presentation export atomically.
func (s *JSONStore) WriteSnapshot(snapshot *models.Snapshot) error {
	if snapshot.Listings == nil {
		snapshot.Listings = []models.SnapshotListing{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return writeFileAtomic(s.snapshotPath, buf.Bytes())
}

// LoadSnapshot reads a previously written presentation export.
func (s *JSONStore) LoadSnapshot() (*models.Snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// writeFileAtomic replaces path with data through a synced temp file in the
// same directory, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
