// Package store implements the shard store: a per-origin, per-model
// directory of equal-sized content-addressed shard files plus a sidecar
// manifest and optional tokenizer blob.
//
// The source models "which model directory is open" as ambient,
// process-wide state. Here that is refactored into an explicit handle
// (ModelHandle) returned by OpenModel and threaded through every
// operation, per the design note on replacing implicit context with an
// explicit one.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

const modelsDirName = "doppler-models"

const manifestFilename = "manifest.json"
const tokenizerFilename = "tokenizer.json"

// LocalStore roots all model directories under a single persistent path.
type LocalStore struct {
	rootPath string
}

// RootPath returns the filesystem path all model directories are rooted
// under, used by callers that need to reason about the underlying device
// (e.g. free-space preflight checks) without duplicating that path.
func (s *LocalStore) RootPath() string {
	return s.rootPath
}

// InitRoot acquires the per-origin persistent directory rooted at root,
// creating it if necessary.
func InitRoot(root string) (*LocalStore, error) {
	modelsDir := filepath.Join(root, modelsDirName)
	if err := os.MkdirAll(modelsDir, 0o777); err != nil {
		return nil, &types.PlatformUnsupportedError{Reason: fmt.Sprintf("cannot create root directory: %v", err)}
	}
	ls := &LocalStore{rootPath: root}
	ls.CleanupStaleIncompleteFiles(types.StaleIncompleteAge)
	return ls, nil
}

// CleanupStaleIncompleteFiles removes ".incomplete" shard/manifest write
// leftovers from crashed imports or downloads that have not been touched
// for longer than maxAge, preventing disk space leaks from abandoned jobs.
// Walk errors on individual files are skipped rather than aborting the
// whole sweep.
func (s *LocalStore) CleanupStaleIncompleteFiles(maxAge time.Duration) error {
	modelsDir := filepath.Join(s.rootPath, modelsDirName)
	if _, err := os.Stat(modelsDir); os.IsNotExist(err) {
		return nil
	}

	var cleanupErrors []error
	err := filepath.Walk(modelsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".incomplete") {
			return nil
		}
		if time.Since(info.ModTime()) > maxAge {
			if rmErr := os.Remove(path); rmErr != nil {
				cleanupErrors = append(cleanupErrors, fmt.Errorf("remove stale incomplete file %s: %w", path, rmErr))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking models directory: %w", err)
	}
	if len(cleanupErrors) > 0 {
		return cleanupErrors[0]
	}
	return nil
}

// ModelHandle is the explicit per-operation handle to one model's
// directory, returned by OpenModel.
type ModelHandle struct {
	store   *LocalStore
	ModelID string
	dir     string
}

var sanitizeDisallowed = regexp.MustCompile(`[^a-z0-9_-]+`)
var sanitizeDashRun = regexp.MustCompile(`-{2,}`)

// SanitizeModelID maps any input to a filesystem-safe slug: lower-case,
// disallowed characters become '-', dash runs collapse, leading/trailing
// dashes trim, and the result clamps to 64 characters. An empty result
// becomes "imported-model". Idempotent when reapplied (I6).
func SanitizeModelID(raw string) string {
	s := strings.ToLower(raw)
	s = sanitizeDisallowed.ReplaceAllString(s, "-")
	s = sanitizeDashRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 64 {
		s = s[:64]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "imported-model"
	}
	return s
}

// OpenModel sanitizes modelID and creates-or-opens its directory, returning
// a handle for all further operations against it.
func (s *LocalStore) OpenModel(modelID string) (*ModelHandle, error) {
	sanitized := SanitizeModelID(modelID)
	dir := filepath.Join(s.rootPath, modelsDirName, sanitized)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("open model %q: %w", sanitized, err)
	}
	return &ModelHandle{store: s, ModelID: sanitized, dir: dir}, nil
}

// DeleteModel removes a model's entire directory, including its shards,
// manifest, and tokenizer. Used to discard partial state on a cancelled
// import (I7).
func (s *LocalStore) DeleteModel(modelID string) error {
	sanitized := SanitizeModelID(modelID)
	dir := filepath.Join(s.rootPath, modelsDirName, sanitized)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete model %q: %w", sanitized, err)
	}
	return nil
}

// ListModels returns the sanitized model IDs of every model directory
// under root.
func (s *LocalStore) ListModels() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.rootPath, modelsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list models: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ModelInfo summarizes a model directory's on-disk state.
type ModelInfo struct {
	Exists      bool
	ShardCount  int
	TotalSize   int64
	HasManifest bool
}

// GetModelInfo reports whether a model directory exists and, if so, how
// many shards it contains and their total size.
func (s *LocalStore) GetModelInfo(modelID string) (ModelInfo, error) {
	sanitized := SanitizeModelID(modelID)
	dir := filepath.Join(s.rootPath, modelsDirName, sanitized)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ModelInfo{}, nil
		}
		return ModelInfo{}, fmt.Errorf("stat model %q: %w", sanitized, err)
	}

	info := ModelInfo{Exists: true}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == manifestFilename {
			info.HasManifest = true
			continue
		}
		if strings.HasPrefix(e.Name(), "shard_") && strings.HasSuffix(e.Name(), ".bin") {
			fi, err := e.Info()
			if err != nil {
				continue
			}
			info.ShardCount++
			info.TotalSize += fi.Size()
		}
	}
	return info, nil
}

func (h *ModelHandle) shardPath(index int) string {
	return filepath.Join(h.dir, types.ShardFilename(index))
}

func (h *ModelHandle) manifestPath() string {
	return filepath.Join(h.dir, manifestFilename)
}

func (h *ModelHandle) tokenizerPath() string {
	return filepath.Join(h.dir, tokenizerFilename)
}

func incompletePath(path string) string {
	return path + ".incomplete"
}

// createFile creates path (and any parent directories) for writing, truncating
// any existing content.
func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, fmt.Errorf("create parent directory %q: %w", filepath.Dir(path), err)
	}
	return os.Create(path)
}
