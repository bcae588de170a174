// Package registry resolves model artifacts on disk. Two strategies exist and
// are mutually exclusive: strict lookup in a Hugging Face style hub cache, and
// loading from an explicit local path.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gpuworker/internal/common/fsutil"
	"gpuworker/pkg/types"
)

const (
	SourceCache = "cache"
	SourceLocal = "local"
)

var (
	// ErrNotCached means the model is absent from the local cache. Cache
	// lookups never fall back to downloading.
	ErrNotCached = errors.New("model not found in local cache")
	// ErrNotFound means an explicit local model path does not exist.
	ErrNotFound = errors.New("model path not found")
)

// DefaultCacheDir returns the hub cache directory using the same precedence
// as the Hugging Face tools: HF_HUB_CACHE, then HF_HOME/hub, then
// ~/.cache/huggingface/hub.
func DefaultCacheDir(getenv func(string) string) string {
	if v := getenv("HF_HUB_CACHE"); v != "" {
		return v
	}
	if v := getenv("HF_HOME"); v != "" {
		return filepath.Join(v, "hub")
	}
	return "~/.cache/huggingface/hub"
}

// RepoDirName maps a hub model id to its cache folder name,
// e.g. "distilbert/distilbert-base" -> "models--distilbert--distilbert-base".
func RepoDirName(modelID string) string {
	return "models--" + strings.ReplaceAll(strings.Trim(modelID, "/"), "/", "--")
}

// ResolveCache finds modelID at revision inside cacheDir. Resolution is strict:
// a missing repo folder, ref or snapshot yields ErrNotCached.
func ResolveCache(cacheDir, modelID, revision string) (types.Model, error) {
	if strings.TrimSpace(modelID) == "" {
		return types.Model{}, fmt.Errorf("empty model id")
	}
	if revision == "" {
		revision = "main"
	}
	base, err := fsutil.ExpandHome(cacheDir)
	if err != nil {
		return types.Model{}, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return types.Model{}, fmt.Errorf("abs path: %w", err)
	}
	repo := filepath.Join(abs, RepoDirName(modelID))
	if !fsutil.IsDir(repo) {
		return types.Model{}, fmt.Errorf("%w: %s (looked in %s)", ErrNotCached, modelID, abs)
	}
	commit, err := resolveCommit(repo, revision)
	if err != nil {
		return types.Model{}, fmt.Errorf("%w: %s@%s: %v", ErrNotCached, modelID, revision, err)
	}
	snap := filepath.Join(repo, "snapshots", commit)
	if !fsutil.HasEntries(snap) {
		return types.Model{}, fmt.Errorf("%w: %s@%s: empty snapshot %s", ErrNotCached, modelID, revision, commit)
	}
	return types.Model{
		ID:       modelID,
		Name:     modelID,
		Path:     snap,
		Source:   SourceCache,
		Revision: commit,
	}, nil
}

// resolveCommit maps a revision to a snapshot folder name. A ref file wins; a
// revision that already names a snapshot is used directly; with no refs at all
// a single snapshot is accepted.
func resolveCommit(repo, revision string) (string, error) {
	if b, err := os.ReadFile(filepath.Join(repo, "refs", revision)); err == nil {
		if c := strings.TrimSpace(string(b)); c != "" {
			return c, nil
		}
		return "", fmt.Errorf("empty ref %q", revision)
	}
	snaps, err := listSnapshots(repo)
	if err != nil {
		return "", err
	}
	for _, s := range snaps {
		if s == revision {
			return s, nil
		}
	}
	if fsutil.IsDir(filepath.Join(repo, "refs")) {
		return "", fmt.Errorf("no ref %q", revision)
	}
	if len(snaps) == 1 {
		return snaps[0], nil
	}
	return "", fmt.Errorf("no ref %q and %d snapshots", revision, len(snaps))
}

func listSnapshots(repo string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(repo, "snapshots"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// ResolveLocal validates an explicit model location. Directories are used
// as-is; regular files are accepted for single-file formats such as GGUF.
func ResolveLocal(path string) (types.Model, error) {
	if strings.TrimSpace(path) == "" {
		return types.Model{}, fmt.Errorf("empty model path")
	}
	base, err := fsutil.ExpandHome(path)
	if err != nil {
		return types.Model{}, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return types.Model{}, fmt.Errorf("abs path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Model{}, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return types.Model{}, fmt.Errorf("stat model path: %w", err)
	}
	if fi.IsDir() && !fsutil.HasEntries(abs) {
		return types.Model{}, fmt.Errorf("%w: %s is empty", ErrNotFound, abs)
	}
	name := filepath.Base(abs)
	return types.Model{ID: name, Name: name, Path: abs, Source: SourceLocal}, nil
}

// ScanGGUF lists *.gguf files in dir (case-insensitive), sorted by name.
// ID is the full filename; Path is the absolute file path.
func ScanGGUF(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{ID: name, Name: name, Path: filepath.Join(abs, name)})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}
