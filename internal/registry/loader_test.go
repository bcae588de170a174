package registry

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// makeCachedModel lays out <cache>/models--<id>/{refs/main,snapshots/<commit>/config.json}.
func makeCachedModel(t *testing.T, cache, modelID, commit string, withRef bool) string {
	t.Helper()
	repo := filepath.Join(cache, RepoDirName(modelID))
	snap := filepath.Join(repo, "snapshots", commit)
	if err := os.MkdirAll(snap, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(snap, "config.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if withRef {
		if err := os.MkdirAll(filepath.Join(repo, "refs"), 0o755); err != nil {
			t.Fatalf("mkdir refs: %v", err)
		}
		if err := os.WriteFile(filepath.Join(repo, "refs", "main"), []byte(commit+"\n"), 0o644); err != nil {
			t.Fatalf("write ref: %v", err)
		}
	}
	return snap
}

func TestRepoDirName(t *testing.T) {
	cases := map[string]string{
		"distilbert-base-uncased-finetuned-sst-2-english":            "models--distilbert-base-uncased-finetuned-sst-2-english",
		"distilbert/distilbert-base-uncased-finetuned-sst-2-english": "models--distilbert--distilbert-base-uncased-finetuned-sst-2-english",
	}
	for in, want := range cases {
		if got := RepoDirName(in); got != want {
			t.Fatalf("%q -> %q, want %q", in, got, want)
		}
	}
}

func TestResolveCache_FollowsRef(t *testing.T) {
	cache := t.TempDir()
	snap := makeCachedModel(t, cache, "org/sst2", "abc123", true)
	m, err := ResolveCache(cache, "org/sst2", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Path != snap || m.Revision != "abc123" || m.Source != SourceCache || m.ID != "org/sst2" {
		t.Fatalf("unexpected model: %+v", m)
	}
}

func TestResolveCache_SingleSnapshotWithoutRefs(t *testing.T) {
	cache := t.TempDir()
	snap := makeCachedModel(t, cache, "sst2", "deadbeef", false)
	m, err := ResolveCache(cache, "sst2", "main")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Path != snap {
		t.Fatalf("path=%s want %s", m.Path, snap)
	}
	// an explicit commit hash also resolves
	if _, err := ResolveCache(cache, "sst2", "deadbeef"); err != nil {
		t.Fatalf("resolve by commit: %v", err)
	}
}

func TestResolveCache_StrictMisses(t *testing.T) {
	cache := t.TempDir()
	if _, err := ResolveCache(cache, "missing/model", "main"); !errors.Is(err, ErrNotCached) {
		t.Fatalf("expected ErrNotCached, got %v", err)
	}
	makeCachedModel(t, cache, "m", "c1", true)
	if _, err := ResolveCache(cache, "m", "v2"); !errors.Is(err, ErrNotCached) {
		t.Fatalf("expected ErrNotCached for unknown revision, got %v", err)
	}
	// ref pointing at a snapshot that was never downloaded
	repo := filepath.Join(cache, RepoDirName("m"))
	if err := os.WriteFile(filepath.Join(repo, "refs", "main"), []byte("gone"), 0o644); err != nil {
		t.Fatalf("write ref: %v", err)
	}
	if _, err := ResolveCache(cache, "m", "main"); !errors.Is(err, ErrNotCached) {
		t.Fatalf("expected ErrNotCached for dangling ref, got %v", err)
	}
	if _, err := ResolveCache(cache, "", "main"); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestDefaultCacheDir(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }
	if got := DefaultCacheDir(getenv); got != "~/.cache/huggingface/hub" {
		t.Fatalf("fallback=%q", got)
	}
	env["HF_HOME"] = "/hf"
	if got := DefaultCacheDir(getenv); got != filepath.Join("/hf", "hub") {
		t.Fatalf("HF_HOME=%q", got)
	}
	env["HF_HUB_CACHE"] = "/hub-cache"
	if got := DefaultCacheDir(getenv); got != "/hub-cache" {
		t.Fatalf("HF_HUB_CACHE=%q", got)
	}
}

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "distilbert-model")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := ResolveLocal(modelDir); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty dir should be ErrNotFound, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "config.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := ResolveLocal(modelDir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.ID != "distilbert-model" || m.Path != modelDir || m.Source != SourceLocal {
		t.Fatalf("unexpected model: %+v", m)
	}
	if _, err := ResolveLocal(filepath.Join(dir, "nope")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := ResolveLocal(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
}

func TestScanGGUF_FiltersGGUF(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"a.gguf",
		"b.GGUF", // case-insensitive
		"not-model.txt",
		"model.bin",
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	models, err := ScanGGUF(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	for _, m := range models {
		if !strings.HasSuffix(strings.ToLower(m.ID), ".gguf") {
			t.Fatalf("id not gguf: %s", m.ID)
		}
	}
}

func TestScanGGUF_ExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir on this platform: %v", err)
	}
	hTmp, err := os.MkdirTemp(home, "gpuworker-registry-*")
	if err != nil {
		t.Skipf("cannot create temp under home: %v", err)
	}
	defer os.RemoveAll(hTmp)
	if err := os.WriteFile(filepath.Join(hTmp, "x.gguf"), []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var tildePath string
	if runtime.GOOS == "windows" {
		tildePath = filepath.Join("~", filepath.Base(hTmp))
	} else {
		tildePath = "~/" + filepath.Base(hTmp)
	}
	models, err := ScanGGUF(tildePath)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x.gguf" {
		t.Fatalf("unexpected models: %+v", models)
	}
}
