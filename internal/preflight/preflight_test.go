package preflight_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tabsync/internal/preflight"
	"tabsync/internal/testsupport"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := preflight.CheckDirectoryAccess("Data directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for %s: %s", dir, result.Detail)
	}
	if result.Detail != dir {
		t.Fatalf("detail = %q, want %q", result.Detail, dir)
	}

	missing := preflight.CheckDirectoryAccess("Data directory", filepath.Join(dir, "missing"))
	if missing.Passed {
		t.Fatal("expected failure for missing directory")
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	notDir := preflight.CheckDirectoryAccess("Data directory", file)
	if notDir.Passed {
		t.Fatal("expected failure for non-directory path")
	}

	empty := preflight.CheckDirectoryAccess("Data directory", "")
	if empty.Passed {
		t.Fatal("expected failure for empty path")
	}
}

func TestCheckQueueDB(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	result := preflight.CheckQueueDB(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected queue database check to pass: %s", result.Detail)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := preflight.RunAll(context.Background(), cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 checks without ntfy configured, got %d", len(results))
	}
	if !preflight.RequiredPassed(results) {
		for _, result := range results {
			t.Logf("%s: passed=%v detail=%s", result.Name, result.Passed, result.Detail)
		}
		t.Fatal("expected all required checks to pass")
	}
}

func TestCheckNtfyInvalidURL(t *testing.T) {
	result := preflight.CheckNtfy(context.Background(), "not a url")
	if result.Passed {
		t.Fatal("expected failure for invalid topic URL")
	}
	if !result.Optional {
		t.Fatal("ntfy check should be optional")
	}
}
