package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGlobalRootHonorsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISTILL_HOME", dir)

	root, err := GlobalRoot()
	if err != nil {
		t.Fatalf("GlobalRoot: %v", err)
	}
	if root != dir {
		t.Errorf("expected %s, got %s", dir, root)
	}
}

func TestResolveStorePathCreatesDirs(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	dir, err := ResolveStorePath(ScopeGlobal, "")
	if err != nil {
		t.Fatalf("ResolveStorePath: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected store dir to exist: %v", err)
	}

	project := t.TempDir()
	projDir, err := ResolveStorePath(ScopeProject, project)
	if err != nil {
		t.Fatalf("ResolveStorePath project: %v", err)
	}
	if projDir != filepath.Join(project, ".distill", "knowledge") {
		t.Errorf("unexpected project store path: %s", projDir)
	}
}

func TestResolveStorePathRejectsProjectWithoutRoot(t *testing.T) {
	if _, err := ResolveStorePath(ScopeProject, ""); err == nil {
		t.Fatal("expected error for project scope without root")
	}
}

func TestStoreExists(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	if StoreExists(ScopeGlobal, "") {
		t.Error("store should not exist before first open")
	}

	meta, err := OpenMetadata(ScopeGlobal, "", testLogger())
	if err != nil {
		t.Fatalf("OpenMetadata: %v", err)
	}
	_ = meta.Close()

	if !StoreExists(ScopeGlobal, "") {
		t.Error("store should exist after first open")
	}
}

func TestDetectProjectRoot(t *testing.T) {
	empty := t.TempDir()
	if got := DetectProjectRoot(empty); got != "" {
		t.Errorf("expected no project root in empty dir, got %q", got)
	}

	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "go.mod"), []byte("module example\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := DetectProjectRoot(project); got != project {
		t.Errorf("expected %s, got %q", project, got)
	}
}

func TestDetectProjectRootDoesNotWalkUp(t *testing.T) {
	parent := t.TempDir()
	if err := os.WriteFile(filepath.Join(parent, "go.mod"), []byte("module example\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	child := filepath.Join(parent, "sub")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := DetectProjectRoot(child); got != "" {
		t.Errorf("detection should be local to the directory, got %q", got)
	}
}

func TestRulesDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DISTILL_HOME", home)

	global, err := RulesDir(ScopeGlobal, "")
	if err != nil {
		t.Fatalf("RulesDir global: %v", err)
	}
	if global != filepath.Join(home, "rules") {
		t.Errorf("unexpected global rules dir: %s", global)
	}

	if _, err := RulesDir(ScopeProject, ""); err == nil {
		t.Fatal("expected error for project rules dir without root")
	}
}
