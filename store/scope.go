package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidScope is returned when a scope cannot be resolved to a
// storage location (e.g. project scope without a project root).
var ErrInvalidScope = errors.New("invalid scope")

const (
	distillDir   = ".distill"
	knowledgeDir = "knowledge"
	rulesDirName = "rules"
	dbFileName   = "metadata.db"
)

// projectMarkers are checked in the working directory to decide whether
// it is a project root. Detection is local to the directory itself; we
// do not walk upward.
var projectMarkers = []string{
	".git",
	"go.mod",
	"package.json",
	"pubspec.yaml",
	"CLAUDE.md",
	distillDir,
}

// GlobalRoot returns the per-user distill directory (~/.distill).
// DISTILL_HOME overrides it, which test harnesses rely on.
func GlobalRoot() (string, error) {
	if env := os.Getenv("DISTILL_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, distillDir), nil
}

// ResolveStorePath maps a scope (plus optional project root) to the
// directory holding that scope's stores, creating it on demand.
func ResolveStorePath(scope Scope, projectRoot string) (string, error) {
	switch scope {
	case ScopeGlobal:
		root, err := GlobalRoot()
		if err != nil {
			return "", err
		}
		dir := filepath.Join(root, knowledgeDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create global store dir: %w", err)
		}
		return dir, nil
	case ScopeProject:
		if projectRoot == "" {
			return "", fmt.Errorf("%w: project scope requires a project root", ErrInvalidScope)
		}
		dir := filepath.Join(projectRoot, distillDir, knowledgeDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create project store dir: %w", err)
		}
		return dir, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
}

// ResolveDBPath returns the SQLite database path for a scope partition.
func ResolveDBPath(scope Scope, projectRoot string) (string, error) {
	base, err := ResolveStorePath(scope, projectRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, dbFileName), nil
}

// StoreExists reports whether a scope partition has been written to.
// A partition that has never existed is treated as an empty store by
// read paths, not as an error.
func StoreExists(scope Scope, projectRoot string) bool {
	var base string
	switch scope {
	case ScopeGlobal:
		root, err := GlobalRoot()
		if err != nil {
			return false
		}
		base = filepath.Join(root, knowledgeDir)
	case ScopeProject:
		if projectRoot == "" {
			return false
		}
		base = filepath.Join(projectRoot, distillDir, knowledgeDir)
	default:
		return false
	}
	_, err := os.Stat(filepath.Join(base, dbFileName))
	return err == nil
}

// RulesDir returns the rule-document directory for a scope. It is not
// created here; crystallize creates it when it first writes a document.
func RulesDir(scope Scope, projectRoot string) (string, error) {
	switch scope {
	case ScopeGlobal:
		root, err := GlobalRoot()
		if err != nil {
			return "", err
		}
		return filepath.Join(root, rulesDirName), nil
	case ScopeProject:
		if projectRoot == "" {
			return "", fmt.Errorf("%w: project scope requires a project root", ErrInvalidScope)
		}
		return filepath.Join(projectRoot, distillDir, rulesDirName), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
}

// DetectProjectRoot checks cwd for project markers and returns it when
// any marker is present, or "" when none is. An empty cwd means the
// process working directory.
func DetectProjectRoot(cwd string) string {
	dir := cwd
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return ""
		}
	}
	for _, marker := range projectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir
		}
	}
	return ""
}
