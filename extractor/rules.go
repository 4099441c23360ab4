package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/distillmcp/distill/store"
)

const rulePrefix = "distill-"

// ReadExistingRules concatenates every crystallized rule document from
// the global scope plus, when a project root is known, the project
// scope. Returns "" when no documents exist. Unreadable directories or
// files are treated as absent.
func ReadExistingRules(projectRoot string) string {
	var parts []string

	if globalDir, err := store.RulesDir(store.ScopeGlobal, ""); err == nil {
		parts = append(parts, readRuleFiles(globalDir)...)
	}
	if projectRoot != "" {
		if projectDir, err := store.RulesDir(store.ScopeProject, projectRoot); err == nil {
			parts = append(parts, readRuleFiles(projectDir)...)
		}
	}

	return strings.Join(parts, "\n\n")
}

func readRuleFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var parts []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, rulePrefix) || !strings.HasSuffix(name, ".md") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // G304: path is confined to the rules dir
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", name, string(content)))
	}
	return parts
}
