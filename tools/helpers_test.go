package tools

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/store"

	_ "github.com/mattn/go-sqlite3"
)

func TestResolveScopes(t *testing.T) {
	cases := []struct {
		name        string
		scopeParam  store.Scope
		projectRoot string
		want        []store.Scope
	}{
		{"explicit scope", store.ScopeProject, "/proj", []store.Scope{store.ScopeProject}},
		{"no scope with project", "", "/proj", []store.Scope{store.ScopeGlobal, store.ScopeProject}},
		{"no scope no project", "", "", []store.Scope{store.ScopeGlobal}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := resolveScopes(tc.scopeParam, tc.projectRoot)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestForEachScopeSkipsMissingPartitions(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	visited := 0
	forEachScope(context.Background(), "", "", false, zerolog.Nop(), func(s ScopeStores) error {
		visited++
		return nil
	})
	if visited != 0 {
		t.Errorf("unwritten partitions must be skipped, visited %d", visited)
	}
}

func TestForEachScopeVisitsExistingPartition(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	// Touch the global partition so it exists.
	meta, err := store.OpenMetadata(store.ScopeGlobal, "", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = meta.Close()

	var seen []store.Scope
	forEachScope(context.Background(), "", "", false, zerolog.Nop(), func(s ScopeStores) error {
		seen = append(seen, s.Scope)
		if s.Meta == nil {
			t.Error("expected an open metadata store")
		}
		if s.Index != nil {
			t.Error("index should not be opened when not requested")
		}
		return nil
	})
	if len(seen) != 1 || seen[0] != store.ScopeGlobal {
		t.Errorf("unexpected visit order: %v", seen)
	}
}
