// Package tools exposes the knowledge substrate as MCP tool calls.
// Each tool is a struct with a Definition and a Handle method; the
// server wires them together. Store handles are opened per invocation
// and closed on every exit path.
package tools

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/store"
)

// ScopeStores bundles the open handles for one scope during a
// cross-scope iteration.
type ScopeStores struct {
	Scope store.Scope
	Meta  *store.MetadataStore
	Index *store.SearchIndex
}

// resolveScopes maps an optional scope parameter to the scopes a tool
// should visit: the named one, or global plus project when a project
// root is known.
func resolveScopes(scopeParam store.Scope, projectRoot string) []store.Scope {
	if scopeParam != "" {
		return []store.Scope{scopeParam}
	}
	if projectRoot != "" {
		return []store.Scope{store.ScopeGlobal, store.ScopeProject}
	}
	return []store.Scope{store.ScopeGlobal}
}

// forEachScope visits scopes sequentially, opening and closing the
// stores around the callback. Scopes whose partition has never been
// written are skipped, not errored; a failure in one scope does not
// abort the others.
func forEachScope(ctx context.Context, scopeParam store.Scope, projectRoot string, withIndex bool,
	logger zerolog.Logger, fn func(ScopeStores) error) {
	for _, scope := range resolveScopes(scopeParam, projectRoot) {
		if !store.StoreExists(scope, projectRoot) {
			continue
		}

		meta, err := store.OpenMetadata(scope, projectRoot, logger)
		if err != nil {
			logger.Warn().Err(err).Str("scope", string(scope)).Msg("skipping scope, metadata store unavailable")
			continue
		}

		var index *store.SearchIndex
		if withIndex {
			index, err = store.OpenSearchIndex(scope, projectRoot, nil, logger)
			if err != nil {
				_ = meta.Close()
				logger.Warn().Err(err).Str("scope", string(scope)).Msg("skipping scope, search index unavailable")
				continue
			}
		}

		err = fn(ScopeStores{Scope: scope, Meta: meta, Index: index})
		_ = meta.Close()
		if index != nil {
			_ = index.Close()
		}
		if err != nil {
			logger.Warn().Err(err).Str("scope", string(scope)).Msg("scope iteration failed")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// truncate shortens s for tool output.
func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "..."
	}
	return s
}
