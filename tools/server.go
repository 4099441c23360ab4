package tools

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/distillmcp/distill/llm"
)

// Deps carries everything the tool surface needs from the composition
// root.
type Deps struct {
	Logger zerolog.Logger
	// NewLLM constructs a reasoning-service client on demand. It is
	// called lazily per tool invocation so a missing credential fails
	// the one call that needs it, not server startup.
	NewLLM func() (llm.Client, error)
}

// NewServer builds the MCP server with every distill tool registered.
func NewServer(version string, deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"distill",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	recall := NewRecallTool(deps.Logger)
	s.AddTool(recall.Definition(), recall.Handle)

	learn := NewLearnTool(deps.Logger, deps.NewLLM)
	s.AddTool(learn.Definition(), learn.Handle)

	profile := NewProfileTool(deps.Logger)
	s.AddTool(profile.Definition(), profile.Handle)

	digestTool := NewDigestTool(deps.Logger)
	s.AddTool(digestTool.Definition(), digestTool.Handle)

	memory := NewMemoryTool(deps.Logger, deps.NewLLM)
	s.AddTool(memory.Definition(), memory.Handle)

	return s
}
