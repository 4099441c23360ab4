// distilld is the distill MCP server. It speaks the MCP protocol over
// stdio, so all logging goes to stderr or a file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	_ "github.com/mattn/go-sqlite3"

	"github.com/distillmcp/distill/llm"
	"github.com/distillmcp/distill/logger"
	"github.com/distillmcp/distill/tools"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logFile := flag.String("logfile", "", "Path to log file. If not set, logs to stderr")
	flag.Parse()

	log, err := logger.Init(*logFile)
	if err != nil {
		return err
	}

	s := tools.NewServer(version, tools.Deps{
		Logger: log,
		NewLLM: func() (llm.Client, error) {
			return llm.NewAnthropicClient(log)
		},
	})

	log.Info().Str("version", version).Msg("distill server starting on stdio")
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}
