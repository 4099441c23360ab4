// distill-session-start is the SessionStart hook. It consumes the
// pending-learn handoff written by a previous session's hook and, when
// one is actionable, emits additional context prompting a learn run.
// It always exits 0; a hook failure must never block session start.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/distillmcp/distill/hooks"
)

type hookOutput struct {
	AdditionalContext string `json:"additionalContext"`
}

func main() {
	pending, err := hooks.ConsumePending()
	if err != nil {
		fmt.Fprintf(os.Stderr, "distill-session-start: %v\n", err)
		os.Exit(0)
	}
	if pending == nil {
		os.Exit(0)
	}

	context := strings.Join([]string{
		"[Distill] Previous session has unprocessed knowledge.",
		"Please run the `learn` tool to extract knowledge from the previous session.",
		"transcript_path: " + pending.TranscriptPath,
		"session_id: " + pending.SessionID,
	}, "\n")

	raw, err := json.Marshal(hookOutput{AdditionalContext: context})
	if err != nil {
		os.Exit(0)
	}
	os.Stdout.Write(raw) //nolint:errcheck // nothing to do on stdout failure
}
