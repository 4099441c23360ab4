// Package hooks implements the session-boundary handoff: a lifecycle
// hook that cannot finish extraction records a pending request in a
// small JSON file, and the next session start consumes it exactly once.
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/distillmcp/distill/store"
)

const (
	pendingFileName = "pending-learn.json"

	// maxPendingAge bounds how long a handoff stays actionable. Anything
	// older is discarded on consumption.
	maxPendingAge = 24 * time.Hour
)

// PendingLearn is the handoff record between the session-end hook and
// the next session-start hook.
type PendingLearn struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Event          string `json:"event"`
	Timestamp      string `json:"timestamp"`
}

// PendingPath returns the handoff file location under the global root.
func PendingPath() (string, error) {
	root, err := store.GlobalRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, pendingFileName), nil
}

// WritePending records a handoff, overwriting any previous one. Only
// the newest unprocessed session matters.
func WritePending(p PendingLearn) error {
	path, err := PendingPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create distill dir: %w", err)
	}
	if p.Timestamp == "" {
		p.Timestamp = time.Now().Format(time.RFC3339)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending learn: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write pending learn: %w", err)
	}
	return nil
}

// ConsumePending reads and deletes the handoff file. The file is
// removed on every path that touches it, so a record is seen at most
// once. Returns nil when there is nothing actionable: no file, a
// malformed one, or one older than the staleness window.
func ConsumePending() (*PendingLearn, error) {
	path, err := PendingPath()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path) //nolint:gosec // G304: fixed path under the global root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pending learn: %w", err)
	}

	// Consume before inspecting: even a record we end up discarding must
	// not be seen twice.
	_ = os.Remove(path)

	var pending PendingLearn
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, nil
	}
	if pending.SessionID == "" || pending.TranscriptPath == "" {
		return nil, nil
	}
	if pending.Timestamp != "" {
		written, err := time.Parse(time.RFC3339, pending.Timestamp)
		if err != nil || time.Since(written) > maxPendingAge {
			return nil, nil
		}
	}

	return &pending, nil
}
