package hooks

import (
	"os"
	"testing"
	"time"
)

func TestWriteAndConsumePending(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	if err := WritePending(PendingLearn{
		SessionID:      "sess-1",
		TranscriptPath: "/tmp/transcript.jsonl",
		Event:          "SessionEnd",
	}); err != nil {
		t.Fatalf("WritePending: %v", err)
	}

	pending, err := ConsumePending()
	if err != nil {
		t.Fatalf("ConsumePending: %v", err)
	}
	if pending == nil {
		t.Fatal("expected a pending record")
	}
	if pending.SessionID != "sess-1" || pending.TranscriptPath != "/tmp/transcript.jsonl" {
		t.Errorf("unexpected record: %+v", pending)
	}
	if pending.Timestamp == "" {
		t.Error("WritePending should stamp a timestamp")
	}

	// Exactly once: a second consume finds nothing.
	pending, err = ConsumePending()
	if err != nil || pending != nil {
		t.Errorf("expected nothing on second consume, got %+v err=%v", pending, err)
	}
}

func TestConsumePendingMissingFile(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	pending, err := ConsumePending()
	if err != nil {
		t.Fatalf("ConsumePending: %v", err)
	}
	if pending != nil {
		t.Errorf("expected nil for missing file, got %+v", pending)
	}
}

func TestConsumePendingStaleDiscarded(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	if err := WritePending(PendingLearn{
		SessionID:      "sess-1",
		TranscriptPath: "/tmp/t.jsonl",
		Event:          "PreCompact",
		Timestamp:      time.Now().Add(-25 * time.Hour).Format(time.RFC3339),
	}); err != nil {
		t.Fatal(err)
	}

	pending, err := ConsumePending()
	if err != nil {
		t.Fatalf("ConsumePending: %v", err)
	}
	if pending != nil {
		t.Errorf("stale record should be discarded, got %+v", pending)
	}

	path, _ := PendingPath()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stale file should be removed on consumption")
	}
}

func TestConsumePendingMalformedDiscarded(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	path, err := PendingPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	pending, err := ConsumePending()
	if err != nil {
		t.Fatalf("ConsumePending: %v", err)
	}
	if pending != nil {
		t.Errorf("malformed record should be discarded, got %+v", pending)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("malformed file should be removed")
	}
}

func TestConsumePendingMissingFieldsDiscarded(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	if err := WritePending(PendingLearn{Event: "SessionEnd"}); err != nil {
		t.Fatal(err)
	}

	pending, err := ConsumePending()
	if err != nil {
		t.Fatal(err)
	}
	if pending != nil {
		t.Errorf("record without session/transcript should be discarded, got %+v", pending)
	}
}

func TestWritePendingOverwrites(t *testing.T) {
	t.Setenv("DISTILL_HOME", t.TempDir())

	if err := WritePending(PendingLearn{SessionID: "old", TranscriptPath: "/a"}); err != nil {
		t.Fatal(err)
	}
	if err := WritePending(PendingLearn{SessionID: "new", TranscriptPath: "/b"}); err != nil {
		t.Fatal(err)
	}

	pending, err := ConsumePending()
	if err != nil || pending == nil {
		t.Fatalf("ConsumePending: %+v err=%v", pending, err)
	}
	if pending.SessionID != "new" {
		t.Errorf("expected newest record, got %q", pending.SessionID)
	}
}
