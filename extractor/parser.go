package extractor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Turn is one conversational exchange parsed from a transcript.
type Turn struct {
	Role      string // "user" or "assistant"
	Text      string
	Timestamp string
}

// transcriptEntry is the subset of a transcript line we care about.
// Each line is an independent JSON record with a type discriminator.
type transcriptEntry struct {
	Type    string `json:"type"`
	Message *struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
	} `json:"message"`
	Timestamp string `json:"timestamp"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const turnSeparator = "\n\n---\n\n"

// ParseTranscript reads a line-oriented transcript and returns the
// ordered user/assistant text turns. Tool invocations, tool results,
// internal reasoning and system records are ignored; malformed lines
// are skipped rather than aborting the parse.
func ParseTranscript(path string) ([]Turn, error) {
	file, err := os.Open(path) //nolint:gosec // G304: transcript path comes from the hook payload
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only file

	var turns []Turn
	scanner := bufio.NewScanner(file)
	// Transcript lines routinely exceed the default scanner buffer.
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry transcriptEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry.Type != "user" && entry.Type != "assistant" {
			continue
		}
		if entry.Message == nil {
			continue
		}

		var textParts []string
		for _, raw := range entry.Message.Content {
			var block contentBlock
			if err := json.Unmarshal(raw, &block); err != nil {
				continue
			}
			if block.Type == "text" && block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		}

		text := strings.TrimSpace(strings.Join(textParts, "\n"))
		if text == "" {
			continue
		}

		turns = append(turns, Turn{
			Role:      entry.Type,
			Text:      text,
			Timestamp: entry.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return turns, nil
}

// FormatTranscript renders turns into the delimited form the
// reasoning service sees.
func FormatTranscript(turns []Turn) string {
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = formatTurn(t)
	}
	return strings.Join(parts, turnSeparator)
}

func formatTurn(t Turn) string {
	return fmt.Sprintf("[%s]\n%s", strings.ToUpper(t.Role), t.Text)
}

// TruncateToRecent keeps a contiguous trailing window of turns whose
// formatted length fits maxChars. Turns are never split; the oldest
// turns fall off first.
func TruncateToRecent(turns []Turn, maxChars int) string {
	var kept []Turn
	total := 0

	for i := len(turns) - 1; i >= 0; i-- {
		entry := formatTurn(turns[i]) + turnSeparator
		if total+len(entry) > maxChars {
			break
		}
		total += len(entry)
		kept = append([]Turn{turns[i]}, kept...)
	}

	return FormatTranscript(kept)
}
