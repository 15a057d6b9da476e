package genai

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// StreamEvent is one decoded event from a provider byte stream.
type StreamEvent struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

// sseDataPrefix marks payload lines in server-sent event streams.
const sseDataPrefix = "data:"

// sseDoneSentinel terminates OpenAI-style SSE streams.
const sseDoneSentinel = "[DONE]"

// ParseStream reads an event stream in either SSE form ("data: {...}" lines
// with an optional "[DONE]" terminator) or NDJSON form (one JSON object per
// line) and invokes onEvent for each decoded event. Lines carrying several
// concatenated JSON objects are split on balanced braces; malformed
// fragments go through jsonrepair before being skipped.
func ParseStream(r io.Reader, onEvent func(StreamEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, sseDataPrefix) {
			line = strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		}
		if line == "" || strings.HasPrefix(line, ":") {
			// SSE comment/keepalive line.
			continue
		}
		if line == sseDoneSentinel {
			onEvent(StreamEvent{Done: true})
			return nil
		}

		for _, fragment := range splitConcatenated(line) {
			event, ok := decodeEvent(fragment)
			if !ok {
				continue
			}
			onEvent(event)
			if event.Done {
				return nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}

// decodeEvent unmarshals one JSON object, repairing it first when the plain
// parse fails. Undecodable fragments are dropped.
func decodeEvent(fragment string) (StreamEvent, bool) {
	var event StreamEvent
	if err := json.Unmarshal([]byte(fragment), &event); err == nil {
		return event, true
	}

	repaired, err := jsonrepair.JSONRepair(fragment)
	if err != nil {
		return StreamEvent{}, false
	}
	if err := json.Unmarshal([]byte(repaired), &event); err != nil {
		return StreamEvent{}, false
	}
	return event, true
}

// splitConcatenated splits a line like `{"a":1}{"b":2}` into its individual
// top-level JSON objects. Braces inside strings are ignored. A line that is
// a single object (or not an object at all) comes back unchanged.
func splitConcatenated(line string) []string {
	if !strings.HasPrefix(line, "{") {
		return []string{line}
	}

	var (
		parts      []string
		depth      int
		start      = -1
		inString   bool
		escapeNext bool
	)

	for i, ch := range line {
		if escapeNext {
			escapeNext = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escapeNext = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 && start >= 0 {
					parts = append(parts, line[start:i+1])
					start = -1
				}
			}
		}
	}

	// Trailing unterminated object: keep it so the repair path gets a shot.
	if start >= 0 {
		parts = append(parts, line[start:])
	}
	if len(parts) == 0 {
		return []string{line}
	}
	return parts
}
