// Package llm normalizes raw model output into structured data. Responses
// arrive as plain text that usually, but not always, contains a JSON body:
// fenced in a code block, surrounded by prose, or slightly malformed.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// DecodeResult reports how a payload was recovered from raw model output
type DecodeResult struct {
	Payload    string
	Repaired   bool
	Strategies []string
}

// Decode extracts the structured payload from raw model output, repairs it
// if needed, and unmarshals it into target.
func Decode(raw string, target interface{}) (DecodeResult, error) {
	result := DecodeResult{}

	payload := ExtractPayload(raw)
	if payload == "" {
		return result, fmt.Errorf("no structured payload found in model output")
	}

	repaired, strategies, err := Repair(payload)
	result.Payload = repaired
	result.Strategies = strategies
	result.Repaired = len(strategies) > 0

	if result.Repaired {
		log.Debug().
			Strs("strategies", strategies).
			Int("original_bytes", len(payload)).
			Int("repaired_bytes", len(repaired)).
			Msg("Repaired model output payload")
	}

	if err != nil {
		return result, fmt.Errorf("payload repair failed: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return result, fmt.Errorf("payload parse failed after repair: %w", err)
	}

	return result, nil
}

// ExtractPayload pulls the JSON body out of mixed prose/JSON model output.
// Fenced code blocks win; otherwise the first balanced object or array.
func ExtractPayload(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	if strings.Contains(raw, "```") {
		lines := strings.Split(raw, "\n")
		var body []string
		inFence := false

		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if inFence && len(body) > 0 {
					break
				}
				inFence = !inFence
				continue
			}
			if inFence {
				body = append(body, line)
			}
		}

		if len(body) > 0 {
			return strings.TrimSpace(strings.Join(body, "\n"))
		}
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return ""
	}

	open := raw[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}

	// Truncated output: hand back the tail and let repair complete it
	return raw[start:]
}

// Excerpt truncates text for fallback summaries and log lines. Cuts on a
// rune boundary so multi-byte characters are never split.
func Excerpt(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
