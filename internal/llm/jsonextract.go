package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON recovers a single JSON value from response text that may be
// wrapped in prose, in three stages: (1) parse the whole trimmed response;
// (2) find the first brace/bracket and search backwards from its last
// matching closer for a position that parses; (3) fail, carrying a prefix
// of the response for diagnostics.
func ExtractJSON(response string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(response)

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if raw, ok := extractByBracketScan(trimmed); ok {
		return raw, nil
	}

	return nil, fmt.Errorf("no valid JSON value found in response: %s", truncate(trimmed, 200))
}

// extractByBracketScan implements stage 2: find the first '{' or '[',
// determine its matching close character, then walk backwards from the
// last occurrence of that close character, attempting to parse the
// substring at each candidate end until one succeeds.
func extractByBracketScan(s string) (json.RawMessage, bool) {
	start := -1
	var closer byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			if s[i] == '{' {
				closer = '}'
			} else {
				closer = ']'
			}
			break
		}
	}
	if start == -1 {
		return nil, false
	}

	var candidateEnds []int
	for i := start + 1; i < len(s); i++ {
		if s[i] == closer {
			candidateEnds = append(candidateEnds, i)
		}
	}

	for i := len(candidateEnds) - 1; i >= 0; i-- {
		end := candidateEnds[i]
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}

	return nil, false
}

// ParseJSON decodes the recovered JSON value in response into a T, using
// the three-stage recovery above.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	raw, err := ExtractJSON(response)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decoding recovered JSON: %w", err)
	}
	return out, nil
}
