package pipeline

import "strings"

// summaryMarkers are the substrings extractSummary looks for anywhere in a
// line, case-insensitively.
var summaryMarkers = []string{"summary:", "findings:", "criteria:"}

// extractSummary pulls a short summary out of a raw developer/reviewer
// response for the agents.md log. It is intentionally lossy — the full
// text is preserved in the raw .ralph/logs/ file.
func extractSummary(raw string) string {
	lines := strings.Split(raw, "\n")

	markerIdx := -1
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, marker := range summaryMarkers {
			if strings.Contains(lower, marker) {
				markerIdx = i
				break
			}
		}
		if markerIdx != -1 {
			break
		}
	}

	var captured string
	if markerIdx != -1 {
		var b strings.Builder
		for i := markerIdx; i < len(lines); i++ {
			if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				break
			}
			b.WriteString(lines[i])
			b.WriteString("\n")
		}
		captured = strings.TrimSpace(b.String())
	} else {
		var nonEmpty []string
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			nonEmpty = append(nonEmpty, line)
			if len(nonEmpty) == 5 {
				break
			}
		}
		captured = strings.TrimSpace(strings.Join(nonEmpty, "\n"))
	}

	if len(captured) <= 10 {
		trimmed := strings.TrimSpace(raw)
		if len(trimmed) > 500 {
			trimmed = trimmed[:500]
		}
		return trimmed + "..."
	}

	return captured
}
