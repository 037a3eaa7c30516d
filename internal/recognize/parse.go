package recognize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// linesResponse is the JSON shape the vision models are asked to return
type linesResponse struct {
	Lines []string `json:"lines"`
}

// parseLinesJSON parses the JSON response from a vision model
func parseLinesJSON(text string) ([]string, error) {
	// Remove markdown code blocks if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var resp linesResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	return cleanLines(resp.Lines), nil
}

// cleanLines trims each line and drops the empty ones
func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// splitLines breaks plain recognizer output into cleaned lines
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return cleanLines(strings.Split(text, "\n"))
}
