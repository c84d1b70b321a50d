// Package llm contains helpers for working with raw model output, which is
// routinely prose-wrapped, fenced, truncated, or otherwise not quite JSON.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ExtractJSONObject returns the first balanced JSON object substring in the
// response. Brace depth is tracked outside of string literals so braces inside
// values do not confuse the scan. If the object is never closed (truncated
// output), everything from the opening brace onward is returned so the repair
// stage can complete it.
func ExtractJSONObject(response string) string {
	start := strings.IndexByte(response, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(response); i++ {
		c := response[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}

	// Unbalanced: likely truncated mid-object.
	return response[start:]
}

// DecodeModelJSON extracts and unmarshals the first JSON object in a model
// response into target. Invalid JSON goes through the jsonrepair library
// before giving up, which recovers trailing commas, unterminated structures,
// fenced blocks with stray text, and similar model output defects.
func DecodeModelJSON(response string, target interface{}) error {
	jsonStr := ExtractJSONObject(response)
	if jsonStr == "" {
		return fmt.Errorf("no JSON object found in response (%d chars)", len(response))
	}

	if err := json.Unmarshal([]byte(jsonStr), target); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(jsonStr)
	if err != nil {
		return fmt.Errorf("JSON repair failed: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("failed to parse repaired JSON: %w", err)
	}

	return nil
}
