// Package jsonextract recovers a JSON object from AI provider output.
// Providers inconsistently wrap structured output in explanatory prose or
// markdown code fences, so a direct parse alone is not enough.
package jsonextract

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no parseable JSON object can be found.
var ErrNoJSON = errors.New("no JSON object found in text")

// Object extracts the first JSON object from raw text. Strategies, in order:
//  1. direct parse of the trimmed text
//  2. parse of the first fenced code block (```json or bare ```)
//  3. parse of the first balanced {...} block
func Object(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrNoJSON
	}

	if obj, ok := tryParse(trimmed); ok {
		return obj, nil
	}

	if fenced := fencedBlock(trimmed); fenced != "" {
		if obj, ok := tryParse(fenced); ok {
			return obj, nil
		}
	}

	if block := balancedBlock(trimmed); block != "" {
		if obj, ok := tryParse(block); ok {
			return obj, nil
		}
	}

	return nil, ErrNoJSON
}

// tryParse validates that s is a JSON object (not an array or scalar).
func tryParse(s string) (json.RawMessage, bool) {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return json.RawMessage(strings.TrimSpace(s)), true
}

// fencedBlock returns the content of the first markdown code fence, if any.
func fencedBlock(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}
	rest := s[start+3:]
	// Skip a language identifier on the opening fence line.
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || (len(firstLine) < 20 && !strings.ContainsAny(firstLine, " {")) {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// balancedBlock scans for the first balanced top-level {...} block, honoring
// string literals and escape sequences.
func balancedBlock(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
