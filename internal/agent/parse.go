package agent

import (
	"encoding/json"
	"strings"

	"github.com/aide-agent/aide/internal/actions"
)

// ParsedReply is the structured payload extracted from a model reply.
type ParsedReply struct {
	Response string            `json:"response"`
	Actions  []actions.Request `json:"actions"`
}

// ParseReply extracts the structured payload from a model reply. Models
// wander off-format in predictable ways — fenced code blocks, prose
// around the JSON, truncated objects — so extraction is heuristic:
//
//  1. decode the whole reply as JSON;
//  2. strip markdown code fences and retry;
//  3. decode the first balanced {...} region and retry;
//  4. fall back to treating the entire reply as plain text with no
//     actions.
//
// Extraction never fails: the fallback guarantees a usable reply.
func ParseReply(raw string) ParsedReply {
	trimmed := strings.TrimSpace(raw)

	if parsed, ok := tryDecode(trimmed); ok {
		return parsed
	}

	if unfenced := stripFences(trimmed); unfenced != trimmed {
		if parsed, ok := tryDecode(unfenced); ok {
			return parsed
		}
	}

	if fragment := firstJSONObject(trimmed); fragment != "" {
		if parsed, ok := tryDecode(fragment); ok {
			return parsed
		}
	}

	return ParsedReply{Response: trimmed}
}

// tryDecode attempts to decode s as a reply object. A decoded object
// with neither a response nor actions is treated as a miss (the model
// returned some unrelated JSON).
func tryDecode(s string) (ParsedReply, bool) {
	var parsed ParsedReply
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return ParsedReply{}, false
	}
	if parsed.Response == "" && len(parsed.Actions) == 0 {
		return ParsedReply{}, false
	}
	return parsed, true
}

// stripFences removes a leading/trailing markdown code fence, with or
// without a language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag line ("json\n", "\n", ...).
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced {...} region of s, or ""
// when none exists. Braces inside JSON strings are skipped.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
