package completion

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = errors.New("no json object in reply")

// ExtractJSON decodes the first JSON object in a model reply.
// Markdown code fences and surrounding prose are ignored.
func ExtractJSON[T any](reply string) (T, error) {
	var out T
	s := stripFences(reply)
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out, nil
	}
	obj, ok := firstObject(s)
	if !ok {
		return out, ErrNoJSON
	}
	err := json.Unmarshal([]byte(obj), &out)
	return out, err
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[nl+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} span, honouring string literals.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
