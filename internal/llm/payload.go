package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kevinmichaelchen/star-lists/internal/models"
)

// decodeSuggestion parses the model's message content. It accepts JSON
// wrapped in code fences or prose, and makes one best-effort repair of
// output truncated by the token limit before giving up.
func decodeSuggestion(content string) (models.Suggestion, error) {
	trimmed := strings.TrimSpace(stripCodeFences(content))
	if strings.HasPrefix(trimmed, "<") {
		return models.Suggestion{}, &MalformedResponseError{Kind: NotJSON, Snippet: snippet(trimmed)}
	}
	starts := objectStarts(trimmed)
	if len(starts) == 0 {
		return models.Suggestion{}, &MalformedResponseError{Kind: NotJSON, Snippet: snippet(trimmed), Err: errors.New("no JSON object in content")}
	}

	// Prose before the object may hold braces of its own, so every opening
	// brace is a candidate start. Complete objects are tried before repairs.
	var firstErr error
	try := func(candidates []string) (models.Suggestion, bool) {
		for _, c := range candidates {
			var s models.Suggestion
			err := json.Unmarshal([]byte(c), &s)
			if err == nil {
				return cleanSuggestion(s), true
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		return models.Suggestion{}, false
	}
	for _, i := range starts {
		body := trimmed[i:]
		candidates := []string{body}
		if end := strings.LastIndex(body, "}"); end >= 0 && end < len(body)-1 {
			// Drop trailing prose after the object.
			candidates = append([]string{body[:end+1]}, candidates...)
		}
		if s, ok := try(candidates); ok {
			return s, nil
		}
	}
	for _, i := range starts {
		if s, ok := try(repairTruncated(trimmed[i:])); ok {
			return s, nil
		}
	}
	return models.Suggestion{}, &MalformedResponseError{Kind: InvalidJSON, Snippet: snippet(trimmed[starts[0]:]), Err: firstErr}
}

// objectStarts returns the offset of every '{' in s.
func objectStarts(s string) []int {
	var out []int
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			out = append(out, i)
		}
	}
	return out
}

// repairTruncated returns candidate fixes for an object cut off mid-stream:
// closing what is open, then trimming back to the last complete top-level
// field. A cut inside a string value can only be fixed by the second form.
func repairTruncated(s string) []string {
	var (
		stack     []byte
		inString  bool
		escaped   bool
		lastComma = -1
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				// Object already closed; nothing to repair.
				return nil
			}
		case ',':
			if len(stack) == 1 {
				lastComma = i
			}
		}
	}
	if len(stack) == 0 {
		return nil
	}

	var out []string
	if !inString {
		head := strings.TrimRight(s, " \t\r\n")
		head = strings.TrimSuffix(head, ",")
		if !strings.HasSuffix(head, ":") {
			out = append(out, head+closers(stack))
		}
	}
	if lastComma > 0 {
		out = append(out, s[:lastComma]+"}")
	}
	return out
}

func closers(stack []byte) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

func cleanSuggestion(s models.Suggestion) models.Suggestion {
	s.MatchedCategory = nullish(s.MatchedCategory)
	s.NewCategoryName = nullish(s.NewCategoryName)
	s.Rationale = strings.TrimSpace(s.Rationale)
	if s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 1 {
		s.Confidence = 1
	}
	return s
}

// nullish trims v and maps the placeholder answers models give for "no
// value" to the empty string.
func nullish(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "null", "none", "n/a", "-":
		return ""
	}
	return v
}

// stripCodeFences removes markdown code fences that some models wrap around JSON.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Remove opening fence (```json or ```)
		if i := strings.Index(s, "\n"); i != -1 {
			s = s[i+1:]
		}
		// Remove closing fence
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}
