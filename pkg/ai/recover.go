package ai

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// RecoveryStep names the cascade stage that produced a parsed object.
type RecoveryStep int

// Recovery cascade stages, in the order they are tried.
const (
	RecoveryNone RecoveryStep = iota
	RecoveryDirect
	RecoveryFenced
	RecoveryBraces
	RecoverySanitized
)

func (s RecoveryStep) String() string {
	switch s {
	case RecoveryDirect:
		return "direct"
	case RecoveryFenced:
		return "fenced"
	case RecoveryBraces:
		return "braces"
	case RecoverySanitized:
		return "sanitized"
	default:
		return "none"
	}
}

var (
	fencedBlockPattern   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")
	controlCharPattern   = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// RecoverJSON extracts a JSON object from messy provider text. The first stage that
// yields an object wins; ErrMalformedOutput is returned when every stage fails.
func RecoverJSON(raw string) (map[string]any, RecoveryStep, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, RecoveryNone, ErrMalformedOutput
	}

	if obj, ok := decodeObject(text); ok {
		return obj, RecoveryDirect, nil
	}

	if match := fencedBlockPattern.FindStringSubmatch(text); len(match) == 2 {
		if obj, ok := decodeObject(strings.TrimSpace(match[1])); ok {
			return obj, RecoveryFenced, nil
		}
	}

	if obj, ok := firstObjectSpan(text); ok {
		return obj, RecoveryBraces, nil
	}

	if obj, ok := firstObjectSpan(sanitizeJSONText(text)); ok {
		return obj, RecoverySanitized, nil
	}

	return nil, RecoveryNone, ErrMalformedOutput
}

// firstObjectSpan decodes the first balanced {...} span that is a non-empty object, so a
// stray struct{} in prose is skipped. Braces inside quoted strings do not count.
func firstObjectSpan(s string) (map[string]any, bool) {
	for _, span := range balancedSpans(s) {
		if obj, ok := decodeObject(span); ok && len(obj) > 0 {
			return obj, true
		}
	}
	return nil, false
}

func balancedSpans(s string) []string {
	var spans []string
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' && depth > 0 {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, s[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

func sanitizeJSONText(s string) string {
	s = controlCharPattern.ReplaceAllString(s, "")
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	s = strings.NewReplacer("'", `"`, "‘", `"`, "’", `"`, "“", `"`, "”", `"`).Replace(s)
	return s
}

// decodeObject only accepts a JSON object; arrays and scalars are rejected.
func decodeObject(s string) (map[string]any, bool) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(s)))
	decoder.UseNumber()

	var obj map[string]any
	if err := decoder.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if decoder.More() {
		return nil, false
	}
	return obj, true
}
