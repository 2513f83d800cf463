package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ExtractJSON returns the first balanced JSON value opened by open ('[' or '{')
// in text. Model replies often wrap JSON in prose or code fences.
func ExtractJSON(text string, open byte) (string, error) {
	var closeCh byte
	switch open {
	case '[':
		closeCh = ']'
	case '{':
		closeCh = '}'
	default:
		return "", fmt.Errorf("unsupported opening delimiter %q", open)
	}

	start := strings.IndexByte(text, open)
	for start != -1 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(text); i++ {
			ch := text[i]
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
			case open:
				depth++
			case closeCh:
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, nil
					}
					i = len(text)
				}
			}
		}
		next := strings.IndexByte(text[start+1:], open)
		if next == -1 {
			break
		}
		start += 1 + next
	}
	return "", fmt.Errorf("no JSON %c...%c found in response", open, closeCh)
}

// DecodeJSON extracts and decodes the first JSON value of the given kind.
func DecodeJSON(text string, open byte, out interface{}) error {
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), out); err == nil {
		return nil
	}
	raw, err := ExtractJSON(text, open)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to parse extracted JSON: %w", err)
	}
	return nil
}

var integerPattern = regexp.MustCompile(`-?\d+`)

// ErrNoIndex is returned when a reply carries no integer at all.
var ErrNoIndex = errors.New("no index in reply")

// ParseIndex reads the first integer of a reply. Values outside [0, n) come
// back unchanged; callers treat them as "none".
func ParseIndex(reply string) (int, error) {
	m := integerPattern.FindString(reply)
	if m == "" {
		return -1, ErrNoIndex
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return -1, fmt.Errorf("parse index %q: %w", m, err)
	}
	return v, nil
}
