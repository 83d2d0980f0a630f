package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches a leading <think>...</think> block.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// sqlFencePattern matches a fenced code block, optionally tagged sql.
var sqlFencePattern = regexp.MustCompile("(?is)```(?:sql)?\\s*\\n?(.*?)```")

// ErrNoSQL is returned when a response contains no query.
var ErrNoSQL = errors.New("no SQL found in response")

// ExtractJSON returns the first balanced JSON object or array in a model
// response that may carry think tags, prose or markdown fences.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if s, ok := extractBalanced(cleaned[objStart:], '{', '}'); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}
	if arrStart >= 0 {
		if s, ok := extractBalanced(cleaned[arrStart:], '[', ']'); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", errors.New("no valid JSON found in response")
}

// extractBalanced returns the prefix of s that closes the bracket s starts with.
func extractBalanced(s string, open, close byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T
	s, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}

// ExtractSQL returns the query from a response. A fenced block wins;
// otherwise the whole response is taken. Trailing semicolons are removed.
func ExtractSQL(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")
	sql := cleaned
	if m := sqlFencePattern.FindStringSubmatch(cleaned); m != nil {
		sql = m[1]
	}
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSpace(strings.TrimRight(sql, "; \t\n"))
	if sql == "" {
		return "", ErrNoSQL
	}
	return sql, nil
}
