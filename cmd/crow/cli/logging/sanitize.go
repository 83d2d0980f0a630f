package logging

import "regexp"

const (
	// MaxQueryLogLength caps how much of a query is logged.
	MaxQueryLogLength = 200
	// RedactedText replaces sensitive values.
	RedactedText = "[REDACTED]"
)

var (
	passwordPattern   = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
	bearerPattern     = regexp.MustCompile(`(?i)Bearer\s+\S+`)
	apiKeyPattern     = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key|token)=[A-Za-z0-9._-]{8,}`)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)
)

// SanitizeDSN removes credentials from a connection string.
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	s := passwordPattern.ReplaceAllString(dsn, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@")
}

// SanitizeError returns err's message with tokens, keys and passwords removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@")
}

// SanitizeQuery truncates a query and strips credentials from it.
func SanitizeQuery(query string) string {
	s := Truncate(query, MaxQueryLogLength)
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
}

// Truncate shortens s to maxLen bytes, adding an ellipsis when cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
