package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmptyQuery is returned for blank input.
	ErrEmptyQuery = errors.New("empty SQL query")
	// ErrMultipleStatements indicates more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed")
	// ErrNotReadOnly indicates a statement other than SELECT or WITH.
	ErrNotReadOnly = errors.New("only SELECT or WITH queries are allowed")
)

// writeKeyword catches data-modifying CTEs such as WITH x AS (DELETE ...).
var writeKeyword = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|ATTACH|DETACH|COPY|EXPORT|INSTALL|LOAD|PRAGMA|CALL|EXEC|EXECUTE)\b`)

// CheckReadOnly validates that query is a single SELECT or WITH statement
// and returns it with any trailing semicolon removed.
func CheckReadOnly(query string) (string, error) {
	q := stripTrailingSemicolon(strings.TrimSpace(query))
	if q == "" {
		return "", ErrEmptyQuery
	}
	bare := maskLiterals(q, false)
	if strings.Contains(bare, ";") {
		return "", ErrMultipleStatements
	}

	head := strings.ToUpper(strings.TrimLeft(bare, "( \t\r\n"))
	if !strings.HasPrefix(head, "SELECT") && !strings.HasPrefix(head, "WITH") {
		return "", ErrNotReadOnly
	}
	if writeKeyword.MatchString(bare) {
		return "", ErrNotReadOnly
	}
	return q, nil
}

func stripTrailingSemicolon(q string) string {
	for {
		t := strings.TrimRight(q, " \t\r\n")
		if !strings.HasSuffix(t, ";") {
			return t
		}
		q = strings.TrimSuffix(t, ";")
	}
}

// maskLiterals replaces quoted strings, quoted identifiers and comments
// with spaces so keyword and semicolon checks only see SQL text. Every
// other byte keeps its offset. brackets also masks T-SQL [identifiers].
func maskLiterals(q string, brackets bool) string {
	b := []byte(q)
	blank := func(from, to int) {
		for k := from; k < to && k < len(b); k++ {
			b[k] = ' '
		}
	}
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || (brackets && c == '['):
			closer := c
			if c == '[' {
				closer = ']'
			}
			j := i + 1
			for j < len(q) {
				if q[j] == closer {
					if j+1 < len(q) && q[j+1] == closer {
						j += 2
						continue
					}
					break
				}
				j++
			}
			blank(i, j+1)
			i = j
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			j := i
			for j < len(q) && q[j] != '\n' {
				j++
			}
			blank(i, j)
			i = j
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			j := len(q)
			if end := strings.Index(q[i+2:], "*/"); end >= 0 {
				j = i + 2 + end + 2
			}
			blank(i, j)
			i = j - 1
		}
	}
	return string(b)
}

type sqlWord struct {
	text string // upper-cased
	pos  int
}

// topLevelWords lists the words of a masked query that sit outside any
// parentheses.
func topLevelWords(masked string) []sqlWord {
	var words []sqlWord
	depth := 0
	for i := 0; i < len(masked); {
		c := masked[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case isWordByte(c):
			j := i
			for j < len(masked) && isWordByte(masked[j]) {
				j++
			}
			if depth == 0 {
				words = append(words, sqlWord{text: strings.ToUpper(masked[i:j]), pos: i})
			}
			i = j
		default:
			i++
		}
	}
	return words
}

func isWordByte(c byte) bool {
	return c == '_' || c == '@' || c == '#' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// appendLimit caps a PostgreSQL or DuckDB query. A bare LIMIT goes after
// the statement; queries that already page themselves are wrapped.
func appendLimit(q string, limit int) string {
	for _, w := range topLevelWords(maskLiterals(q, false)) {
		switch w.text {
		case "LIMIT", "OFFSET", "FETCH":
			return fmt.Sprintf("SELECT * FROM (\n%s\n) AS crow_q LIMIT %d", q, limit)
		}
	}
	return fmt.Sprintf("%s\nLIMIT %d", q, limit)
}

// topLimited caps a SQL Server query on its outermost SELECT. A simple
// SELECT gets TOP (n); a compound one with ORDER BY gets OFFSET/FETCH;
// any other compound one is wrapped after its CTEs. Queries that already
// use TOP or OFFSET come back unchanged.
func topLimited(q string, limit int) string {
	words := topLevelWords(maskLiterals(q, true))
	sel := -1
	compound, ordered := false, false
	for k, w := range words {
		switch w.text {
		case "SELECT":
			if sel < 0 {
				sel = k
			}
		case "UNION", "EXCEPT", "INTERSECT":
			compound = true
		case "ORDER":
			ordered = true
		case "OFFSET", "FETCH":
			return q
		}
	}
	if sel < 0 {
		return q
	}

	if !compound {
		at := words[sel].pos + len("SELECT")
		next := sel + 1
		if next < len(words) && (words[next].text == "DISTINCT" || words[next].text == "ALL") {
			at = words[next].pos + len(words[next].text)
			next++
		}
		if next < len(words) && words[next].text == "TOP" {
			return q
		}
		return fmt.Sprintf("%s TOP (%d)%s", q[:at], limit, q[at:])
	}
	if ordered {
		return fmt.Sprintf("%s\nOFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", q, limit)
	}
	start := words[sel].pos
	return fmt.Sprintf("%sSELECT TOP (%d) * FROM (\n%s\n) AS crow_q", q[:start], limit, q[start:])
}
