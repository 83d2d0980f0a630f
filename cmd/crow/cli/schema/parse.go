package schema

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// cellSep splits a column row into cells: two or more whitespace
// characters, or a single tab.
var cellSep = regexp.MustCompile(`\s{2,}|\t`)

// nullableMarkers are the values accepted in the fourth cell as a
// nullability flag. Anything else there is treated as the comment.
var nullableMarkers = map[string]bool{
	"NOT NULL": true,
	"NULL":     true,
	"NULLABLE": true,
	"Y":        true,
	"N":        true,
	"YES":      true,
	"NO":       true,
}

// SkippedLine is a data row that could not be split into column cells.
type SkippedLine struct {
	Line   int    `json:"line"`
	Table  string `json:"table"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Result is the outcome of parsing a schema dump.
type Result struct {
	Tables  []Table
	Skipped []SkippedLine
}

// ParseFile parses the schema dump at path.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema dump: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a schema documentation dump.
//
// A line ending in ':' starts a table. Lines after it are description
// until the header row (containing KEYS and COLUMN_NAME); every non-blank
// line after the header is a column row.
func Parse(r io.Reader) (*Result, error) {
	res := &Result{}

	var (
		cur       *Table
		desc      []string
		inData    bool
		hdrIndent int
	)

	flush := func() {
		if cur == nil {
			return
		}
		cur.Description = strings.Join(desc, " ")
		if cur.Columns == nil {
			cur.Columns = []Column{}
		}
		res.Tables = append(res.Tables, *cur)
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := strings.TrimRight(sc.Text(), "\r\n")
		line := strings.TrimSpace(raw)

		if strings.HasSuffix(line, ":") {
			flush()
			cur = &Table{TableName: strings.TrimSpace(strings.TrimSuffix(line, ":"))}
			desc = nil
			inData = false
			continue
		}
		if cur == nil {
			continue
		}

		switch {
		case !inData && strings.Contains(line, "KEYS") && strings.Contains(line, "COLUMN_NAME"):
			inData = true
			hdrIndent = leadingWhitespace(raw)
		case !inData:
			if line != "" {
				desc = append(desc, line)
			}
		case line == "":
		default:
			col, reason := parseRow(raw, hdrIndent)
			if reason != "" {
				res.Skipped = append(res.Skipped, SkippedLine{
					Line:   lineNo,
					Table:  cur.TableName,
					Text:   line,
					Reason: reason,
				})
				continue
			}
			cur.Columns = append(cur.Columns, col)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan schema dump: %w", err)
	}
	flush()
	return res, nil
}

// parseRow splits one column row. A row indented past the header has
// an empty KEYS cell.
func parseRow(raw string, hdrIndent int) (Column, string) {
	lead := leadingWhitespace(raw)
	body := raw[min(lead, hdrIndent):]
	blankKeys := leadingWhitespace(body) > 0

	cells := cellSep.Split(strings.TrimSpace(body), -1)
	if blankKeys {
		cells = append([]string{""}, cells...)
	}
	if len(cells) < 3 {
		return Column{}, fmt.Sprintf("expected at least 3 cells, got %d", len(cells))
	}

	col := Column{
		Keys:       cells[0],
		ColumnName: cells[1],
		DataType:   cells[2],
	}
	rest := cells[3:]
	if len(rest) > 0 && nullableMarkers[strings.ToUpper(rest[0])] {
		col.Nullable = rest[0]
		rest = rest[1:]
	}
	col.Comment = strings.Join(rest, " ")
	return col, ""
}

func leadingWhitespace(s string) int {
	return len(s) - len(strings.TrimLeft(s, " \t"))
}
