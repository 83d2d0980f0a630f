// Package schema parses fixed-format schema documentation dumps into
// table records and reads/writes them as JSON or YAML.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table is one documented table with its columns.
type Table struct {
	TableName   string   `json:"TableName" yaml:"table_name"`
	Description string   `json:"Description,omitempty" yaml:"description,omitempty"`
	Columns     []Column `json:"Columns" yaml:"columns"`
}

// Column is one row of a table's column listing.
type Column struct {
	Keys       string `json:"Keys" yaml:"keys"`
	ColumnName string `json:"ColumnName" yaml:"column_name"`
	DataType   string `json:"DataType" yaml:"data_type"`
	Nullable   string `json:"Nullable" yaml:"nullable"`
	Comment    string `json:"Comment" yaml:"comment"`
}

// KeyType returns the key flags, or "n/a" when the column has none.
func (c Column) KeyType() string {
	if strings.TrimSpace(c.Keys) == "" {
		return "n/a"
	}
	return c.Keys
}

// LoadJSON reads schema.json as written by WriteJSON.
func LoadJSON(path string) ([]Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	var tables []Table
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", path, err)
	}
	return tables, nil
}

// WriteJSON writes tables as an indented JSON array.
func WriteJSON(w io.Writer, tables []Table) error {
	if tables == nil {
		tables = []Table{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(tables)
}

// WriteYAML writes tables as a YAML sequence.
func WriteYAML(w io.Writer, tables []Table) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tables); err != nil {
		return err
	}
	return enc.Close()
}

// Find returns the table whose name matches name case-insensitively.
func Find(tables []Table, name string) (*Table, bool) {
	for i := range tables {
		if strings.EqualFold(tables[i].TableName, name) {
			return &tables[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the sorted, de-duplicated upper-case column names
// across all tables.
func ColumnNames(tables []Table) []string {
	seen := make(map[string]struct{})
	for _, t := range tables {
		for _, c := range t.Columns {
			name := strings.ToUpper(strings.TrimSpace(c.ColumnName))
			if name == "" {
				continue
			}
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TablesWithColumn returns the names of tables that own a column named col.
func TablesWithColumn(tables []Table, col string) []string {
	var out []string
	for _, t := range tables {
		for _, c := range t.Columns {
			if strings.EqualFold(c.ColumnName, col) {
				out = append(out, t.TableName)
				break
			}
		}
	}
	return out
}
