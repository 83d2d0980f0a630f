// Package prompt renders the text sent to language models: the join-path
// prompt for two columns and the two prompts of the answer pipeline.
package prompt

import (
	"fmt"
	"strings"

	"github.com/drugcrow/crow/cmd/crow/cli/schema"
	"github.com/drugcrow/crow/cmd/crow/cli/schemagraph"
)

// PathPrompt describes the tables on the shortest path between start and
// end so a model can write the joining query. Every table step must
// exist in tables.
func PathPrompt(start, end string, steps []schemagraph.Step, tables []schema.Table) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a SQL query to find the relationship between the columns %s and %s. ",
		strings.ToUpper(start), strings.ToUpper(end))
	b.WriteString("Here is the schema of some relevant tables:\n")

	for _, name := range schemagraph.TablesOn(steps) {
		t, ok := schema.Find(tables, name)
		if !ok {
			return "", fmt.Errorf("table %s is on the path but not in the schema", name)
		}
		b.WriteString("\n")
		writeTable(&b, t)
	}

	fmt.Fprintf(&b, "\nJoin path: %s\n", schemagraph.FormatSteps(steps))
	return b.String(), nil
}

func writeTable(b *strings.Builder, t *schema.Table) {
	fmt.Fprintf(b, "Table: %s\n", t.TableName)
	for _, c := range t.Columns {
		fmt.Fprintf(b, "Column: %s, Type: %s, Key type: %s\n", c.ColumnName, c.DataType, c.KeyType())
	}
}
