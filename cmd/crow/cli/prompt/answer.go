package prompt

import (
	"fmt"
	"strings"
)

// ColumnSelectionSystem is the system message for the column selection call.
const ColumnSelectionSystem = `You help analysts query a drug discovery database.
You only answer with a JSON array of column names taken from the list you are given.`

// SQLSystem is the system message for the SQL generation call.
const SQLSystem = `You write a single read-only SQL query that answers the user's question.
Use only the tables and columns described in the context. Answer with the query in a sql code block and nothing else.`

// ColumnSelectionPrompt asks the model which of vocabulary's columns are
// needed to answer question.
func ColumnSelectionPrompt(question string, vocabulary []string) string {
	var b strings.Builder
	b.WriteString("Which of the following columns are needed to answer the question below?\n\n")
	b.WriteString("Columns: ")
	b.WriteString(strings.Join(vocabulary, ", "))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(question))
	b.WriteString(`Respond with a JSON array of column names, for example ["MOLREGNO", "PREF_NAME"].`)
	b.WriteString("\n")
	return b.String()
}

// SQLPrompt asks for a query answering question using the selected
// columns. contextJSON holds the schema records of the relevant tables
// and dialect names the target SQL flavor.
func SQLPrompt(question string, columns []string, contextJSON, dialect string) string {
	if dialect == "" {
		dialect = "standard SQL"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s query that answers this question: %s\n\n", dialect, strings.TrimSpace(question))
	fmt.Fprintf(&b, "The relevant columns are: %s\n\n", strings.Join(columns, ", "))
	b.WriteString("Here is the schema of the relevant tables as JSON:\n")
	b.WriteString(contextJSON)
	if !strings.HasSuffix(contextJSON, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
