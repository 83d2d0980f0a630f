// Package schemagraph links tables and columns of a parsed schema into an
// undirected graph and finds the shortest connection between two names.
package schemagraph

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/drugcrow/crow/cmd/crow/cli/codec"
	"github.com/drugcrow/crow/cmd/crow/cli/schema"
)

var (
	// ErrUnknownNode is returned when a path endpoint is not in the graph.
	ErrUnknownNode = errors.New("unknown table or column")
	// ErrNoPath is returned when the endpoints are in different components.
	ErrNoPath = errors.New("no path")
)

// foreignKeyRef captures the table named in comments like
// "Foreign key to the molecule_dictionary table".
var foreignKeyRef = regexp.MustCompile(`(?i)foreign\s+key\s+to\s+(?:the\s+)?([A-Za-z0-9_$#.]+)`)

// Kind distinguishes table nodes from column nodes.
type Kind uint8

const (
	KindTable Kind = iota + 1
	KindColumn
)

func (k Kind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindColumn:
		return "column"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Link is one column-to-table relationship.
type Link struct {
	Column string
	Table  string
	Kind   codec.EdgeKind
}

// Stats summarizes a graph.
type Stats struct {
	Tables       int `json:"tables"`
	Columns      int `json:"columns"`
	Edges        int `json:"edges"`
	ForeignLinks int `json:"foreign_links"`
	Unresolved   int `json:"unresolved"`
}

// Graph is the schema graph. It is not safe for concurrent mutation;
// once built it is only read.
type Graph struct {
	g       *simple.UndirectedGraph
	tables  map[string]*Node
	columns map[string]*Node
	links   []Link
	linkSet map[Link]struct{}
	nextID  int64

	// Unresolved lists foreign-key targets that matched no table.
	Unresolved []string
}

func newGraph() *Graph {
	return &Graph{
		g:       simple.NewUndirectedGraph(),
		tables:  make(map[string]*Node),
		columns: make(map[string]*Node),
		linkSet: make(map[Link]struct{}),
	}
}

// Build creates the graph for tables. Names are upper-cased; a column
// name shared by several tables becomes one node linked to each of them.
func Build(tables []schema.Table, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	gr := newGraph()

	for _, t := range tables {
		gr.addNode(KindTable, normalize(t.TableName))
	}

	unresolved := make(map[string]struct{})
	for _, t := range tables {
		tn := normalize(t.TableName)
		if tn == "" {
			continue
		}
		for _, c := range t.Columns {
			cn := normalize(c.ColumnName)
			if cn == "" {
				continue
			}
			gr.link(cn, tn, codec.EdgeOwner)

			ref, ok := foreignKeyTarget(c.Comment)
			if !ok {
				continue
			}
			target, ok := gr.resolveTable(ref)
			if !ok {
				if _, seen := unresolved[ref]; !seen {
					unresolved[ref] = struct{}{}
					gr.Unresolved = append(gr.Unresolved, ref)
					logger.Warn("foreign key target not found",
						zap.String("table", tn),
						zap.String("column", cn),
						zap.String("target", ref))
				}
				continue
			}
			gr.link(cn, target, codec.EdgeForeign)
		}
	}

	logger.Debug("schema graph built",
		zap.Int("tables", len(gr.tables)),
		zap.Int("columns", len(gr.columns)),
		zap.Int("edges", gr.g.Edges().Len()))
	return gr
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// foreignKeyTarget extracts the referenced table name from a column comment.
func foreignKeyTarget(comment string) (string, bool) {
	m := foreignKeyRef.FindStringSubmatch(comment)
	if m == nil {
		return "", false
	}
	ref := strings.TrimRight(m[1], ".")
	if i := strings.LastIndex(ref, "."); i >= 0 {
		ref = ref[i+1:]
	}
	if ref == "" {
		return "", false
	}
	return strings.ToLower(ref), true
}

// resolveTable matches ref against table names, then against its
// singular and plural forms.
func (gr *Graph) resolveTable(ref string) (string, bool) {
	for _, cand := range []string{ref, inflection.Singular(ref), inflection.Plural(ref)} {
		name := normalize(cand)
		if _, ok := gr.tables[name]; ok {
			return name, true
		}
	}
	return "", false
}

func (gr *Graph) addNode(kind Kind, name string) *Node {
	if name == "" {
		return nil
	}
	ns := gr.tables
	if kind == KindColumn {
		ns = gr.columns
	}
	if n, ok := ns[name]; ok {
		return n
	}
	n := &Node{id: gr.nextID, Name: name, Kind: kind}
	gr.nextID++
	ns[name] = n
	gr.g.AddNode(n)
	return n
}

func (gr *Graph) link(column, table string, kind codec.EdgeKind) {
	l := Link{Column: column, Table: table, Kind: kind}
	if _, ok := gr.linkSet[l]; ok {
		return
	}
	gr.linkSet[l] = struct{}{}
	gr.links = append(gr.links, l)

	c := gr.addNode(KindColumn, column)
	t := gr.addNode(KindTable, table)
	gr.g.SetEdge(simple.Edge{F: c, T: t})
}

// Node looks up name, preferring a column over a table of the same name.
func (gr *Graph) Node(name string) (*Node, bool) {
	name = normalize(name)
	if n, ok := gr.columns[name]; ok {
		return n, true
	}
	n, ok := gr.tables[name]
	return n, ok
}

// Table looks up a table node by name.
func (gr *Graph) Table(name string) (*Node, bool) {
	n, ok := gr.tables[normalize(name)]
	return n, ok
}

// Nodes returns all nodes sorted by kind then name.
func (gr *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(gr.tables)+len(gr.columns))
	for _, n := range gr.tables {
		out = append(out, n)
	}
	for _, n := range gr.columns {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Links returns every column-to-table link in insertion order.
func (gr *Graph) Links() []Link {
	return append([]Link(nil), gr.links...)
}

// Stats returns node and edge counts.
func (gr *Graph) Stats() Stats {
	s := Stats{
		Tables:     len(gr.tables),
		Columns:    len(gr.columns),
		Edges:      gr.g.Edges().Len(),
		Unresolved: len(gr.Unresolved),
	}
	for _, l := range gr.links {
		if l.Kind == codec.EdgeForeign {
			s.ForeignLinks++
		}
	}
	return s
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("%d tables, %d columns, %d edges (%d foreign-key links, %d unresolved)",
		s.Tables, s.Columns, s.Edges, s.ForeignLinks, s.Unresolved)
}
