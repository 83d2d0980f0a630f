package schemagraph

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/path"
)

// Node is a table or column vertex.
type Node struct {
	id   int64
	Name string
	Kind Kind
}

// ID implements graph.Node.
func (n *Node) ID() int64 { return n.id }

var dotUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// DOTID implements dot.Node.
func (n *Node) DOTID() string {
	return n.Kind.String() + "_" + dotUnsafe.ReplaceAllString(n.Name, "_")
}

// Attributes implements encoding.Attributer.
func (n *Node) Attributes() []encoding.Attribute {
	shape := "ellipse"
	if n.Kind == KindTable {
		shape = "box"
	}
	return []encoding.Attribute{
		{Key: "label", Value: fmt.Sprintf("%q", n.Name)},
		{Key: "shape", Value: shape},
	}
}

// Step is one node on a path.
type Step struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// ShortestPath returns the shortest path from start to end. When several
// paths tie, the one with the lexicographically smallest sequence of
// names wins so the result is stable between runs.
func (gr *Graph) ShortestPath(start, end string) ([]Step, error) {
	s, ok := gr.Node(start)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, start)
	}
	e, ok := gr.Node(end)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, end)
	}
	if s.ID() == e.ID() {
		return []Step{{Name: s.Name, Kind: s.Kind}}, nil
	}

	alts := path.DijkstraAllFrom(s, gr.g)
	paths, _ := alts.AllTo(e.ID())
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w between %s and %s", ErrNoPath, s.Name, e.Name)
	}

	var best []Step
	for _, p := range paths {
		steps := toSteps(p)
		if best == nil || lessSteps(steps, best) {
			best = steps
		}
	}
	return best, nil
}

func toSteps(nodes []graph.Node) []Step {
	steps := make([]Step, len(nodes))
	for i, n := range nodes {
		sn := n.(*Node)
		steps[i] = Step{Name: sn.Name, Kind: sn.Kind}
	}
	return steps
}

func lessSteps(a, b []Step) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i].Name != b[i].Name {
			return a[i].Name < b[i].Name
		}
		if a[i].Kind != b[i].Kind {
			return a[i].Kind < b[i].Kind
		}
	}
	return len(a) < len(b)
}

// FormatSteps renders a path as "A -> B -> C".
func FormatSteps(steps []Step) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return strings.Join(names, " -> ")
}

// TablesOn returns the table names on a path, in order.
func TablesOn(steps []Step) []string {
	var out []string
	for _, s := range steps {
		if s.Kind == KindTable {
			out = append(out, s.Name)
		}
	}
	return out
}

// WriteDOT writes the graph in Graphviz DOT format.
func (gr *Graph) WriteDOT(w io.Writer) error {
	b, err := dot.Marshal(gr.g, "schema", "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dot: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}
