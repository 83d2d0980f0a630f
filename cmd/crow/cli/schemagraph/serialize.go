package schemagraph

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"golang.org/x/mod/semver"

	"github.com/drugcrow/crow/cmd/crow/cli/codec"
)

// ErrIncompatible is returned when a blob was written by a crow build
// with a different major version.
var ErrIncompatible = errors.New("graph blob written by incompatible version")

// Encode serializes the graph as a framed blob: meta, dict, edges.
func (gr *Graph) Encode(producer, schemaDigest string) ([]byte, error) {
	enc, err := codec.NewEncoder()
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	defer enc.Close()

	dict := codec.NewDict()
	for _, name := range sortedKeys(gr.tables) {
		dict.LookupOrAdd(codec.NSTables, name)
	}
	for _, name := range sortedKeys(gr.columns) {
		dict.LookupOrAdd(codec.NSColumns, name)
	}

	edges := make([]codec.Edge, 0, len(gr.links))
	for _, l := range gr.links {
		c, _ := dict.Lookup(codec.NSColumns, l.Column)
		t, _ := dict.Lookup(codec.NSTables, l.Table)
		edges = append(edges, codec.Edge{Column: c, Table: t, Kind: l.Kind})
	}

	body := codec.NewBody()
	body = codec.AppendFrame(body, enc.EncodeMeta(&codec.MetaFrame{
		Producer:     producer,
		CreatedAt:    time.Now().UTC(),
		SchemaDigest: schemaDigest,
		Unresolved:   gr.Unresolved,
	}))
	body = codec.AppendFrame(body, enc.EncodeDict(dict))
	body = codec.AppendFrame(body, enc.EncodeEdges(edges))
	return body, nil
}

// Save writes the encoded graph to w.
func (gr *Graph) Save(w io.Writer, producer, schemaDigest string) error {
	body, err := gr.Encode(producer, schemaDigest)
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// SaveFile writes the encoded graph to path.
func (gr *Graph) SaveFile(path, producer, schemaDigest string) error {
	body, err := gr.Encode(producer, schemaDigest)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write graph %s: %w", path, err)
	}
	return nil
}

// Decode rebuilds a graph from a blob. consumer is the reading build's
// version; a blob from a different major version is rejected.
func Decode(body []byte, consumer string) (*Graph, *codec.MetaFrame, error) {
	frames, err := codec.ScanFrames(body)
	if err != nil {
		return nil, nil, fmt.Errorf("scan frames: %w", err)
	}
	if len(frames) == 0 || frames[0].Type != codec.FrameMeta {
		return nil, nil, errors.New("graph blob: missing meta frame")
	}

	dec, err := codec.NewDecoder()
	if err != nil {
		return nil, nil, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	var (
		meta  *codec.MetaFrame
		dict  *codec.Dict
		edges []codec.Edge
	)
	for _, fs := range frames {
		p, err := dec.Payload(body, fs)
		if err != nil {
			return nil, nil, err
		}
		switch fs.Type {
		case codec.FrameMeta:
			if meta, err = codec.DecodeMeta(p); err != nil {
				return nil, nil, err
			}
			if !compatible(meta.Producer, consumer) {
				return nil, nil, fmt.Errorf("%w: blob %s, reader %s", ErrIncompatible, meta.Producer, consumer)
			}
		case codec.FrameDict:
			if dict, err = codec.LoadDict(p); err != nil {
				return nil, nil, err
			}
		case codec.FrameEdges:
			if edges, err = codec.DecodeEdges(p); err != nil {
				return nil, nil, err
			}
		default:
			// Unknown frames from newer minor versions are skipped.
		}
	}
	if dict == nil {
		return nil, nil, errors.New("graph blob: missing dict frame")
	}

	gr := newGraph()
	for _, name := range dict.Tables {
		gr.addNode(KindTable, name)
	}
	for _, name := range dict.Columns {
		gr.addNode(KindColumn, name)
	}
	for _, e := range edges {
		col, err := dict.Get(codec.NSColumns, e.Column)
		if err != nil {
			return nil, nil, fmt.Errorf("edge column: %w", err)
		}
		tbl, err := dict.Get(codec.NSTables, e.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("edge table: %w", err)
		}
		gr.link(col, tbl, e.Kind)
	}
	gr.Unresolved = meta.Unresolved
	return gr, meta, nil
}

// Load reads and decodes a blob from r.
func Load(r io.Reader, consumer string) (*Graph, *codec.MetaFrame, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read graph: %w", err)
	}
	return Decode(body, consumer)
}

// LoadFile reads and decodes the blob at path.
func LoadFile(path, consumer string) (*Graph, *codec.MetaFrame, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	return Decode(body, consumer)
}

// compatible reports whether a blob from producer can be read by
// consumer. Non-semver versions (dev builds) are always accepted.
func compatible(producer, consumer string) bool {
	if !semver.IsValid(producer) || !semver.IsValid(consumer) {
		return true
	}
	return semver.Major(producer) == semver.Major(consumer)
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
