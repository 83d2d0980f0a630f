package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// EdgeKind says why a column is linked to a table.
type EdgeKind byte

const (
	EdgeOwner   EdgeKind = 0x01 // column belongs to the table
	EdgeForeign EdgeKind = 0x02 // column's comment references the table
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeOwner:
		return "owner"
	case EdgeForeign:
		return "foreign"
	default:
		return fmt.Sprintf("edge(0x%02x)", byte(k))
	}
}

// Edge links a column (NSColumns index) to a table (NSTables index).
type Edge struct {
	Column uint64
	Table  uint64
	Kind   EdgeKind
}

// MetaFrame describes how and from what a graph blob was produced.
type MetaFrame struct {
	Producer     string // semver of the crow build that wrote the blob
	CreatedAt    time.Time
	SchemaDigest string   // sha256 of the schema JSON the graph was built from
	Unresolved   []string // foreign-key targets that matched no table
}

var errShortPayload = errors.New("codec: payload truncated")

// Encoder compresses frame payloads with zstd.
type Encoder struct {
	zw *zstd.Encoder
}

// NewEncoder creates a frame encoder.
func NewEncoder() (*Encoder, error) {
	zw, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &Encoder{zw: zw}, nil
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	_ = e.zw.Close()
}

// Frame compresses payload and returns envelope + compressed bytes.
func (e *Encoder) Frame(ft FrameType, payload []byte) []byte {
	compressed := e.zw.EncodeAll(payload, nil)
	out := WriteEnvelope(ft, len(compressed), len(payload))
	return append(out, compressed...)
}

// EncodeMeta frames a MetaFrame.
func (e *Encoder) EncodeMeta(m *MetaFrame) []byte {
	var buf []byte
	buf = appendString(buf, m.Producer)
	buf = binary.AppendVarint(buf, m.CreatedAt.Unix())
	buf = appendString(buf, m.SchemaDigest)
	buf = binary.AppendUvarint(buf, uint64(len(m.Unresolved)))
	for _, s := range m.Unresolved {
		buf = appendString(buf, s)
	}
	return e.Frame(FrameMeta, buf)
}

// EncodeDict frames a dictionary.
func (e *Encoder) EncodeDict(d *Dict) []byte {
	return e.Frame(FrameDict, d.Encode())
}

// EncodeEdges frames an edge list.
func (e *Encoder) EncodeEdges(edges []Edge) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(edges)))
	for _, ed := range edges {
		buf = append(buf, byte(ed.Kind))
		buf = binary.AppendUvarint(buf, ed.Column)
		buf = binary.AppendUvarint(buf, ed.Table)
	}
	return e.Frame(FrameEdges, buf)
}

// Decoder decompresses frame payloads.
type Decoder struct {
	zr *zstd.Decoder
}

// NewDecoder creates a frame decoder.
func NewDecoder() (*Decoder, error) {
	zr, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &Decoder{zr: zr}, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	d.zr.Close()
}

// Payload decompresses a frame and checks its declared size.
func (d *Decoder) Payload(body []byte, fs FrameSlice) ([]byte, error) {
	out, err := d.zr.DecodeAll(ExtractFramePayload(body, fs), make([]byte, 0, fs.UncompressedLen))
	if err != nil {
		return nil, fmt.Errorf("decompress %s frame: %w", fs.Type, err)
	}
	if len(out) != fs.UncompressedLen {
		return nil, fmt.Errorf("%s frame: got %d bytes, envelope says %d", fs.Type, len(out), fs.UncompressedLen)
	}
	return out, nil
}

// DecodeMeta parses a meta frame payload.
func DecodeMeta(p []byte) (*MetaFrame, error) {
	r := &reader{buf: p}
	m := &MetaFrame{}
	m.Producer = r.str()
	m.CreatedAt = time.Unix(r.varint(), 0).UTC()
	m.SchemaDigest = r.str()
	n := r.uvarint()
	for i := uint64(0); i < n && r.err == nil; i++ {
		m.Unresolved = append(m.Unresolved, r.str())
	}
	if r.err != nil {
		return nil, fmt.Errorf("meta frame: %w", r.err)
	}
	return m, nil
}

// DecodeEdges parses an edges frame payload.
func DecodeEdges(p []byte) ([]Edge, error) {
	r := &reader{buf: p}
	n := r.uvarint()
	edges := make([]Edge, 0, min(n, uint64(len(p))))
	for i := uint64(0); i < n && r.err == nil; i++ {
		kind := EdgeKind(r.readByte())
		col := r.uvarint()
		tbl := r.uvarint()
		edges = append(edges, Edge{Column: col, Table: tbl, Kind: kind})
	}
	if r.err != nil {
		return nil, fmt.Errorf("edges frame: %w", r.err)
	}
	return edges, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// reader walks a payload; the first error sticks.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		r.err = errShortPayload
		return 0
	}
	r.pos += n
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		r.err = errShortPayload
		return 0
	}
	r.pos += n
	return v
}

func (r *reader) readByte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.buf) {
		r.err = errShortPayload
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *reader) str() string {
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if uint64(len(r.buf)-r.pos) < n {
		r.err = errShortPayload
		return ""
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}
