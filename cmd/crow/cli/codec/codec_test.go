package codec

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"
)

func TestDict_LookupOrAdd(t *testing.T) {
	t.Parallel()

	d := NewDict()
	a := d.LookupOrAdd(NSTables, "MOLECULE_DICTIONARY")
	b := d.LookupOrAdd(NSTables, "COMPOUND_RECORDS")
	again := d.LookupOrAdd(NSTables, "MOLECULE_DICTIONARY")
	if a != 0 || b != 1 || again != 0 {
		t.Errorf("indices = %d,%d,%d; want 0,1,0", a, b, again)
	}

	// Namespaces are independent.
	if c := d.LookupOrAdd(NSColumns, "MOLECULE_DICTIONARY"); c != 0 {
		t.Errorf("column index = %d, want 0", c)
	}
	if _, ok := d.Lookup(NSColumns, "ALOGP"); ok {
		t.Error("Lookup should not add")
	}
	if d.Len(NSColumns) != 1 {
		t.Errorf("Len(NSColumns) = %d, want 1", d.Len(NSColumns))
	}
	if _, err := d.Get(NSTables, 5); err == nil {
		t.Error("Get out of range should fail")
	}
}

func TestDict_EncodeLoad(t *testing.T) {
	t.Parallel()

	d := NewDict()
	d.LookupOrAdd(NSTables, "DRUG_WARNING")
	d.LookupOrAdd(NSColumns, "WARNING_ID")
	d.LookupOrAdd(NSColumns, strings.Repeat("X", 300))

	loaded, err := LoadDict(d.Encode())
	if err != nil {
		t.Fatalf("LoadDict: %v", err)
	}
	got, _ := loaded.Get(NSColumns, 1)
	if len(got) != 300 {
		t.Errorf("long entry length = %d, want 300", len(got))
	}
	if i, ok := loaded.Lookup(NSTables, "DRUG_WARNING"); !ok || i != 0 {
		t.Errorf("Lookup(DRUG_WARNING) = %d, %v", i, ok)
	}
}

func TestLoadDict_Errors(t *testing.T) {
	t.Parallel()

	if _, err := LoadDict([]byte("CRDICT")); err == nil {
		t.Error("expected error for short header")
	}
	bad := NewDict().Encode()
	copy(bad, "XXXXXX")
	if _, err := LoadDict(bad); err == nil {
		t.Error("expected error for bad magic")
	}

	d := NewDict()
	d.LookupOrAdd(NSTables, "T")
	enc := d.Encode()
	if _, err := LoadDict(enc[:len(enc)-1]); err == nil {
		t.Error("expected error for truncated entry")
	}

	// A length prefix near 2^64 must not wrap the bounds check.
	huge := NewDict().Encode()
	binary.LittleEndian.PutUint32(huge[8:12], 1)
	huge = binary.AppendUvarint(huge, math.MaxUint64)
	huge = append(huge, 'T')
	if _, err := LoadDict(huge); err == nil || !strings.Contains(err.Error(), "truncated data") {
		t.Errorf("expected truncated data error for huge length, got %v", err)
	}
}

func TestBody_FramesRoundTrip(t *testing.T) {
	t.Parallel()

	enc, err := NewEncoder()
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()

	d := NewDict()
	d.LookupOrAdd(NSTables, "MOLECULE_DICTIONARY")
	d.LookupOrAdd(NSColumns, "MOLREGNO")
	meta := &MetaFrame{
		Producer:     "v0.3.1",
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SchemaDigest: "abc123",
		Unresolved:   []string{"compounds"},
	}
	edges := []Edge{{Column: 0, Table: 0, Kind: EdgeOwner}, {Column: 0, Table: 0, Kind: EdgeForeign}}

	body := NewBody()
	body = AppendFrame(body, enc.EncodeMeta(meta))
	body = AppendFrame(body, enc.EncodeDict(d))
	body = AppendFrame(body, enc.EncodeEdges(edges))

	frames, err := ScanFrames(body)
	if err != nil {
		t.Fatalf("ScanFrames: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	wantTypes := []FrameType{FrameMeta, FrameDict, FrameEdges}
	for i, fs := range frames {
		if fs.Type != wantTypes[i] {
			t.Errorf("frame %d type = %s, want %s", i, fs.Type, wantTypes[i])
		}
	}

	dec, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()

	p, err := dec.Payload(body, frames[0])
	if err != nil {
		t.Fatalf("meta payload: %v", err)
	}
	gotMeta, err := DecodeMeta(p)
	if err != nil {
		t.Fatalf("DecodeMeta: %v", err)
	}
	if gotMeta.Producer != "v0.3.1" || !gotMeta.CreatedAt.Equal(meta.CreatedAt) ||
		gotMeta.SchemaDigest != "abc123" || len(gotMeta.Unresolved) != 1 {
		t.Errorf("meta mismatch: %+v", gotMeta)
	}

	p, err = dec.Payload(body, frames[2])
	if err != nil {
		t.Fatalf("edges payload: %v", err)
	}
	gotEdges, err := DecodeEdges(p)
	if err != nil {
		t.Fatalf("DecodeEdges: %v", err)
	}
	if len(gotEdges) != 2 || gotEdges[1].Kind != EdgeForeign {
		t.Errorf("edges mismatch: %+v", gotEdges)
	}
}

func TestScanFrames_Errors(t *testing.T) {
	t.Parallel()

	if _, err := ScanFrames([]byte("CROW")); err == nil {
		t.Error("expected error for short body")
	}

	bad := NewBody()
	copy(bad, "NOTCROW")
	if _, err := ScanFrames(bad); err == nil {
		t.Error("expected error for bad magic")
	}

	body := AppendFrame(NewBody(), WriteEnvelope(FrameDict, 100, 100))
	if _, err := ScanFrames(body); err == nil || !strings.Contains(err.Error(), "truncated") {
		t.Errorf("expected truncation error, got %v", err)
	}

	frames, err := ScanFrames(NewBody())
	if err != nil || len(frames) != 0 {
		t.Errorf("empty body: frames=%d err=%v", len(frames), err)
	}
}

func TestDecodeEdges_Truncated(t *testing.T) {
	t.Parallel()

	if _, err := DecodeEdges([]byte{0x02, byte(EdgeOwner), 0x01}); err == nil {
		t.Error("expected error for truncated edge list")
	}
}
